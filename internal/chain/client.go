package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ggonzalez94/swapd/internal/chain/signer"
	swaperr "github.com/ggonzalez94/swapd/internal/errors"
)

// Backend is the subset of the ethclient surface the swap path touches,
// extracted so allowance and broadcast logic is testable against stubs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Options struct {
	PollInterval  time.Duration
	StepTimeout   time.Duration
	GasMultiplier float64
}

func DefaultOptions() Options {
	return Options{
		PollInterval:  2 * time.Second,
		StepTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
	}
}

// Client owns the read-only connection handle shared by all requests.
type Client struct {
	backend Backend
	chainID *big.Int
	opts    Options
}

func Dial(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindInternal, "connect rpc", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindInternal, "read chain id", err)
	}
	return NewClient(eth, chainID, opts), nil
}

// NewClient wires an explicit backend; tests use this with stubs.
func NewClient(backend Backend, chainID *big.Int, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &Client{backend: backend, chainID: chainID, opts: opts}
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Receipt is the confirmation summary reported back to the caller.
type Receipt struct {
	Hash   string
	Block  uint64
	Status uint64
}

// SubmitAndConfirm signs, broadcasts and waits for one confirmation of a
// transaction to target. gasLimit zero defers to network gas estimation
// with the configured safety multiplier. The receipt is returned whatever
// its on-chain status; callers decide whether a revert is fatal.
func (c *Client) SubmitAndConfirm(ctx context.Context, txSigner signer.Signer, target common.Address, data []byte, value *big.Int, gasLimit uint64) (Receipt, error) {
	if txSigner == nil {
		return Receipt{}, swaperr.New(swaperr.KindSigningIdentityMissing, "no signing identity configured")
	}
	if value == nil {
		value = new(big.Int)
	}
	msg := ethereum.CallMsg{From: txSigner.Address(), To: &target, Value: value, Data: data}

	if gasLimit == 0 {
		estimated, err := c.backend.EstimateGas(ctx, msg)
		if err != nil {
			return Receipt{}, swaperr.Wrap(swaperr.KindBroadcastFailed, "estimate gas", err)
		}
		gasLimit = uint64(float64(estimated) * c.opts.GasMultiplier)
	}

	tipCap, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return Receipt{}, swaperr.Wrap(swaperr.KindBroadcastFailed, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := c.backend.PendingNonceAt(ctx, txSigner.Address())
	if err != nil {
		return Receipt{}, swaperr.Wrap(swaperr.KindBroadcastFailed, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := txSigner.SignTx(c.chainID, tx)
	if err != nil {
		return Receipt{}, swaperr.Wrap(swaperr.KindBroadcastFailed, "sign transaction", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return Receipt{}, swaperr.Wrap(swaperr.KindBroadcastFailed, "broadcast transaction", err)
	}
	hash := signed.Hash()

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return Receipt{Hash: hash.Hex()}, err
	}
	return Receipt{
		Hash:   hash.Hex(),
		Block:  receipt.BlockNumber.Uint64(),
		Status: receipt.Status,
	}, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.StepTimeout)
	defer cancel()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		// Transient polling failures and ethereum.NotFound are retried
		// until the timeout.
		select {
		case <-waitCtx.Done():
			return nil, swaperr.Wrap(swaperr.KindBroadcastFailed,
				fmt.Sprintf("timed out waiting for receipt of %s", hash.Hex()), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// DecodeHex parses 0x-prefixed or bare hex call data.
func DecodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
