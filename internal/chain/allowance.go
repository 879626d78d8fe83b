package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ggonzalez94/swapd/internal/chain/signer"
	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/registry"
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Allowance reads the amount spender is currently authorized to move on
// behalf of owner for the given token.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindInternal, "pack allowance calldata", err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindInternal, "read allowance", err)
	}
	values, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(values) != 1 {
		return nil, swaperr.Wrap(swaperr.KindInternal, "decode allowance result", err)
	}
	current, ok := values[0].(*big.Int)
	if !ok {
		return nil, swaperr.New(swaperr.KindInternal, "unexpected allowance result type")
	}
	return current, nil
}

// EnsureAllowance guarantees spender may move at least needed of token on
// behalf of the signing identity. A sufficient existing allowance is a
// no-op with zero chain writes. An insufficient one is escalated to the
// maximum representable amount, amortizing future calls, and the approval
// is waited to one confirmation before returning escalated=true.
//
// The check-then-act read against live chain state is racy under
// concurrent spenders of the same wallet; that race is accepted (one
// logical owner per wallet in normal operation) and not retried here.
func (c *Client) EnsureAllowance(ctx context.Context, txSigner signer.Signer, token, spender common.Address, needed *big.Int) (bool, error) {
	owner := txSigner.Address()
	current, err := c.Allowance(ctx, token, owner, spender)
	if err != nil {
		return false, swaperr.Wrap(swaperr.KindApprovalFailed, "check current allowance", err)
	}
	if current.Cmp(needed) >= 0 {
		return false, nil
	}

	data, err := erc20ABI.Pack("approve", spender, math.MaxBig256)
	if err != nil {
		return false, swaperr.Wrap(swaperr.KindApprovalFailed, "pack approve calldata", err)
	}
	receipt, err := c.SubmitAndConfirm(ctx, txSigner, token, data, nil, 0)
	if err != nil {
		return false, swaperr.Wrap(swaperr.KindApprovalFailed, "submit approval", err)
	}
	if receipt.Status != 1 {
		return false, swaperr.New(swaperr.KindApprovalFailed, "approval transaction reverted on-chain")
	}
	return true, nil
}
