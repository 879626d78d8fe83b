package swap

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/swapd/internal/aggregator"
	"github.com/ggonzalez94/swapd/internal/chain"
	"github.com/ggonzalez94/swapd/internal/chain/signer"
	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/trace"
	"github.com/ggonzalez94/swapd/internal/validate"
)

const (
	ModeUnsigned = "unsignedOnly"
	ModeSigned   = "signed"
)

// Request is one inbound swap order. Immutable once validated.
type Request struct {
	Wallet       string   `json:"wallet"`
	TokenFrom    string   `json:"tokenFrom"`
	TokenTo      string   `json:"tokenTo"`
	AmountWei    string   `json:"amountWei"`
	SlippageBps  int64    `json:"slippageBps"`
	ExcludeDEXs  []string `json:"excludeDexs"`
	UnsignedOnly bool     `json:"unsignedOnly"`
}

// Result is the terminal outcome of a successful orchestration.
type Result struct {
	Mode       string
	DestAmount string
	TxData     *aggregator.SwapTransaction // unsigned mode only
	Hash       string
	Block      uint64
	Status     uint64
}

// Quoter is the external pricing/build service surface the pipeline
// consumes.
type Quoter interface {
	GetRoute(ctx context.Context, req aggregator.RouteRequest) (aggregator.QuoteRoute, error)
	BuildSwapTx(ctx context.Context, req aggregator.BuildRequest) (aggregator.SwapTransaction, error)
}

// Executor is the chain write surface used in signed mode.
type Executor interface {
	EnsureAllowance(ctx context.Context, txSigner signer.Signer, token, spender common.Address, needed *big.Int) (bool, error)
	SubmitAndConfirm(ctx context.Context, txSigner signer.Signer, target common.Address, data []byte, value *big.Int, gasLimit uint64) (chain.Receipt, error)
}

// Orchestrator runs the swap pipeline:
// Validate -> Quote -> (conditionally) Allowance -> Build -> Execute.
// All collaborators are constructed at startup and read-only afterwards;
// each call is an independent, strictly sequential unit of work with no
// automatic retries at any stage.
type Orchestrator struct {
	quotes   Quoter
	executor Executor
	signer   signer.Signer
	chainID  int64
}

func NewOrchestrator(quotes Quoter, executor Executor, txSigner signer.Signer, chainID int64) *Orchestrator {
	return &Orchestrator{quotes: quotes, executor: executor, signer: txSigner, chainID: chainID}
}

type validated struct {
	Wallet    string
	TokenFrom string
	TokenTo   string
	AmountWei string
	amount    *big.Int
}

// Execute runs one swap request to a terminal state, recording every step
// on rec. The recorder always holds the trace accumulated up to the point
// of failure.
func (o *Orchestrator) Execute(ctx context.Context, req Request, rec *trace.Recorder) (*Result, error) {
	v, err := o.validateStage(req, rec)
	if err != nil {
		return nil, err
	}
	// Signed mode is rejected eagerly on signer mismatch so a request that
	// can never execute does not burn a quote/allowance cycle.
	if !req.UnsignedOnly {
		if err := o.checkSigner(v, rec); err != nil {
			return nil, err
		}
	}

	route, err := o.quoteStage(ctx, req, v, rec)
	if err != nil {
		return nil, err
	}

	escalated := false
	if !req.UnsignedOnly {
		escalated, err = o.allowanceStage(ctx, v, route, rec)
		if err != nil {
			return nil, err
		}
	}

	tx, err := o.buildStage(ctx, req, v, route, rec)
	if err != nil {
		return nil, err
	}

	return o.executeStage(ctx, req, v, route, tx, escalated, rec)
}

func (o *Orchestrator) validateStage(req Request, rec *trace.Recorder) (validated, error) {
	wallet, err := validate.Address("wallet", req.Wallet)
	if err != nil {
		return validated{}, err
	}
	tokenFrom, err := validate.Address("tokenFrom", req.TokenFrom)
	if err != nil {
		return validated{}, err
	}
	tokenTo, err := validate.Address("tokenTo", req.TokenTo)
	if err != nil {
		return validated{}, err
	}
	amount, err := validate.Amount(req.AmountWei)
	if err != nil {
		return validated{}, err
	}
	if err := validate.SlippageBps(req.SlippageBps); err != nil {
		return validated{}, err
	}
	parsed, _ := new(big.Int).SetString(amount, 10)

	rec.Add("validate.ok", map[string]any{
		"wallet":      wallet,
		"tokenFrom":   tokenFrom,
		"tokenTo":     tokenTo,
		"amountWei":   amount,
		"slippageBps": req.SlippageBps,
		"mode":        modeOf(req),
	})
	return validated{
		Wallet:    wallet,
		TokenFrom: tokenFrom,
		TokenTo:   tokenTo,
		AmountWei: amount,
		amount:    parsed,
	}, nil
}

func (o *Orchestrator) checkSigner(v validated, rec *trace.Recorder) error {
	if o.signer == nil || o.executor == nil {
		return swaperr.New(swaperr.KindSigningIdentityMissing,
			"signed mode requires a configured signing identity and chain connection")
	}
	signerAddr := o.signer.Address().Hex()
	if !strings.EqualFold(signerAddr, v.Wallet) {
		return swaperr.New(swaperr.KindWalletSignerMismatch,
			"configured signing identity does not match request wallet")
	}
	rec.Add("signer.ok", map[string]any{"address": signerAddr})
	return nil
}

func (o *Orchestrator) quoteStage(ctx context.Context, req Request, v validated, rec *trace.Recorder) (aggregator.QuoteRoute, error) {
	params := aggregator.RouteRequest{
		SrcToken:    v.TokenFrom,
		DestToken:   v.TokenTo,
		Amount:      v.AmountWei,
		ChainID:     o.chainID,
		UserAddress: v.Wallet,
		ExcludeDEXs: req.ExcludeDEXs,
		SlippageBps: req.SlippageBps,
	}
	rec.Add("quote.request", map[string]any{
		"srcToken":    params.SrcToken,
		"destToken":   params.DestToken,
		"amount":      params.Amount,
		"side":        "SELL",
		"network":     o.chainID,
		"userAddress": params.UserAddress,
		"excludeDEXS": strings.Join(params.ExcludeDEXs, ","),
		"slippage":    aggregator.PercentFromBps(params.SlippageBps),
	})

	route, err := o.quotes.GetRoute(ctx, params)
	if err != nil {
		rec.Add("quote.failed", failureData(err))
		return aggregator.QuoteRoute{}, err
	}
	rec.Add("quote.result", map[string]any{
		"destAmount":         route.DestAmount,
		"tokenTransferProxy": route.TokenTransferProxy,
	})
	return route, nil
}

func (o *Orchestrator) allowanceStage(ctx context.Context, v validated, route aggregator.QuoteRoute, rec *trace.Recorder) (bool, error) {
	token := common.HexToAddress(v.TokenFrom)
	spender := common.HexToAddress(route.TokenTransferProxy)
	rec.Add("allowance.check", map[string]any{
		"token":   token.Hex(),
		"owner":   v.Wallet,
		"spender": spender.Hex(),
		"needed":  v.AmountWei,
	})

	escalated, err := o.executor.EnsureAllowance(ctx, o.signer, token, spender, v.amount)
	if err != nil {
		rec.Add("allowance.failed", failureData(err))
		return false, err
	}
	if escalated {
		rec.Add("allowance.escalated", map[string]any{
			"spender":  spender.Hex(),
			"approved": "max-uint256",
		})
	} else {
		rec.Add("allowance.sufficient", nil)
	}
	return escalated, nil
}

func (o *Orchestrator) buildStage(ctx context.Context, req Request, v validated, route aggregator.QuoteRoute, rec *trace.Recorder) (aggregator.SwapTransaction, error) {
	rec.Add("build.request", map[string]any{
		"srcToken":  v.TokenFrom,
		"destToken": v.TokenTo,
		"srcAmount": v.AmountWei,
		"slippage":  aggregator.PercentFromBps(req.SlippageBps),
	})
	tx, err := o.quotes.BuildSwapTx(ctx, aggregator.BuildRequest{
		Route:       route,
		SrcToken:    v.TokenFrom,
		DestToken:   v.TokenTo,
		SrcAmount:   v.AmountWei,
		ChainID:     o.chainID,
		UserAddress: v.Wallet,
		SlippageBps: req.SlippageBps,
	})
	if err != nil {
		rec.Add("build.failed", failureData(err))
		return aggregator.SwapTransaction{}, err
	}
	rec.Add("build.result", map[string]any{
		"to":  tx.To,
		"gas": tx.Gas,
	})
	return tx, nil
}

func (o *Orchestrator) executeStage(ctx context.Context, req Request, v validated, route aggregator.QuoteRoute, tx aggregator.SwapTransaction, escalated bool, rec *trace.Recorder) (*Result, error) {
	if req.UnsignedOnly {
		rec.Add("execute.unsigned", map[string]any{"to": tx.To})
		txCopy := tx
		return &Result{
			Mode:       ModeUnsigned,
			DestAmount: route.DestAmount,
			TxData:     &txCopy,
		}, nil
	}

	data, err := chain.DecodeHex(tx.Data)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindIncompleteTransaction, "decode swap call data", err)
	}
	value, err := parseValue(tx.Value)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindIncompleteTransaction, "parse swap value", err)
	}

	rec.Add("broadcast.request", map[string]any{
		"to":    tx.To,
		"value": value.String(),
		"gas":   tx.Gas,
	})
	receipt, err := o.executor.SubmitAndConfirm(ctx, o.signer, common.HexToAddress(tx.To), data, value, tx.Gas)
	if err != nil {
		// An already-escalated allowance stays in effect on-chain; the
		// caller can retry the swap without re-approving.
		failure := failureData(err)
		failure["approvalEscalated"] = escalated
		if escalated {
			failure["note"] = "allowance escalation remains in effect; retry does not need re-approval"
		}
		rec.Add("swap.failed", failure)
		return nil, err
	}

	rec.Add("swap.confirmed", map[string]any{
		"hash":   receipt.Hash,
		"block":  receipt.Block,
		"status": receipt.Status,
	})
	return &Result{
		Mode:       ModeSigned,
		DestAmount: route.DestAmount,
		Hash:       receipt.Hash,
		Block:      receipt.Block,
		Status:     receipt.Status,
	}, nil
}

func modeOf(req Request) string {
	if req.UnsignedOnly {
		return ModeUnsigned
	}
	return ModeSigned
}

func failureData(err error) map[string]any {
	data := map[string]any{"error": err.Error()}
	if e, ok := swaperr.As(err); ok {
		data["kind"] = string(e.Kind)
		if e.Details != "" {
			data["upstreamResponse"] = e.Details
		}
	}
	return data
}

// parseValue reads the builder-provided native value, which may arrive as
// a decimal string, a 0x hex string, or be absent.
func parseValue(raw string) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return new(big.Int), nil
	}
	base := 10
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
		base = 16
	}
	v, ok := new(big.Int).SetString(clean, base)
	if !ok {
		return nil, swaperr.New(swaperr.KindIncompleteTransaction, "invalid native value in built transaction")
	}
	return v, nil
}
