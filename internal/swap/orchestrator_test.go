package swap

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/swapd/internal/aggregator"
	"github.com/ggonzalez94/swapd/internal/chain"
	"github.com/ggonzalez94/swapd/internal/chain/signer"
	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/trace"
)

const (
	testWallet = "0x903146AD0B41aBc53D8A8cc166fb56b41bC0e90e"
	testSrc    = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	testDst    = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	testProxy  = "0x216B4B4Ba9F3e719726886d34a177484278Bfcae"
)

type stubQuoter struct {
	routeCalls int
	buildCalls int
	routeErr   error
	buildErr   error
	route      aggregator.QuoteRoute
	tx         aggregator.SwapTransaction
	lastRoute  aggregator.RouteRequest
	lastBuild  aggregator.BuildRequest
}

func (s *stubQuoter) GetRoute(_ context.Context, req aggregator.RouteRequest) (aggregator.QuoteRoute, error) {
	s.routeCalls++
	s.lastRoute = req
	if s.routeErr != nil {
		return aggregator.QuoteRoute{}, s.routeErr
	}
	return s.route, nil
}

func (s *stubQuoter) BuildSwapTx(_ context.Context, req aggregator.BuildRequest) (aggregator.SwapTransaction, error) {
	s.buildCalls++
	s.lastBuild = req
	if s.buildErr != nil {
		return aggregator.SwapTransaction{}, s.buildErr
	}
	return s.tx, nil
}

type stubExecutor struct {
	allowanceCalls int
	submitCalls    int
	escalate       bool
	allowanceErr   error
	submitErr      error
	receipt        chain.Receipt
	lastSpender    common.Address
	lastNeeded     *big.Int
	lastTarget     common.Address
	lastValue      *big.Int
	lastGasLimit   uint64
}

func (s *stubExecutor) EnsureAllowance(_ context.Context, _ signer.Signer, _, spender common.Address, needed *big.Int) (bool, error) {
	s.allowanceCalls++
	s.lastSpender = spender
	s.lastNeeded = needed
	if s.allowanceErr != nil {
		return false, s.allowanceErr
	}
	return s.escalate, nil
}

func (s *stubExecutor) SubmitAndConfirm(_ context.Context, _ signer.Signer, target common.Address, _ []byte, value *big.Int, gasLimit uint64) (chain.Receipt, error) {
	s.submitCalls++
	s.lastTarget = target
	s.lastValue = value
	s.lastGasLimit = gasLimit
	if s.submitErr != nil {
		return chain.Receipt{}, s.submitErr
	}
	return s.receipt, nil
}

type fixedSigner struct {
	addr common.Address
}

func (f fixedSigner) Address() common.Address { return f.addr }

func (f fixedSigner) SignTx(_ *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

func goodRoute() aggregator.QuoteRoute {
	return aggregator.QuoteRoute{
		Raw:                []byte(`{"destAmount":"53212","tokenTransferProxy":"` + testProxy + `"}`),
		DestAmount:         "53212",
		TokenTransferProxy: testProxy,
	}
}

func goodTx() aggregator.SwapTransaction {
	return aggregator.SwapTransaction{
		To:    "0x0000000000000000000000000000000000000099",
		Data:  "0xdeadbeef",
		Value: "0",
		Gas:   210000,
	}
}

func baseRequest(unsigned bool) Request {
	return Request{
		Wallet:       testWallet,
		TokenFrom:    testSrc,
		TokenTo:      testDst,
		AmountWei:    "18703660",
		SlippageBps:  120,
		UnsignedOnly: unsigned,
	}
}

func tags(rec *trace.Recorder) []string {
	entries := rec.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Tag
	}
	return out
}

func findEntry(t *testing.T, rec *trace.Recorder, tag string) trace.Entry {
	t.Helper()
	for _, e := range rec.Entries() {
		if e.Tag == tag {
			return e
		}
	}
	t.Fatalf("trace entry %q not found in %v", tag, tags(rec))
	return trace.Entry{}
}

func TestUnsignedSwapSkipsChainWork(t *testing.T) {
	quoter := &stubQuoter{route: goodRoute(), tx: goodTx()}
	executor := &stubExecutor{}
	orch := NewOrchestrator(quoter, executor, nil, 1)
	rec := trace.New()

	res, err := orch.Execute(context.Background(), baseRequest(true), rec)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Mode != ModeUnsigned {
		t.Fatalf("unexpected mode %q", res.Mode)
	}
	if res.TxData == nil || res.TxData.To != goodTx().To {
		t.Fatalf("missing unsigned payload: %+v", res.TxData)
	}
	if res.DestAmount != "53212" {
		t.Fatalf("unexpected dest amount %q", res.DestAmount)
	}
	if executor.allowanceCalls != 0 || executor.submitCalls != 0 {
		t.Fatalf("unsigned mode touched the chain: allowance=%d submit=%d",
			executor.allowanceCalls, executor.submitCalls)
	}
	if quoter.buildCalls != 1 {
		t.Fatalf("build called %d times", quoter.buildCalls)
	}
	findEntry(t, rec, "execute.unsigned")
}

func TestSignedSwapFullPipeline(t *testing.T) {
	quoter := &stubQuoter{route: goodRoute(), tx: goodTx()}
	executor := &stubExecutor{
		escalate: true,
		receipt:  chain.Receipt{Hash: "0xabc", Block: 123, Status: 1},
	}
	orch := NewOrchestrator(quoter, executor, fixedSigner{common.HexToAddress(testWallet)}, 1)
	rec := trace.New()

	res, err := orch.Execute(context.Background(), baseRequest(false), rec)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Mode != ModeSigned || res.Hash != "0xabc" || res.Block != 123 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if executor.lastSpender != common.HexToAddress(testProxy) {
		t.Fatalf("allowance checked against wrong spender: %s", executor.lastSpender)
	}
	if executor.lastNeeded.String() != "18703660" {
		t.Fatalf("unexpected needed amount: %s", executor.lastNeeded)
	}
	if executor.lastGasLimit != 210000 {
		t.Fatalf("builder gas not forwarded: %d", executor.lastGasLimit)
	}
	findEntry(t, rec, "allowance.escalated")
	findEntry(t, rec, "swap.confirmed")

	got := tags(rec)
	want := []string{"validate.ok", "signer.ok", "quote.request", "quote.result",
		"allowance.check", "allowance.escalated", "build.request", "build.result",
		"broadcast.request", "swap.confirmed"}
	if len(got) != len(want) {
		t.Fatalf("trace tags %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trace order mismatch at %d: %v", i, got)
		}
	}
}

func TestSignerMismatchBeforeAnyNetworkCall(t *testing.T) {
	quoter := &stubQuoter{route: goodRoute(), tx: goodTx()}
	executor := &stubExecutor{}
	other := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	orch := NewOrchestrator(quoter, executor, fixedSigner{other}, 1)

	_, err := orch.Execute(context.Background(), baseRequest(false), trace.New())
	if !swaperr.Is(err, swaperr.KindWalletSignerMismatch) {
		t.Fatalf("expected WalletSignerMismatch, got %v", err)
	}
	if quoter.routeCalls != 0 || quoter.buildCalls != 0 || executor.allowanceCalls != 0 {
		t.Fatal("rejected request still reached external services")
	}
}

func TestSignerMatchIsCaseInsensitive(t *testing.T) {
	quoter := &stubQuoter{route: goodRoute(), tx: goodTx()}
	executor := &stubExecutor{receipt: chain.Receipt{Hash: "0xabc", Status: 1}}
	orch := NewOrchestrator(quoter, executor, fixedSigner{common.HexToAddress(testWallet)}, 1)

	req := baseRequest(false)
	req.Wallet = strings.ToLower(testWallet)
	if _, err := orch.Execute(context.Background(), req, trace.New()); err != nil {
		t.Fatalf("lowercased wallet rejected: %v", err)
	}
}

func TestSignedModeWithoutSigner(t *testing.T) {
	quoter := &stubQuoter{route: goodRoute(), tx: goodTx()}
	orch := NewOrchestrator(quoter, nil, nil, 1)

	_, err := orch.Execute(context.Background(), baseRequest(false), trace.New())
	if !swaperr.Is(err, swaperr.KindSigningIdentityMissing) {
		t.Fatalf("expected SigningIdentityMissing, got %v", err)
	}
	if quoter.routeCalls != 0 {
		t.Fatal("quote requested despite missing signer")
	}
}

func TestValidationErrorsShortCircuit(t *testing.T) {
	quoter := &stubQuoter{route: goodRoute(), tx: goodTx()}
	orch := NewOrchestrator(quoter, &stubExecutor{}, nil, 1)

	cases := []struct {
		name   string
		mutate func(*Request)
		kind   swaperr.Kind
	}{
		{"bad wallet", func(r *Request) { r.Wallet = "nope" }, swaperr.KindInvalidAddress},
		{"bad token", func(r *Request) { r.TokenFrom = "0x123" }, swaperr.KindInvalidAddress},
		{"negative amount", func(r *Request) { r.AmountWei = "-5" }, swaperr.KindInvalidAmount},
		{"decimal amount", func(r *Request) { r.AmountWei = "1.5" }, swaperr.KindInvalidAmount},
		{"zero slippage", func(r *Request) { r.SlippageBps = 0 }, swaperr.KindInvalidSlippage},
		{"excessive slippage", func(r *Request) { r.SlippageBps = 2001 }, swaperr.KindInvalidSlippage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := baseRequest(true)
			tc.mutate(&req)
			_, err := orch.Execute(context.Background(), req, trace.New())
			if !swaperr.Is(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
		})
	}
	if quoter.routeCalls != 0 {
		t.Fatal("invalid request reached the pricing service")
	}
}

func TestNoRouteKeepsRawResponseInTrace(t *testing.T) {
	rawBody := `{"error":"No routes found with enough liquidity"}`
	noRouteErr := swaperr.New(swaperr.KindNoRoute, "no route found for requested pair")
	noRouteErr.Details = rawBody
	quoter := &stubQuoter{routeErr: noRouteErr}
	orch := NewOrchestrator(quoter, &stubExecutor{}, nil, 1)
	rec := trace.New()

	_, err := orch.Execute(context.Background(), baseRequest(true), rec)
	if !swaperr.Is(err, swaperr.KindNoRoute) {
		t.Fatalf("expected NoRoute, got %v", err)
	}
	entry := findEntry(t, rec, "quote.failed")
	if entry.Data["upstreamResponse"] != rawBody {
		t.Fatalf("raw response missing from trace: %+v", entry.Data)
	}
	if quoter.buildCalls != 0 {
		t.Fatal("build attempted after failed quote")
	}
}

func TestBroadcastFailureKeepsEscalationInTrace(t *testing.T) {
	quoter := &stubQuoter{route: goodRoute(), tx: goodTx()}
	executor := &stubExecutor{
		escalate:  true,
		submitErr: swaperr.New(swaperr.KindBroadcastFailed, "send swap transaction"),
	}
	orch := NewOrchestrator(quoter, executor, fixedSigner{common.HexToAddress(testWallet)}, 1)
	rec := trace.New()

	_, err := orch.Execute(context.Background(), baseRequest(false), rec)
	if !swaperr.Is(err, swaperr.KindBroadcastFailed) {
		t.Fatalf("expected BroadcastFailed, got %v", err)
	}
	entry := findEntry(t, rec, "swap.failed")
	if entry.Data["approvalEscalated"] != true {
		t.Fatalf("escalation not reflected in failure trace: %+v", entry.Data)
	}
	findEntry(t, rec, "allowance.escalated")
}

func TestBuildRequestCarriesRouteVerbatim(t *testing.T) {
	route := goodRoute()
	quoter := &stubQuoter{route: route, tx: goodTx()}
	orch := NewOrchestrator(quoter, &stubExecutor{}, nil, 1)

	if _, err := orch.Execute(context.Background(), baseRequest(true), trace.New()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(quoter.lastBuild.Route.Raw) != string(route.Raw) {
		t.Fatal("route payload mutated between quote and build")
	}
	if quoter.lastBuild.SlippageBps != 120 {
		t.Fatalf("slippage not forwarded: %d", quoter.lastBuild.SlippageBps)
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		err  bool
	}{
		{"", "0", false},
		{"0", "0", false},
		{"18703660", "18703660", false},
		{"0xde0b6b3a7640000", "1000000000000000000", false},
		{"bogus", "", true},
	}
	for _, tc := range cases {
		got, err := parseValue(tc.raw)
		if tc.err {
			if err == nil {
				t.Fatalf("parseValue(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseValue(%q) failed: %v", tc.raw, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parseValue(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}
