package server

import (
	"github.com/ggonzalez94/swapd/internal/aggregator"
	"github.com/ggonzalez94/swapd/internal/trace"
)

// SwapRequest is the POST /v1/swap body.
type SwapRequest struct {
	Wallet       string   `json:"wallet"`
	TokenFrom    string   `json:"tokenFrom"`
	TokenTo      string   `json:"tokenTo"`
	AmountWei    string   `json:"amountWei"`
	SlippageBps  int64    `json:"slippageBps"`
	ExcludeDEXs  []string `json:"excludeDexs,omitempty"`
	UnsignedOnly bool     `json:"unsignedOnly"`
}

// SwapResponse is returned for a completed swap attempt. Unsigned mode
// fills txData; signed mode fills hash, block and status.
type SwapResponse struct {
	AttemptID  string                      `json:"attemptId"`
	Mode       string                      `json:"mode"`
	DestAmount string                      `json:"destAmount"`
	TxData     *aggregator.SwapTransaction `json:"txData,omitempty"`
	TxHash     string                      `json:"hash,omitempty"`
	Block      uint64                      `json:"block,omitempty"`
	TxStatus   uint64                      `json:"status,omitempty"`
	Trace      []trace.Entry               `json:"logs"`
}

// ErrorResponse is the uniform JSON error body. Kind carries the stable
// error code; logs hold the steps recorded before the failure.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Kind    string        `json:"kind,omitempty"`
	Code    int           `json:"code"`
	Details string        `json:"details,omitempty"`
	Trace   []trace.Entry `json:"logs,omitempty"`
}

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}
