package aggregator

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	swaperr "github.com/ggonzalez94/swapd/internal/errors"
)

// QuoteRoute is the pricing service's routing proposal. Raw is the exact
// payload returned by the service and must reach the transaction-build call
// unmodified; mutating or re-deriving it invalidates the quote. DestAmount
// and TokenTransferProxy are the only fields the orchestration depends on.
type QuoteRoute struct {
	Raw                json.RawMessage
	DestAmount         string
	TokenTransferProxy string
}

// SwapTransaction is the ready-to-sign payload produced by the build call.
// Produced once per request and consumed at most once.
type SwapTransaction struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value,omitempty"`
	Gas      uint64 `json:"gas,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
	ChainID  int64  `json:"chainId,omitempty"`
}

type routeEnvelope struct {
	PriceRoute json.RawMessage `json:"priceRoute"`
}

type routeFields struct {
	DestAmount         any    `json:"destAmount"`
	TokenTransferProxy string `json:"tokenTransferProxy"`
}

// normalizeRoute extracts the route document from a quote response body.
// The route may appear under a `priceRoute` wrapper or at the top level;
// the wrapper takes precedence when both are present. A response whose
// normalized route lacks a destination amount or transfer-proxy address is
// a NoRoute condition (no liquidity), not a transport error.
func normalizeRoute(body []byte) (QuoteRoute, error) {
	doc := body
	var env routeEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.PriceRoute) > 0 && string(env.PriceRoute) != "null" {
		doc = env.PriceRoute
	}

	// UseNumber keeps large wei amounts exact when the service emits the
	// destination amount as a JSON number.
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var fields routeFields
	if err := dec.Decode(&fields); err != nil {
		return QuoteRoute{}, noRoute(body)
	}
	destAmount := numericString(fields.DestAmount)
	if destAmount == "" || strings.TrimSpace(fields.TokenTransferProxy) == "" {
		return QuoteRoute{}, noRoute(body)
	}
	return QuoteRoute{
		Raw:                json.RawMessage(doc),
		DestAmount:         destAmount,
		TokenTransferProxy: strings.TrimSpace(fields.TokenTransferProxy),
	}, nil
}

// noRoute keeps the raw unusable response on the error so failure traces
// can show exactly what the pricing service returned.
func noRoute(body []byte) error {
	err := swaperr.New(swaperr.KindNoRoute, "no route found for requested pair")
	err.Details = string(body)
	return err
}

// numericString renders a JSON value that may arrive as either a string or
// a number into its decimal string form.
func numericString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// PercentFromBps converts basis points to the decimal percentage string the
// pricing service expects, with fixed 4-decimal precision.
func PercentFromBps(bps int64) string {
	return strconv.FormatFloat(float64(bps)/100, 'f', 4, 64)
}
