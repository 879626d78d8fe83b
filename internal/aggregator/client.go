package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/httpx"
)

const defaultBase = "https://api.paraswap.io"

// Client talks to the external liquidity-aggregation service: price-route
// discovery and ready-to-sign transaction construction. It never signs or
// broadcasts anything.
type Client struct {
	http    *httpx.Client
	baseURL string
	partner string
}

func New(httpClient *httpx.Client, baseURL, partner string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBase
	}
	return &Client{http: httpClient, baseURL: base, partner: partner}
}

// RouteRequest describes one SELL-side quote lookup. Amount is the source
// amount in base units; SlippageBps is the tolerance in basis points.
type RouteRequest struct {
	SrcToken    string
	DestToken   string
	Amount      string
	ChainID     int64
	UserAddress string
	ExcludeDEXs []string
	SlippageBps int64
}

// GetRoute queries the pricing service for an exchange route and its
// expected output amount.
func (c *Client) GetRoute(ctx context.Context, req RouteRequest) (QuoteRoute, error) {
	vals := url.Values{}
	vals.Set("srcToken", req.SrcToken)
	vals.Set("destToken", req.DestToken)
	vals.Set("amount", req.Amount)
	vals.Set("side", "SELL")
	vals.Set("network", strconv.FormatInt(req.ChainID, 10))
	vals.Set("userAddress", req.UserAddress)
	vals.Set("slippage", PercentFromBps(req.SlippageBps))
	// An empty exclusion list omits the parameter entirely: some backends
	// treat an empty string as "exclude everything".
	if len(req.ExcludeDEXs) > 0 {
		vals.Set("excludeDEXS", strings.Join(req.ExcludeDEXs, ","))
	}

	var body json.RawMessage
	if err := c.http.GetJSON(ctx, fmt.Sprintf("%s/prices?%s", c.baseURL, vals.Encode()), &body); err != nil {
		return QuoteRoute{}, err
	}
	return normalizeRoute(body)
}

type buildRequestBody struct {
	PriceRoute  json.RawMessage `json:"priceRoute"`
	SrcToken    string          `json:"srcToken"`
	DestToken   string          `json:"destToken"`
	SrcAmount   string          `json:"srcAmount"`
	UserAddress string          `json:"userAddress"`
	// Slippage is a decimal percentage. A destination-amount target is
	// deliberately never part of this body: the two are mutually exclusive
	// upstream parameters and sending both is a request error.
	Slippage string `json:"slippage"`
	Partner  string `json:"partner,omitempty"`
}

// BuildRequest describes one transaction-build call. Route must be the
// untouched QuoteRoute from GetRoute.
type BuildRequest struct {
	Route       QuoteRoute
	SrcToken    string
	DestToken   string
	SrcAmount   string
	ChainID     int64
	UserAddress string
	SlippageBps int64
}

// BuildSwapTx requests a ready-to-sign transaction payload consistent with
// the quoted route.
func (c *Client) BuildSwapTx(ctx context.Context, req BuildRequest) (SwapTransaction, error) {
	body := buildRequestBody{
		PriceRoute:  req.Route.Raw,
		SrcToken:    req.SrcToken,
		DestToken:   req.DestToken,
		SrcAmount:   req.SrcAmount,
		UserAddress: req.UserAddress,
		Slippage:    PercentFromBps(req.SlippageBps),
		Partner:     c.partner,
	}

	var tx SwapTransaction
	endpoint := fmt.Sprintf("%s/transactions/%d", c.baseURL, req.ChainID)
	if err := c.http.PostJSON(ctx, endpoint, body, &tx); err != nil {
		return SwapTransaction{}, err
	}
	if strings.TrimSpace(tx.To) == "" || strings.TrimSpace(tx.Data) == "" {
		return SwapTransaction{}, swaperr.New(swaperr.KindIncompleteTransaction,
			"build response missing destination address or call data")
	}
	return tx, nil
}
