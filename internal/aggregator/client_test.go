package aggregator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/httpx"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(httpx.New(2*time.Second), srv.URL, "swapd"), srv
}

func TestGetRouteQueryParameters(t *testing.T) {
	var query map[string][]string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"priceRoute":{"destAmount":"42","tokenTransferProxy":"0xproxy"}}`))
	})

	_, err := c.GetRoute(context.Background(), RouteRequest{
		SrcToken:    "0xsrc",
		DestToken:   "0xdst",
		Amount:      "18703660",
		ChainID:     1,
		UserAddress: "0xwallet",
		ExcludeDEXs: []string{"UniswapV2", "Balancer"},
		SlippageBps: 120,
	})
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}

	want := map[string]string{
		"srcToken":    "0xsrc",
		"destToken":   "0xdst",
		"amount":      "18703660",
		"side":        "SELL",
		"network":     "1",
		"userAddress": "0xwallet",
		"excludeDEXS": "UniswapV2,Balancer",
		"slippage":    "1.2000",
	}
	for k, v := range want {
		if got := query[k]; len(got) != 1 || got[0] != v {
			t.Fatalf("param %s: got %v want %s", k, got, v)
		}
	}
}

func TestGetRouteOmitsEmptyExclusions(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if _, present := r.URL.Query()["excludeDEXS"]; present {
			t.Errorf("excludeDEXS must be omitted for an empty list")
		}
		_, _ = w.Write([]byte(`{"destAmount":"42","tokenTransferProxy":"0xproxy"}`))
	})
	if _, err := c.GetRoute(context.Background(), RouteRequest{SlippageBps: 50, ChainID: 1}); err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
}

func TestGetRouteNoLiquidityIsNoRoute(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"priceRoute":{"bestRoute":[]}}`))
	})
	_, err := c.GetRoute(context.Background(), RouteRequest{SlippageBps: 50, ChainID: 1})
	if !swaperr.Is(err, swaperr.KindNoRoute) {
		t.Fatalf("expected NoRoute, got %v", err)
	}
}

func TestGetRouteUpstreamRejection(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	})
	_, err := c.GetRoute(context.Background(), RouteRequest{SlippageBps: 50, ChainID: 1})
	e, ok := swaperr.As(err)
	if !ok || e.Kind != swaperr.KindUpstream {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if e.Details != `{"error":"invalid token"}` {
		t.Fatalf("upstream body not preserved: %s", e.Details)
	}
}

func TestBuildSwapTxPassesRouteThroughUnmodified(t *testing.T) {
	routeDoc := `{"destAmount":"42","tokenTransferProxy":"0xproxy","bestRoute":[{"exchange":"X","order":3}]}`
	var received map[string]json.RawMessage
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/137" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		buf, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(buf, &received); err != nil {
			t.Errorf("decode build body: %v", err)
		}
		_, _ = w.Write([]byte(`{"to":"0xrouter","data":"0xdeadbeef","value":"0","gas":210000}`))
	})

	route, err := normalizeRoute([]byte(`{"priceRoute":` + routeDoc + `}`))
	if err != nil {
		t.Fatalf("normalizeRoute failed: %v", err)
	}
	tx, err := c.BuildSwapTx(context.Background(), BuildRequest{
		Route:       route,
		SrcToken:    "0xsrc",
		DestToken:   "0xdst",
		SrcAmount:   "18703660",
		ChainID:     137,
		UserAddress: "0xwallet",
		SlippageBps: 120,
	})
	if err != nil {
		t.Fatalf("BuildSwapTx failed: %v", err)
	}
	if tx.To != "0xrouter" || tx.Data != "0xdeadbeef" || tx.Gas != 210000 {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	if string(received["priceRoute"]) != routeDoc {
		t.Fatalf("priceRoute mutated in transit:\n got %s\nwant %s", received["priceRoute"], routeDoc)
	}
	if string(received["slippage"]) != `"1.2000"` {
		t.Fatalf("slippage not sent as 4dp percent: %s", received["slippage"])
	}
	if _, present := received["destAmount"]; present {
		t.Fatal("build body must never carry a destination-amount target")
	}
}

func TestBuildSwapTxIncompleteResponse(t *testing.T) {
	cases := []string{
		`{"data":"0xdeadbeef"}`,
		`{"to":"0xrouter"}`,
		`{"to":"  ","data":""}`,
	}
	for _, resp := range cases {
		body := resp
		c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		route := QuoteRoute{Raw: json.RawMessage(`{}`), DestAmount: "1", TokenTransferProxy: "0xproxy"}
		_, err := c.BuildSwapTx(context.Background(), BuildRequest{Route: route, ChainID: 1, SlippageBps: 50})
		if !swaperr.Is(err, swaperr.KindIncompleteTransaction) {
			t.Fatalf("%s: expected IncompleteTransaction, got %v", resp, err)
		}
	}
}
