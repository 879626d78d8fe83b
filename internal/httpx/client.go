package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/version"
)

// Client is a thin JSON round-trip helper. It performs no retries: a failed
// call surfaces immediately so the orchestration can abort and report.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  version.Name + "/" + version.Version,
	}
}

// DoJSON executes req and decodes a 2xx JSON body into out. Any non-2xx
// response becomes an UpstreamError carrying the upstream status code and
// raw body.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) error {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return mapNetError(err)
	}
	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return swaperr.Wrap(swaperr.KindInternal, "read upstream response", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return swaperr.Upstream(resp.StatusCode, buf)
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return swaperr.Upstream(resp.StatusCode, buf)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		upErr := swaperr.Upstream(resp.StatusCode, buf)
		upErr.Message = "decode upstream JSON"
		upErr.Cause = err
		return upErr
	}
	return nil
}

// GetJSON builds and executes a GET against url.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return swaperr.Wrap(swaperr.KindInternal, "build request", err)
	}
	return c.DoJSON(ctx, req, out)
}

// PostJSON marshals body and executes a POST against url.
func (c *Client) PostJSON(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return swaperr.Wrap(swaperr.KindInternal, "encode request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return swaperr.Wrap(swaperr.KindInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.DoJSON(ctx, req, out)
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return swaperr.Wrap(swaperr.KindInternal, "upstream timeout", err)
	}
	return swaperr.Wrap(swaperr.KindInternal, "upstream request failed", err)
}
