// Package terra is a thin REST client for the Terra LCD and FCD endpoints the
// bots consume: contract queries, bank balances, market swap rates, treasury
// tax, account sequence, fee estimation and broadcast.
package terra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// Client is the LCD REST client.
type Client struct {
	baseURL    string
	chainID    string
	httpClient *http.Client
}

// NewClient creates an LCD client.
//
// baseURL is the LCD root, e.g. "https://lcd.terra.dev". A zero timeout
// falls back to 30 seconds.
func NewClient(baseURL, chainID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		chainID: chainID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ChainID returns the chain id transactions are signed for.
func (c *Client) ChainID() string { return c.chainID }

// lcdResponse is the legacy LCD envelope around every query result.
type lcdResponse[T any] struct {
	Height string `json:"height"`
	Result T      `json:"result"`
}

// uintString decodes integers the LCD sends either as JSON numbers or as
// decimal strings.
type uintString uint64

func (u *uintString) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: integer %q", domain.ErrMalformedResponse, s)
	}
	*u = uintString(n)
	return nil
}

// getResult issues a GET and decodes the "result" field of the envelope.
func getResult[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out lcdResponse[T]
	body, err := c.doGet(ctx, path)
	if err != nil {
		return out.Result, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out.Result, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return out.Result, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+path, nil)
}

func (c *Client) doPost(ctx context.Context, path string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+path, body)
}

func (c *Client) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	return doRequest(ctx, c.httpClient, method, url, body)
}

func doRequest(ctx context.Context, hc *http.Client, method, url string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.MarkTransient(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, domain.MarkTransient(fmt.Errorf("read response: %w", err))
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors. Throttling and
// server-side failures are transient; other 4xx answers are chain-side
// rejections, which the scheduler also retries after the recovery interval.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := truncate(string(body), 512)
	switch {
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return domain.MarkTransient(fmt.Errorf("HTTP %d: %s", statusCode, bodyStr))
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrChainResponse, statusCode, bodyStr)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
