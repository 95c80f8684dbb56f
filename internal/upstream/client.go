// Package upstream implements HTTP clients for the remote APIs the
// aggregation pipeline consumes: the pool listing, the chain-registry asset
// list, the price feed, the liquidity history feed, and the chain LCD.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"alloydash/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// Default endpoints for the osmosis-1 deployment. All of them are
// overridable through Config.
const (
	DefaultPoolsURL      = "https://app.osmosis.zone/api/edge-trpc-pools/pools.getPools?input=%7B%22json%22%3A%7B%22limit%22%3A100%2C%22types%22%3A%5B%22cosmwasm%22%2C%22cosmwasm-alloyed%22%5D%2C%22minLiquidityUsd%22%3A10%7D%7D"
	DefaultAssetListURL  = "https://raw.githubusercontent.com/osmosis-labs/assetlists/main/osmosis-1/generated/chain_registry/assetlist.json"
	DefaultPriceURL      = "https://sqs.osmosis.zone/tokens/prices?base={denoms}"
	DefaultAssetPriceURL = "https://app.osmosis.zone/api/edge-trpc-assets/assets.getAssetPrice?input=%7B%22json%22:%7B%22coinMinimalDenom%22:%22{denom}%22%7D%7D"
	DefaultLiquidityURL  = "https://public-osmosis-api.numia.xyz/pools/liquidity/{poolId}/over_time"
	DefaultLCDBaseURL    = "https://lcd.osmosis.zone"
	DefaultBaseAppURL    = "https://app.osmosis.zone"
)

// Config holds the endpoint surface of a Client. Zero fields fall back to
// the osmosis-1 defaults.
type Config struct {
	PoolsURL      string
	AssetListURL  string
	PriceURL      string // template with a {denoms} placeholder
	AssetPriceURL string // template with a {denom} placeholder
	LiquidityURL  string // template with a {poolId} placeholder
	LCDBaseURL    string
}

func (c *Config) applyDefaults() {
	if c.PoolsURL == "" {
		c.PoolsURL = DefaultPoolsURL
	}
	if c.AssetListURL == "" {
		c.AssetListURL = DefaultAssetListURL
	}
	if c.PriceURL == "" {
		c.PriceURL = DefaultPriceURL
	}
	if c.AssetPriceURL == "" {
		c.AssetPriceURL = DefaultAssetPriceURL
	}
	if c.LiquidityURL == "" {
		c.LiquidityURL = DefaultLiquidityURL
	}
	if c.LCDBaseURL == "" {
		c.LCDBaseURL = DefaultLCDBaseURL
	}
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client is an HTTP JSON client with bounded retries and exponential
// backoff, shared by all endpoint methods.
type Client struct {
	cfg         Config
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets the maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new upstream client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:         cfg,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON performs a GET with retries and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

// postJSON performs a POST with a JSON body and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, encoded, out)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordUpstreamRequest(endpointLabel(url), time.Since(start).Seconds(), err)
	}()

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &StatusError{Code: resp.StatusCode, Body: "rate limited"}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			// Client errors are not transient; do not retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return &StatusError{Code: resp.StatusCode, Body: truncate(respBody, 256)}
			}
			lastErr = &StatusError{Code: resp.StatusCode, Body: truncate(respBody, 256)}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// endpointLabel reduces a request URL to its path for metric labels.
func endpointLabel(url string) string {
	u, err := neturl.Parse(url)
	if err != nil {
		return "invalid"
	}
	return u.Path
}
