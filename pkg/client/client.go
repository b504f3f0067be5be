package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StrathCole/price-aggregator/pkg/server/aggregator"
	"github.com/StrathCole/price-aggregator/pkg/server/api"
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
	"github.com/StrathCole/price-aggregator/pkg/version"
)

// Client fetches prices and stats from a price aggregator.
type Client interface {
	GetPrices(ctx context.Context, symbols []string, forceRefresh bool) (map[string]sources.PriceView, []string, error)
	GetStats(ctx context.Context) (aggregator.Stats, error)
}

// HTTPClient implements Client using HTTP requests
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new HTTP price client
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetPrices fetches prices for symbols. Symbols the server could not
// resolve are returned separately; that is not an error.
func (c *HTTPClient) GetPrices(ctx context.Context, symbols []string, forceRefresh bool) (map[string]sources.PriceView, []string, error) {
	if len(symbols) == 0 {
		return nil, nil, ErrNoSymbols
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	if forceRefresh {
		q.Set("force_refresh", "true")
	}

	var body api.PricesResponse
	if err := c.get(ctx, "/v1/prices?"+q.Encode(), &body); err != nil {
		return nil, nil, err
	}
	if body.Prices == nil {
		body.Prices = map[string]sources.PriceView{}
	}

	return body.Prices, body.Unresolved, nil
}

// GetStats fetches cache and source health statistics
func (c *HTTPClient) GetStats(ctx context.Context) (aggregator.Stats, error) {
	var stats aggregator.Stats
	err := c.get(ctx, "/v1/stats", &stats)
	return stats, err
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%w: %d: %s", ErrPriceServerHTTPError, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%w: %d: %s", ErrPriceServerHTTPError, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
