package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/StrathCole/price-aggregator/pkg/logging"
	"github.com/StrathCole/price-aggregator/pkg/version"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// BaseSource provides the pieces every adapter shares: the symbol mapping,
// the process-wide HTTP client and the logger.
type BaseSource struct {
	name       string
	sourcetype SourceType
	symbols    []string
	pairs      map[string]string   // canonical symbol -> source-specific symbol
	reverse    map[string][]string // source-specific symbol -> canonical symbols
	client     *http.Client
	logger     *logging.Logger
}

// NewBaseSource creates a new base source with pair mappings
// pairs: map of canonical symbol (e.g., "BTC/USDT") -> source-specific symbol (e.g., "BTCUSDT")
func NewBaseSource(name string, sourcetype SourceType, pairs map[string]string, client *http.Client, logger *logging.Logger) *BaseSource {
	symbols := make([]string, 0, len(pairs))
	reverse := make(map[string][]string, len(pairs))
	for canonical, native := range pairs {
		symbols = append(symbols, canonical)
		reverse[native] = append(reverse[native], canonical)
	}
	sort.Strings(symbols)

	return &BaseSource{
		name:       name,
		sourcetype: sourcetype,
		symbols:    symbols,
		pairs:      pairs,
		reverse:    reverse,
		client:     client,
		logger:     logger.With("source", name),
	}
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// Type returns the source type
func (b *BaseSource) Type() SourceType {
	return b.sourcetype
}

// Symbols returns the canonical symbols this source provides
func (b *BaseSource) Symbols() []string {
	out := make([]string, len(b.symbols))
	copy(out, b.symbols)
	return out
}

// Supports reports whether the canonical symbol is mapped on this source
func (b *BaseSource) Supports(symbol string) bool {
	_, ok := b.pairs[symbol]
	return ok
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}

// HTTPClient returns the shared HTTP client
func (b *BaseSource) HTTPClient() *http.Client {
	return b.client
}

// GetSourceSymbol converts canonical symbol to source-specific symbol
// Returns empty string if not found
func (b *BaseSource) GetSourceSymbol(canonical string) string {
	return b.pairs[canonical]
}

// GetCanonicalSymbols returns every canonical symbol mapped to a
// source-specific symbol. Several canonical symbols may share one native id.
func (b *BaseSource) GetCanonicalSymbols(native string) []string {
	return b.reverse[native]
}

// GetAllPairs returns a copy of the pair mappings
func (b *BaseSource) GetAllPairs() map[string]string {
	pairs := make(map[string]string, len(b.pairs))
	for k, v := range b.pairs {
		pairs[k] = v
	}
	return pairs
}

// MapSymbols translates the requested canonical symbols into the distinct
// native identifiers to request, in a stable order. The returned lookup maps
// each native id back to the requested canonical symbols only.
func (b *BaseSource) MapSymbols(symbols []string) ([]string, map[string][]string) {
	lookup := make(map[string][]string, len(symbols))
	natives := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		native, ok := b.pairs[symbol]
		if !ok {
			continue
		}
		if _, seen := lookup[native]; !seen {
			natives = append(natives, native)
		}
		lookup[native] = append(lookup[native], symbol)
	}
	sort.Strings(natives)
	return natives, lookup
}

// GetJSON performs a GET against an upstream API and decodes the JSON body
// into out. Failures are wrapped with the fetch taxonomy: transport errors
// and non-2xx statuses as ErrNetworkFailure, 429 (and Binance's 418 ban) as
// ErrRateLimited and undecodable bodies as ErrMalformedResponse.
func (b *BaseSource) GetJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		retryAfter := resp.Header.Get("Retry-After")
		b.logger.Warn("Upstream rate limit exceeded", "status", resp.StatusCode, "retry_after", retryAfter)
		return fmt.Errorf("%w: HTTP %d (retry-after %q)", ErrRateLimited, resp.StatusCode, retryAfter)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrNetworkFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %w: %d: %s", ErrNetworkFailure, ErrUnexpectedStatus, resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
