package cex

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

const krakenBaseURL = "https://api.kraken.com"

// KrakenSource fetches prices from the Kraken public Ticker endpoint
type KrakenSource struct {
	*sources.BaseSource
	apiURL string
}

// KrakenTickerData represents ticker data from Kraken API
type KrakenTickerData struct {
	A []string `json:"a"` // Ask [price, whole lot volume, lot volume]
	B []string `json:"b"` // Bid [price, whole lot volume, lot volume]
	C []string `json:"c"` // Last trade [price, lot volume]
	V []string `json:"v"` // Volume [today, last 24 hours]
	P []string `json:"p"` // Volume weighted average price [today, last 24 hours]
	O string   `json:"o"` // Today's opening price
}

// KrakenResponse represents the response from Kraken Ticker API
type KrakenResponse struct {
	Error  []string                    `json:"error"`
	Result map[string]KrakenTickerData `json:"result"`
}

// NewKrakenSource creates a new Kraken source
func NewKrakenSource(config map[string]interface{}) (sources.Source, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}
	for canonical, native := range pairs {
		pairs[canonical] = strings.ToUpper(native)
	}

	return &KrakenSource{
		BaseSource: sources.NewBaseSource("kraken", sources.SourceTypeCEX, pairs, sources.GetHTTPClientFromConfig(config), sources.GetLoggerFromConfig(config)),
		apiURL:     strings.TrimRight(sources.GetStringFromConfig(config, "api_url", krakenBaseURL), "/"),
	}, nil
}

// Initialize prepares the source for operation
func (s *KrakenSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing Kraken source", "pairs", len(s.Symbols()))
	return nil
}

// Stop halts the source
func (s *KrakenSource) Stop() error {
	return nil
}

// Fetch returns prices for the requested symbols
func (s *KrakenSource) Fetch(ctx context.Context, symbols []string) (map[string]sources.Price, error) {
	natives, lookup := s.MapSymbols(symbols)
	if len(natives) == 0 {
		return map[string]sources.Price{}, nil
	}

	endpoint := fmt.Sprintf("%s/0/public/Ticker?pair=%s", s.apiURL, url.QueryEscape(strings.Join(natives, ",")))

	var response KrakenResponse
	if err := s.GetJSON(ctx, endpoint, nil, &response); err != nil {
		return nil, err
	}

	if len(response.Error) > 0 {
		joined := strings.Join(response.Error, "; ")
		if strings.Contains(joined, "Rate limit") || strings.Contains(joined, "Too many requests") {
			return nil, fmt.Errorf("%w: %s", sources.ErrRateLimited, joined)
		}
		return nil, fmt.Errorf("%w: %w: %s", sources.ErrMalformedResponse, sources.ErrAPIError, joined)
	}

	prices := make(map[string]sources.Price, len(lookup))
	for key, ticker := range response.Result {
		native := matchKrakenPair(key, natives)
		if native == "" {
			s.Logger().Debug("Unmatched Kraken symbol", "symbol", key)
			continue
		}

		// Last trade price
		if len(ticker.C) == 0 || ticker.C[0] == "" {
			continue
		}
		price, err := decimal.NewFromString(ticker.C[0])
		if err != nil {
			s.Logger().Warn("Failed to parse price", "symbol", key, "price", ticker.C[0])
			continue
		}

		tick := sources.Price{
			Price:  price,
			Source: s.Name(),
		}
		if len(ticker.V) >= 2 {
			tick.Volume = parseDecimal(ticker.V[1])
		}
		if open, err := decimal.NewFromString(ticker.O); err == nil && open.IsPositive() {
			tick.Change24h, _ = price.Sub(open).Div(open).Mul(decimal.NewFromInt(100)).Float64()
		}

		for _, canonical := range lookup[native] {
			tick.Symbol = canonical
			prices[canonical] = tick
		}
	}

	return prices, nil
}

// matchKrakenPair maps a Ticker response key back to the requested pair.
// Kraken answers legacy pairs under their extended asset names, e.g. a
// request for XBTUSD comes back as XXBTZUSD.
func matchKrakenPair(responseKey string, requested []string) string {
	key := strings.ToUpper(responseKey)
	for _, native := range requested {
		if native == key {
			return native
		}
	}

	short := key
	if len(key) == 8 && (key[0] == 'X' || key[0] == 'Z') && (key[4] == 'X' || key[4] == 'Z') {
		short = key[1:4] + key[5:]
	}

	for _, native := range requested {
		alias := strings.ReplaceAll(native, "BTC", "XBT")
		if alias == short || alias == key {
			return native
		}
	}

	return ""
}
