package cex

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

const (
	coinmarketcapBaseURL   = "https://pro-api.coinmarketcap.com"
	coinmarketcapKeyHeader = "X-CMC_PRO_API_KEY"
)

// CoinMarketCap status codes reported for exhausted credits or rate limits
var coinmarketcapRateLimitCodes = map[int]bool{
	1008: true, // minute rate limit
	1009: true, // daily rate limit
	1010: true, // monthly rate limit
	1011: true, // IP rate limit
}

// CoinMarketCapSource fetches prices from CoinMarketCap API.
// Pairs map canonical symbols to CoinMarketCap slugs.
type CoinMarketCapSource struct {
	*sources.BaseSource
	apiKey  string
	apiURL  string
	convert string
}

// CoinMarketCapQuote represents a price quote from CoinMarketCap
type CoinMarketCapQuote struct {
	Price            float64 `json:"price"`
	Volume24h        float64 `json:"volume_24h"`
	PercentChange24h float64 `json:"percent_change_24h"`
	LastUpdated      string  `json:"last_updated"`
}

// CoinMarketCapData represents cryptocurrency data from CoinMarketCap
type CoinMarketCapData struct {
	ID    int                           `json:"id"`
	Slug  string                        `json:"slug"`
	Quote map[string]CoinMarketCapQuote `json:"quote"`
}

// CoinMarketCapResponse represents the API response
type CoinMarketCapResponse struct {
	Status struct {
		Timestamp    string `json:"timestamp"`
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]CoinMarketCapData `json:"data"` // keyed by CoinMarketCap id
}

// NewCoinMarketCapSource creates a new CoinMarketCap source
func NewCoinMarketCapSource(config map[string]interface{}) (sources.Source, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	apiKey := sources.GetStringFromConfig(config, "api_key", "")
	if apiKey == "" || strings.HasPrefix(apiKey, "${") {
		return nil, fmt.Errorf("coinmarketcap: %w", sources.ErrAPIKeyRequired)
	}

	return &CoinMarketCapSource{
		BaseSource: sources.NewBaseSource("coinmarketcap", sources.SourceTypeCEX, pairs, sources.GetHTTPClientFromConfig(config), sources.GetLoggerFromConfig(config)),
		apiKey:     apiKey,
		apiURL:     strings.TrimRight(sources.GetStringFromConfig(config, "api_url", coinmarketcapBaseURL), "/"),
		convert:    strings.ToUpper(sources.GetStringFromConfig(config, "convert", "USD")),
	}, nil
}

// Initialize prepares the source for operation
func (s *CoinMarketCapSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing CoinMarketCap source", "pairs", len(s.Symbols()))
	return nil
}

// Stop halts the source
func (s *CoinMarketCapSource) Stop() error {
	return nil
}

// Fetch returns prices for the requested symbols
func (s *CoinMarketCapSource) Fetch(ctx context.Context, symbols []string) (map[string]sources.Price, error) {
	slugs, lookup := s.MapSymbols(symbols)
	if len(slugs) == 0 {
		return map[string]sources.Price{}, nil
	}

	params := url.Values{}
	params.Add("slug", strings.Join(slugs, ","))
	params.Add("convert", s.convert)
	endpoint := s.apiURL + "/v2/cryptocurrency/quotes/latest?" + params.Encode()

	var response CoinMarketCapResponse
	if err := s.GetJSON(ctx, endpoint, map[string]string{coinmarketcapKeyHeader: s.apiKey}, &response); err != nil {
		return nil, err
	}

	if code := response.Status.ErrorCode; code != 0 {
		if coinmarketcapRateLimitCodes[code] {
			return nil, fmt.Errorf("%w: %d %s", sources.ErrRateLimited, code, response.Status.ErrorMessage)
		}
		return nil, fmt.Errorf("%w: %w: %d %s", sources.ErrMalformedResponse, sources.ErrAPIError, code, response.Status.ErrorMessage)
	}

	prices := make(map[string]sources.Price, len(lookup))
	for _, data := range response.Data {
		canonicals, ok := lookup[data.Slug]
		if !ok {
			continue
		}

		quote, ok := data.Quote[s.convert]
		if !ok {
			s.Logger().Warn("No quote for slug", "slug", data.Slug, "convert", s.convert)
			continue
		}

		tick := sources.Price{
			Price:     decimal.NewFromFloat(quote.Price),
			Source:    s.Name(),
			Change24h: quote.PercentChange24h,
			Volume:    decimal.NewFromFloat(quote.Volume24h),
		}
		if ts, err := time.Parse(time.RFC3339, quote.LastUpdated); err == nil {
			tick.Timestamp = ts
		}

		for _, canonical := range canonicals {
			tick.Symbol = canonical
			prices[canonical] = tick
		}
	}

	return prices, nil
}
