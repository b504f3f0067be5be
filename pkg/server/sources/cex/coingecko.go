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
	coingeckoBaseURL    = "https://api.coingecko.com/api/v3"
	coingeckoProBaseURL = "https://pro-api.coingecko.com/api/v3"
	coingeckoProHeader  = "x-cg-pro-api-key"
)

// CoinGeckoSource fetches prices from the CoinGecko /simple/price endpoint.
// Pairs map canonical symbols to CoinGecko coin ids; the quote side is
// priced in vs_currency.
type CoinGeckoSource struct {
	*sources.BaseSource

	apiURL     string
	apiKey     string
	vsCurrency string
}

// NewCoinGeckoSource creates a new CoinGecko source
func NewCoinGeckoSource(config map[string]interface{}) (sources.Source, error) {
	// Parse pairs from config (map of "LUNC/USD" => "terra-luna")
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	apiKey := sources.GetStringFromConfig(config, "api_key", "")
	// An unexpanded ${VAR} means the key was not provided
	if strings.HasPrefix(apiKey, "${") {
		apiKey = ""
	}

	defaultURL := coingeckoBaseURL
	if apiKey != "" {
		defaultURL = coingeckoProBaseURL
	}

	return &CoinGeckoSource{
		BaseSource: sources.NewBaseSource("coingecko", sources.SourceTypeCEX, pairs, sources.GetHTTPClientFromConfig(config), sources.GetLoggerFromConfig(config)),
		apiURL:     strings.TrimRight(sources.GetStringFromConfig(config, "api_url", defaultURL), "/"),
		apiKey:     apiKey,
		vsCurrency: strings.ToLower(sources.GetStringFromConfig(config, "vs_currency", "usd")),
	}, nil
}

// Initialize prepares the source for operation
func (s *CoinGeckoSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing CoinGecko source", "pairs", len(s.Symbols()), "has_api_key", s.apiKey != "")
	return nil
}

// Stop halts the source
func (s *CoinGeckoSource) Stop() error {
	return nil
}

// Fetch returns prices for the requested symbols
func (s *CoinGeckoSource) Fetch(ctx context.Context, symbols []string) (map[string]sources.Price, error) {
	ids, lookup := s.MapSymbols(symbols)
	if len(ids) == 0 {
		return map[string]sources.Price{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", s.vsCurrency)
	query.Set("include_24hr_change", "true")
	query.Set("include_24hr_vol", "true")
	query.Set("include_last_updated_at", "true")
	endpoint := s.apiURL + "/simple/price?" + query.Encode()

	var headers map[string]string
	if s.apiKey != "" {
		headers = map[string]string{coingeckoProHeader: s.apiKey}
	}

	// {"bitcoin": {"usd": 67000.1, "usd_24h_change": 1.2, "usd_24h_vol": 123.4, "last_updated_at": 1700000000}}
	var data map[string]map[string]float64
	if err := s.GetJSON(ctx, endpoint, headers, &data); err != nil {
		return nil, err
	}

	prices := make(map[string]sources.Price, len(lookup))
	for id, fields := range data {
		canonicals, ok := lookup[id]
		if !ok {
			continue
		}

		value, ok := fields[s.vsCurrency]
		if !ok {
			continue
		}

		tick := sources.Price{
			Price:     decimal.NewFromFloat(value),
			Source:    s.Name(),
			Change24h: fields[s.vsCurrency+"_24h_change"],
			Volume:    decimal.NewFromFloat(fields[s.vsCurrency+"_24h_vol"]),
		}
		if updated := int64(fields["last_updated_at"]); updated > 0 {
			tick.Timestamp = time.Unix(updated, 0)
		}

		for _, canonical := range canonicals {
			tick.Symbol = canonical
			prices[canonical] = tick
		}
	}

	s.Logger().Debug("Fetched prices from CoinGecko", "requested", len(ids), "count", len(prices))

	return prices, nil
}
