package sources

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/StrathCole/price-aggregator/pkg/logging"
)

// GetLoggerFromConfig extracts logger from config map or returns a default noop logger.
// Sources should use this to get the logger passed from main.go.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}
	return logging.NewNoopLogger()
}

// GetHTTPClientFromConfig extracts the shared HTTP client from the config
// map. Without one the package default client is used, never a new client
// per source.
func GetHTTPClientFromConfig(config map[string]interface{}) *http.Client {
	if c, ok := config["http_client"].(*http.Client); ok && c != nil {
		return c
	}
	return DefaultHTTPClient()
}

// GetStringFromConfig returns config[key] if it is a non-empty string.
func GetStringFromConfig(config map[string]interface{}, key, defaultValue string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

// GetBoolFromConfig returns config[key] if it is a bool.
func GetBoolFromConfig(config map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return defaultValue
}

// ParsePairsFromMap extracts pair mappings from config where pairs is a map.
// Expected format: pairs: { "BTC/USDT": "BTCUSDT", "ETH/USDT": "ethereum" }.
// Canonical symbols are upper-cased so they match requests after
// CanonicalSymbol.
func ParsePairsFromMap(config map[string]interface{}) (map[string]string, error) {
	pairsRaw, ok := config["pairs"]
	if !ok {
		return nil, fmt.Errorf("%w: 'pairs' key", ErrInvalidConfig)
	}

	pairsMap, ok := pairsRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: pairs must be map[string]string", ErrInvalidConfig)
	}

	pairs := make(map[string]string, len(pairsMap))
	for canonical, sourceRaw := range pairsMap {
		source, ok := sourceRaw.(string)
		if !ok || source == "" {
			return nil, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, canonical, sourceRaw)
		}
		if err := ValidateSymbolFormat(canonical); err != nil {
			return nil, fmt.Errorf("canonical symbol: %w", err)
		}
		pairs[CanonicalSymbol(canonical)] = source
	}

	if len(pairs) == 0 {
		return nil, ErrNoPairsConfigured
	}

	return pairs, nil
}

// ValidateSymbolFormat checks if a symbol is in valid BASE/QUOTE format
// Valid formats:
//   - "BTC/USDT", "LUNC/USDC" (crypto pairs)
//   - "EUR/USD" (fiat pairs)
//
// Invalid formats:
//   - "BTC" (no quote currency)
//   - "BTCUSDT" (no separator)
//   - "" (empty).
func ValidateSymbolFormat(symbol string) error {
	if symbol == "" {
		return ErrInvalidSymbolFormat
	}

	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %s", ErrInvalidSymbolFormat, symbol)
	}

	base := strings.TrimSpace(parts[0])
	quote := strings.TrimSpace(parts[1])

	if base == "" {
		return fmt.Errorf("%w: %s", ErrEmptyBaseCurrency, symbol)
	}
	if quote == "" {
		return fmt.Errorf("%w: %s", ErrEmptyQuoteCurrency, symbol)
	}

	return nil
}
