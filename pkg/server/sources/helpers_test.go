package sources

import (
	"errors"
	"net/http"
	"testing"
)

func TestParsePairsFromMap_Valid(t *testing.T) {
	tests := []struct {
		name     string
		config   map[string]interface{}
		expected map[string]string
	}{
		{
			name: "simple pairs",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{
					"LUNC/USDT": "LUNCUSDT",
					"BTC/USDT":  "BTCUSDT",
				},
			},
			expected: map[string]string{
				"LUNC/USDT": "LUNCUSDT",
				"BTC/USDT":  "BTCUSDT",
			},
		},
		{
			name: "exchange-specific formats",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{
					"LUNC/USD": "tLUNCUSD", // Bitfinex format
					"BTC/USD":  "tBTCUSD",
				},
			},
			expected: map[string]string{
				"LUNC/USD": "tLUNCUSD",
				"BTC/USD":  "tBTCUSD",
			},
		},
		{
			name: "coingecko slugs",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{
					"LUNC/USD": "terra-luna",
					"USTC/USD": "terrausd",
				},
			},
			expected: map[string]string{
				"LUNC/USD": "terra-luna",
				"USTC/USD": "terrausd",
			},
		},
		{
			name: "lower-case keys are canonicalized",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{
					"btc/usdt": "BTCUSDT",
				},
			},
			expected: map[string]string{
				"BTC/USDT": "BTCUSDT",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParsePairsFromMap(tt.config)
			if err != nil {
				t.Fatalf("ParsePairsFromMap failed: %v", err)
			}

			if len(result) != len(tt.expected) {
				t.Errorf("Expected %d pairs, got %d", len(tt.expected), len(result))
			}

			for unifiedSymbol, sourceSymbol := range tt.expected {
				got, ok := result[unifiedSymbol]
				if !ok {
					t.Errorf("Missing pair %s", unifiedSymbol)
					continue
				}
				if got != sourceSymbol {
					t.Errorf("For %s: expected %s, got %s", unifiedSymbol, sourceSymbol, got)
				}
			}
		})
	}
}

func TestParsePairsFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]interface{}
		expectErr bool
	}{
		{
			name:      "missing pairs key",
			config:    map[string]interface{}{},
			expectErr: true,
		},
		{
			name: "pairs is not a map",
			config: map[string]interface{}{
				"pairs": "invalid",
			},
			expectErr: true,
		},
		{
			name: "pairs is array instead of map",
			config: map[string]interface{}{
				"pairs": []interface{}{"LUNC/USDT", "BTC/USDT"},
			},
			expectErr: true,
		},
		{
			name: "invalid canonical symbol",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{
					"BTCUSDT": "BTCUSDT",
				},
			},
			expectErr: true,
		},
		{
			name: "non-string native symbol",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{
					"BTC/USDT": 42,
				},
			},
			expectErr: true,
		},
		{
			name: "empty pairs map",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{},
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParsePairsFromMap(tt.config)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				if result != nil {
					t.Errorf("Expected nil result on error, got %v", result)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
			}
		})
	}
}

func TestValidateSymbolFormat(t *testing.T) {
	tests := []struct {
		symbol  string
		wantErr error
	}{
		{"BTC/USDT", nil},
		{"EUR/USD", nil},
		{"", ErrInvalidSymbolFormat},
		{"BTC", ErrInvalidSymbolFormat},
		{"BTC/USDT/X", ErrInvalidSymbolFormat},
		{"/USDT", ErrEmptyBaseCurrency},
		{"BTC/ ", ErrEmptyQuoteCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			err := ValidateSymbolFormat(tt.symbol)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSymbolFormat(%q) unexpected error: %v", tt.symbol, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSymbolFormat(%q) = %v, want %v", tt.symbol, err, tt.wantErr)
			}
		})
	}
}

func TestGetHTTPClientFromConfig(t *testing.T) {
	shared := &http.Client{}
	if got := GetHTTPClientFromConfig(map[string]interface{}{"http_client": shared}); got != shared {
		t.Error("Expected configured client to be returned")
	}

	first := GetHTTPClientFromConfig(map[string]interface{}{})
	second := GetHTTPClientFromConfig(nil)
	if first != second {
		t.Error("Expected fallback to reuse the process-wide default client")
	}
}
