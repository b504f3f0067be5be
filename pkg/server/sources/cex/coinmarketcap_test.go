package cex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

func TestCoinMarketCapSource_RequiresAPIKey(t *testing.T) {
	_, err := NewCoinMarketCapSource(map[string]interface{}{
		"pairs": map[string]interface{}{"BTC/USD": "bitcoin"},
	})
	assert.ErrorIs(t, err, sources.ErrAPIKeyRequired)

	_, err = NewCoinMarketCapSource(map[string]interface{}{
		"pairs":   map[string]interface{}{"BTC/USD": "bitcoin"},
		"api_key": "${CMC_API_KEY}",
	})
	assert.ErrorIs(t, err, sources.ErrAPIKeyRequired)
}

func TestCoinMarketCapSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/cryptocurrency/quotes/latest", r.URL.Path)
		assert.Equal(t, "cmc-key", r.Header.Get(coinmarketcapKeyHeader))
		assert.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("slug"))
		assert.Equal(t, "USD", r.URL.Query().Get("convert"))
		fmt.Fprint(w, `{"status":{"error_code":0},"data":{
			"1": {"id":1,"slug":"bitcoin","quote":{"USD":{"price":67000.5,"volume_24h":5000,"percent_change_24h":-1.5,"last_updated":"2024-01-01T00:00:00Z"}}},
			"1027": {"id":1027,"slug":"ethereum","quote":{"EUR":{"price":3000}}}
		}}`)
	}))
	defer server.Close()

	source, err := NewCoinMarketCapSource(map[string]interface{}{
		"api_url": server.URL,
		"api_key": "cmc-key",
		"pairs": map[string]interface{}{
			"BTC/USD": "bitcoin",
			"ETH/USD": "ethereum",
		},
	})
	require.NoError(t, err)

	prices, err := source.Fetch(context.Background(), []string{"BTC/USD", "ETH/USD"})
	require.NoError(t, err)
	require.Len(t, prices, 1)

	btc := prices["BTC/USD"]
	assert.Equal(t, "67000.5", btc.Price.String())
	assert.InDelta(t, -1.5, btc.Change24h, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), btc.Timestamp.UTC())
}

func TestCoinMarketCapSource_FetchStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"rate limited", `{"status":{"error_code":1008,"error_message":"minute limit"}}`, sources.ErrRateLimited},
		{"api error", `{"status":{"error_code":400,"error_message":"invalid slug"}}`, sources.ErrAPIError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			source, err := NewCoinMarketCapSource(map[string]interface{}{
				"api_url": server.URL,
				"api_key": "cmc-key",
				"pairs":   map[string]interface{}{"BTC/USD": "bitcoin"},
			})
			require.NoError(t, err)

			_, err = source.Fetch(context.Background(), []string{"BTC/USD"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
