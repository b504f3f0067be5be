package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-aggregator/pkg/logging"
)

func newTestBase(pairs map[string]string) *BaseSource {
	return NewBaseSource("test", SourceTypeCEX, pairs, DefaultHTTPClient(), logging.NewNoopLogger())
}

func TestBaseSource_MapSymbols(t *testing.T) {
	base := newTestBase(map[string]string{
		"BTC/USDT": "bitcoin",
		"BTC/USD":  "bitcoin",
		"ETH/USDT": "ethereum",
	})

	natives, lookup := base.MapSymbols([]string{"ETH/USDT", "BTC/USDT", "DOGE/USDT", "BTC/USD"})

	assert.Equal(t, []string{"bitcoin", "ethereum"}, natives)
	assert.ElementsMatch(t, []string{"BTC/USDT", "BTC/USD"}, lookup["bitcoin"])
	assert.Equal(t, []string{"ETH/USDT"}, lookup["ethereum"])
	assert.NotContains(t, lookup, "dogecoin")

	assert.True(t, base.Supports("BTC/USD"))
	assert.False(t, base.Supports("DOGE/USDT"))
	assert.Equal(t, []string{"BTC/USD", "BTC/USDT", "ETH/USDT"}, base.Symbols())
	assert.ElementsMatch(t, []string{"BTC/USD", "BTC/USDT"}, base.GetCanonicalSymbols("bitcoin"))
}

func TestBaseSource_GetJSON(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantErr     error
		wantOutcome string
	}{
		{
			name: "ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
				assert.Contains(t, r.Header.Get("User-Agent"), "price-aggregator")
				fmt.Fprint(w, `{"value": 42}`)
			},
			wantOutcome: OutcomeSuccess,
		},
		{
			name: "upstream rate limit",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "30")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantErr:     ErrRateLimited,
			wantOutcome: OutcomeRateLimited,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			},
			wantErr:     ErrUnexpectedStatus,
			wantOutcome: OutcomeNetworkFailure,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"value": `)
			},
			wantErr:     ErrMalformedResponse,
			wantOutcome: OutcomeMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			var out struct {
				Value int `json:"value"`
			}
			err := newTestBase(nil).GetJSON(context.Background(), server.URL, map[string]string{"X-Api-Key": "secret"}, &out)

			assert.Equal(t, tt.wantOutcome, Classify(err))
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 42, out.Value)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBaseSource_GetJSON_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out map[string]interface{}
	err := newTestBase(nil).GetJSON(ctx, server.URL, nil, &out)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, OutcomeNetworkFailure, Classify(err))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Classify(nil))
	assert.Equal(t, OutcomeSourceUnavailable, Classify(fmt.Errorf("binance: %w", ErrSourceUnavailable)))
	assert.Equal(t, OutcomeSymbolUnsupported, Classify(ErrSymbolUnsupported))
	assert.Equal(t, OutcomeNetworkFailure, Classify(context.DeadlineExceeded))
	assert.Equal(t, OutcomeNetworkFailure, Classify(fmt.Errorf("dial tcp: connection refused")))
}

func TestCanonicalSymbols(t *testing.T) {
	got := CanonicalSymbols([]string{" btc/usdt", "BTC/USDT", "", "eth / usdc", "  "})
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDC"}, got)

	base, quote := SplitSymbol("ETH/USDC")
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "USDC", quote)
}

func TestPrice_ValidAndView(t *testing.T) {
	now := time.Now()
	p := Price{Symbol: "BTC/USDT", Price: decimal.NewFromInt(50000), Source: "binance", Timestamp: now.Add(-3 * time.Second)}

	assert.True(t, p.Valid())
	assert.False(t, Price{Price: decimal.Zero}.Valid())
	assert.False(t, Price{Price: decimal.NewFromInt(-1)}.Valid())

	view := p.View(now)
	assert.InDelta(t, 3.0, view.AgeSeconds, 0.001)
	assert.Equal(t, "binance", view.Source)
}

func TestRegistry_Create(t *testing.T) {
	Register("test.fake", func(config map[string]interface{}) (Source, error) {
		return nil, ErrInvalidConfig
	})

	_, err := Create("test", "fake", nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Create("test", "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownSource)

	assert.Contains(t, List(), "test.fake")
}
