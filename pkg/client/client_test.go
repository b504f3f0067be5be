package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-aggregator/pkg/server/aggregator"
	"github.com/StrathCole/price-aggregator/pkg/server/api"
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) GetPrices(_ context.Context, symbols []string, forceRefresh bool) (map[string]sources.PriceView, []string) {
	args := m.Called(symbols, forceRefresh)
	return args.Get(0).(map[string]sources.PriceView), args.Get(1).([]string)
}

func (m *mockService) CacheStats() aggregator.Stats {
	return m.Called().Get(0).(aggregator.Stats)
}

func newTestClient(t *testing.T, svc api.PriceService) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(api.NewServer(":0", svc, nil).Handler())
	t.Cleanup(ts.Close)
	return NewHTTPClient(ts.URL+"/", 2*time.Second)
}

func TestGetPrices(t *testing.T) {
	observed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockService{}
	svc.On("GetPrices", []string{"BTC/USDT", "XYZ/USDT"}, true).Return(
		map[string]sources.PriceView{
			"BTC/USDT": {
				Price: sources.Price{
					Symbol:    "BTC/USDT",
					Price:     decimal.RequireFromString("50000.25"),
					Source:    "kraken",
					Timestamp: observed,
					Change24h: 1.5,
					Volume:    decimal.NewFromInt(1200),
				},
				AgeSeconds: 3.5,
			},
		},
		[]string{"XYZ/USDT"},
	)

	c := newTestClient(t, svc)
	prices, unresolved, err := c.GetPrices(context.Background(), []string{"BTC/USDT", "XYZ/USDT"}, true)
	require.NoError(t, err)

	require.Contains(t, prices, "BTC/USDT")
	got := prices["BTC/USDT"]
	assert.True(t, decimal.RequireFromString("50000.25").Equal(got.Price.Price))
	assert.Equal(t, "kraken", got.Source)
	assert.True(t, observed.Equal(got.Timestamp))
	assert.Equal(t, 1.5, got.Change24h)
	assert.Equal(t, 3.5, got.AgeSeconds)
	assert.Equal(t, []string{"XYZ/USDT"}, unresolved)

	svc.AssertExpectations(t)
}

func TestGetPrices_NoSymbols(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", time.Second)
	_, _, err := c.GetPrices(context.Background(), nil, false)
	assert.ErrorIs(t, err, ErrNoSymbols)
}

func TestGetPrices_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, time.Second)
	_, _, err := c.GetPrices(context.Background(), []string{"BTC/USDT"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPriceServerHTTPError)
	assert.Contains(t, err.Error(), "500")
}

func TestGetPrices_BadRequestMessage(t *testing.T) {
	c := newTestClient(t, &mockService{})

	_, _, err := c.GetPrices(context.Background(), []string{" "}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPriceServerHTTPError)
	assert.Contains(t, err.Error(), "symbols query parameter is required")
}

func TestGetStats(t *testing.T) {
	svc := &mockService{}
	svc.On("CacheStats").Return(aggregator.Stats{
		TotalCached:     2,
		FreshCached:     1,
		StaleCached:     1,
		CacheHitRate:    0.5,
		FailedSources:   []string{"coingecko"},
		RateLimitStatus: map[string]int{"binance": 3},
	})

	c := newTestClient(t, svc)
	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalCached)
	assert.Equal(t, 0.5, stats.CacheHitRate)
	assert.Equal(t, []string{"coingecko"}, stats.FailedSources)
	assert.Equal(t, map[string]int{"binance": 3}, stats.RateLimitStatus)
}
