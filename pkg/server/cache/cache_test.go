package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func price(symbol, value string, at time.Time) sources.Price {
	return sources.Price{
		Symbol:    symbol,
		Price:     decimal.RequireFromString(value),
		Source:    "binance",
		Timestamp: at,
	}
}

func TestCache_GetFreshAndExpired(t *testing.T) {
	clock := &fakeClock{now: epoch}
	c := New(60*time.Second, clock.Now)

	c.Put(price("BTC/USDT", "50000", epoch))

	clock.Advance(60 * time.Second)
	got, ok := c.Get("BTC/USDT")
	require.True(t, ok, "age equal to the TTL is still fresh")
	assert.Equal(t, "50000", got.Price.String())

	clock.Advance(time.Second)
	_, ok = c.Get("BTC/USDT")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry deleted on read")
}

func TestCache_PutOverwrites(t *testing.T) {
	clock := &fakeClock{now: epoch}
	c := New(time.Minute, clock.Now)

	c.Put(price("ETH/USDT", "3000", epoch))
	c.Put(price("ETH/USDT", "3100", epoch))

	got, ok := c.Get("ETH/USDT")
	require.True(t, ok)
	assert.Equal(t, "3100", got.Price.String())
	assert.Equal(t, 1, c.Len())
}

func TestCache_Stats(t *testing.T) {
	clock := &fakeClock{now: epoch}
	c := New(time.Minute, clock.Now)

	assert.Equal(t, Stats{}, c.Stats())

	c.Put(price("BTC/USDT", "50000", epoch.Add(-2*time.Minute)))
	c.Put(price("ETH/USDT", "3000", epoch))

	stats := c.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Fresh)
	assert.Equal(t, 1, stats.Stale)
	assert.Equal(t, 2, c.Len(), "Stats does not expire entries")

	_, _ = c.Get("ETH/USDT")  // hit
	_, _ = c.Get("BTC/USDT")  // expired
	_, _ = c.Get("DOGE/USDT") // miss
	_, _ = c.Get("ETH/USDT")  // hit

	stats = c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Stale)
}

func TestCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New(0, nil).TTL())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	clock := &fakeClock{now: epoch}
	c := New(time.Second, clock.Now)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbol := fmt.Sprintf("S%d/USDT", i%5)
			for j := 0; j < 100; j++ {
				c.Put(price(symbol, "1", clock.Now()))
				_, _ = c.Get(symbol)
				if j%10 == 0 {
					clock.Advance(100 * time.Millisecond)
				}
				_ = c.Stats()
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 5)
}
