package warmup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

type recordingFetcher struct {
	mu      sync.Mutex
	batches [][]string
	forced  []bool
	missing map[string]bool
}

func (f *recordingFetcher) GetPrices(_ context.Context, symbols []string, forceRefresh bool) (map[string]sources.PriceView, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches = append(f.batches, append([]string(nil), symbols...))
	f.forced = append(f.forced, forceRefresh)

	out := make(map[string]sources.PriceView)
	var unresolved []string
	for _, s := range symbols {
		if f.missing[s] {
			unresolved = append(unresolved, s)
			continue
		}
		out[s] = sources.PriceView{Price: sources.Price{Symbol: s, Price: decimal.NewFromInt(1)}}
	}
	return out, unresolved
}

func (f *recordingFetcher) snapshot() ([][]string, []bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...), append([]bool(nil), f.forced...)
}

func TestWarm_Batches(t *testing.T) {
	f := &recordingFetcher{missing: map[string]bool{"XYZ/USDT": true}}
	w := New(Config{
		Symbols:          []string{"btc/usdt", "ETH/USDT", "BTC/USDT", "ATOM/USDT", "XYZ/USDT"},
		BatchSize:        2,
		BatchesPerSecond: 1000,
	}, f, nil)

	res := w.Warm(context.Background(), false)

	assert.Equal(t, 4, res.Requested, "symbols are canonicalized and de-duplicated")
	assert.Equal(t, 3, res.Resolved)
	assert.Equal(t, []string{"XYZ/USDT"}, res.Unresolved)

	batches, forced := f.snapshot()
	assert.Equal(t, [][]string{{"BTC/USDT", "ETH/USDT"}, {"ATOM/USDT", "XYZ/USDT"}}, batches)
	assert.Equal(t, []bool{false, false}, forced)
}

func TestWarm_CancelledContext(t *testing.T) {
	f := &recordingFetcher{}
	w := New(Config{Symbols: []string{"A/USD", "B/USD", "C/USD"}, BatchSize: 1, BatchesPerSecond: 1000}, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := w.Warm(ctx, true)
	assert.Equal(t, 0, res.Resolved)
	assert.Equal(t, []string{"A/USD", "B/USD", "C/USD"}, res.Unresolved)

	batches, _ := f.snapshot()
	assert.Empty(t, batches)
}

func TestStart_RefreshesWithForce(t *testing.T) {
	f := &recordingFetcher{}
	w := New(Config{
		Symbols:          []string{"BTC/USDT"},
		Interval:         20 * time.Millisecond,
		BatchesPerSecond: 1000,
	}, f, nil)

	w.Start(context.Background())
	require.Eventually(t, func() bool {
		batches, _ := f.snapshot()
		return len(batches) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	w.Stop()

	_, forced := f.snapshot()
	assert.False(t, forced[0], "initial pass reads the cache")
	for _, force := range forced[1:] {
		assert.True(t, force, "refresh passes bypass the cache")
	}

	// No more calls once stopped
	before, _ := f.snapshot()
	time.Sleep(60 * time.Millisecond)
	after, _ := f.snapshot()
	assert.Equal(t, len(before), len(after))
}

func TestStart_OnceWithoutInterval(t *testing.T) {
	f := &recordingFetcher{}
	w := New(Config{Symbols: []string{"BTC/USDT"}, BatchesPerSecond: 1000}, f, nil)

	w.Start(context.Background())
	require.Eventually(t, func() bool {
		batches, _ := f.snapshot()
		return len(batches) == 1
	}, time.Second, 5*time.Millisecond)

	// The goroutine exits on its own after the single pass
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("warmer kept running without an interval")
	}
	w.Stop()
}

func TestStart_NoSymbols(t *testing.T) {
	f := &recordingFetcher{}
	w := New(Config{}, f, nil)

	w.Start(context.Background())
	w.Stop()

	batches, _ := f.snapshot()
	assert.Empty(t, batches)
}

func TestWarm_CancelledWhilePacing(t *testing.T) {
	f := &recordingFetcher{}
	w := New(Config{Symbols: []string{"A/USD", "B/USD"}, BatchSize: 1, BatchesPerSecond: 1}, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- w.Warm(ctx, false) }()

	// Second batch waits about a second for the pacer
	require.Eventually(t, func() bool {
		batches, _ := f.snapshot()
		return len(batches) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	var res Result
	select {
	case res = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("warm pass did not return")
	}

	batches, _ := f.snapshot()
	assert.Equal(t, [][]string{{"A/USD"}}, batches, "no fetch after cancellation")
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, []string{"B/USD"}, res.Unresolved)
}
