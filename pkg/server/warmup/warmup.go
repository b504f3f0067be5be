// Package warmup pre-fills the price cache for frequently requested symbols
// and, optionally, refreshes them before they expire.
package warmup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"github.com/StrathCole/price-aggregator/pkg/logging"
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

const (
	defaultBatchSize        = 20
	defaultBatchesPerSecond = 2
)

// PriceFetcher is implemented by the aggregator
type PriceFetcher interface {
	GetPrices(ctx context.Context, symbols []string, forceRefresh bool) (map[string]sources.PriceView, []string)
}

// Config configures a Warmer
type Config struct {
	Symbols          []string
	Interval         time.Duration // 0 = warm once only
	BatchSize        int
	BatchesPerSecond int
}

// Result summarizes one warm pass
type Result struct {
	Requested  int
	Resolved   int
	Unresolved []string
}

// Warmer drives GetPrices for a fixed symbol list in paced batches.
type Warmer struct {
	fetcher PriceFetcher
	symbols []string
	cfg     Config
	pacer   ratelimit.Limiter
	logger  *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Warmer
func New(cfg Config, fetcher PriceFetcher, logger *logging.Logger) *Warmer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchesPerSecond <= 0 {
		cfg.BatchesPerSecond = defaultBatchesPerSecond
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &Warmer{
		fetcher: fetcher,
		symbols: sources.CanonicalSymbols(cfg.Symbols),
		cfg:     cfg,
		pacer:   ratelimit.New(cfg.BatchesPerSecond, ratelimit.WithoutSlack),
		logger:  logger.With("component", "warmup"),
	}
}

// Warm requests every configured symbol once, batch by batch. With
// forceRefresh the cache is bypassed so entries are renewed before they
// expire. It stops early when ctx ends.
func (w *Warmer) Warm(ctx context.Context, forceRefresh bool) Result {
	res := Result{Requested: len(w.symbols)}
	start := time.Now()

	for i := 0; i < len(w.symbols); i += w.cfg.BatchSize {
		end := i + w.cfg.BatchSize
		if end > len(w.symbols) {
			end = len(w.symbols)
		}
		batch := w.symbols[i:end]

		if ctx.Err() != nil {
			res.Unresolved = append(res.Unresolved, w.symbols[i:]...)
			break
		}
		w.pacer.Take()
		if ctx.Err() != nil {
			res.Unresolved = append(res.Unresolved, w.symbols[i:]...)
			break
		}

		prices, unresolved := w.fetcher.GetPrices(ctx, batch, forceRefresh)
		res.Resolved += len(prices)
		res.Unresolved = append(res.Unresolved, unresolved...)
	}

	w.logger.Info("Cache warm pass finished",
		"requested", res.Requested,
		"resolved", res.Resolved,
		"unresolved", len(res.Unresolved),
		"force_refresh", forceRefresh,
		"duration", time.Since(start))
	if len(res.Unresolved) > 0 {
		w.logger.Debug("Warm pass left symbols unresolved", "symbols", res.Unresolved)
	}

	return res
}

// Start runs an initial warm pass and, when an interval is configured,
// refreshes in the background until Stop or ctx ends.
func (w *Warmer) Start(ctx context.Context) {
	if len(w.symbols) == 0 {
		w.logger.Debug("No warmup symbols configured")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

func (w *Warmer) run(ctx context.Context) {
	w.Warm(ctx, false)

	if w.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Warm(ctx, true)
		}
	}
}

// Stop cancels background refreshes and waits for the current pass.
func (w *Warmer) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}
