// Package aggregator answers price queries from the cache and, for misses,
// walks the configured sources in priority order until every symbol is
// resolved or the sources are exhausted.
package aggregator

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/StrathCole/price-aggregator/pkg/logging"
	"github.com/StrathCole/price-aggregator/pkg/metrics"
	"github.com/StrathCole/price-aggregator/pkg/server/breaker"
	"github.com/StrathCole/price-aggregator/pkg/server/cache"
	"github.com/StrathCole/price-aggregator/pkg/server/ratelimit"
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

// DefaultRequestTimeout bounds one adapter call when Config.RequestTimeout is zero.
const DefaultRequestTimeout = 10 * time.Second

// Config configures an Aggregator
type Config struct {
	CacheTTL        time.Duration
	BreakerCooldown time.Duration
	MaxCooldown     time.Duration // 0 keeps the breaker cooldown fixed
	RequestTimeout  time.Duration
	Limits          map[string]ratelimit.Limit // by source name; missing = unlimited
	HTTPClient      *http.Client               // shared adapter client, idle connections released on Stop
	Now             func() time.Time
}

// Stats summarizes cache and source health
type Stats struct {
	TotalCached     int            `json:"total_cached"`
	FreshCached     int            `json:"fresh_cached"`
	StaleCached     int            `json:"stale_cached"`
	CacheHitRate    float64        `json:"cache_hit_rate"`
	FailedSources   []string       `json:"failed_sources"`
	RateLimitStatus map[string]int `json:"rate_limit_status"`
}

// Aggregator owns the cache, rate-limit windows and breaker states for a
// fixed, priority-ordered list of sources. It is safe for concurrent use.
type Aggregator struct {
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	logger  *logging.Logger

	requestTimeout time.Duration
	httpClient     *http.Client
	now            func() time.Time

	mu      sync.RWMutex
	sources []sources.Source // priority order, highest first
}

// New creates an aggregator over srcs, which must already be in priority
// order.
func New(cfg Config, srcs []sources.Source, logger *logging.Logger) *Aggregator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	limiter := ratelimit.New(nil, cfg.Now)
	for _, src := range srcs {
		limiter.Configure(src.Name(), cfg.Limits[src.Name()])
	}

	ordered := make([]sources.Source, len(srcs))
	copy(ordered, srcs)

	return &Aggregator{
		cache:   cache.New(cfg.CacheTTL, cfg.Now),
		limiter: limiter,
		breaker: breaker.New(breaker.Config{
			Cooldown:    cfg.BreakerCooldown,
			MaxCooldown: cfg.MaxCooldown,
			Now:         cfg.Now,
		}),
		logger:         logger.With("component", "aggregator"),
		requestTimeout: cfg.RequestTimeout,
		httpClient:     cfg.HTTPClient,
		now:            cfg.Now,
		sources:        ordered,
	}
}

// Start initializes every source. A source that fails to initialize is
// dropped from the priority list; Start fails only if none remain.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ready := make([]sources.Source, 0, len(a.sources))
	for _, src := range a.sources {
		if err := src.Initialize(ctx); err != nil {
			a.logger.Warn("Source failed to initialize, disabling", "source", src.Name(), "error", err)
			continue
		}
		ready = append(ready, src)
	}
	a.sources = ready

	if len(ready) == 0 {
		return ErrNoSources
	}

	a.logger.Info("Aggregator started", "sources", sourceNames(ready))
	return nil
}

// Stop stops every source and releases idle upstream connections
func (a *Aggregator) Stop() error {
	a.mu.RLock()
	srcs := a.sources
	a.mu.RUnlock()

	var errs []error
	for _, src := range srcs {
		if err := src.Stop(); err != nil {
			a.logger.Warn("Failed to stop source", "source", src.Name(), "error", err)
			errs = append(errs, err)
		}
	}

	if a.httpClient != nil {
		a.httpClient.CloseIdleConnections()
	}

	return errors.Join(errs...)
}

// Sources returns the names of the active sources in priority order
func (a *Aggregator) Sources() []string {
	return sourceNames(a.prioritized())
}

// GetPrices returns a price for every requested symbol it can resolve and
// the sorted list of symbols it could not. Symbols are canonicalized first.
// With forceRefresh the cache is not read but still written.
func (a *Aggregator) GetPrices(ctx context.Context, symbols []string, forceRefresh bool) (map[string]sources.PriceView, []string) {
	start := time.Now()
	defer func() {
		metrics.RecordGetPrices(forceRefresh, time.Since(start))
	}()

	requested := sources.CanonicalSymbols(symbols)
	results := make(map[string]sources.PriceView, len(requested))
	remaining := make(map[string]bool, len(requested))

	now := a.now()
	for _, symbol := range requested {
		if !forceRefresh {
			if p, ok := a.cache.Get(symbol); ok {
				results[symbol] = p.View(now)
				continue
			}
		}
		remaining[symbol] = true
	}

	srcs := a.prioritized()
	for _, src := range srcs {
		if len(remaining) == 0 {
			break
		}
		if ctx.Err() != nil {
			a.logger.Debug("Request cancelled, stopping fallback", "remaining", len(remaining))
			break
		}
		if !a.consult(ctx, src, remaining, results) {
			break
		}
	}

	unresolved := make([]string, 0, len(remaining))
	for symbol := range remaining {
		unresolved = append(unresolved, symbol)
		metrics.RecordUnresolved(unresolvedReason(srcs, symbol))
	}
	sort.Strings(unresolved)

	if len(unresolved) > 0 {
		a.logger.Debug("Symbols left unresolved", "symbols", unresolved)
	}

	return results, unresolved
}

// consult asks one source for the remaining symbols it maps, moving every
// valid price into results. It returns false when the caller's context
// ended during the fetch and the cascade should stop.
func (a *Aggregator) consult(ctx context.Context, src sources.Source, remaining map[string]bool, results map[string]sources.PriceView) bool {
	name := src.Name()

	if !a.breaker.IsAvailable(name) {
		a.skip(name, sources.OutcomeSourceUnavailable)
		return true
	}

	batch := make([]string, 0, len(remaining))
	for symbol := range remaining {
		if src.Supports(symbol) {
			batch = append(batch, symbol)
		}
	}
	if len(batch) == 0 {
		a.skip(name, sources.OutcomeSymbolUnsupported)
		return true
	}
	sort.Strings(batch)

	if !a.limiter.TryAcquire(name) {
		a.skip(name, sources.OutcomeRateLimited)
		return true
	}

	prices, err := a.fetch(ctx, src, batch)
	if err != nil {
		if ctx.Err() != nil {
			a.logger.Debug("Fetch abandoned by caller", "source", name, "error", err)
			return false
		}
		a.breaker.RecordFailure(name)
		a.logger.Warn("Source fetch failed",
			"source", name,
			"outcome", sources.Classify(err),
			"symbols", len(batch),
			"error", err)
		return true
	}

	a.breaker.RecordSuccess(name)

	now := a.now()
	resolved := 0
	for _, symbol := range batch {
		p, ok := prices[symbol]
		if !ok {
			continue
		}
		if !p.Valid() {
			a.logger.Warn("Discarding non-positive price", "source", name, "symbol", symbol, "price", p.Price.String())
			continue
		}

		p.Symbol = symbol
		if p.Source == "" {
			p.Source = name
		}
		if p.Timestamp.IsZero() || p.Timestamp.After(now) {
			p.Timestamp = now
		}

		a.cache.Put(p)
		results[symbol] = p.View(now)
		delete(remaining, symbol)
		resolved++
		metrics.RecordSourceUpdate(name, symbol)
	}

	a.logger.Debug("Source fetch succeeded", "source", name, "requested", len(batch), "resolved", resolved)
	return true
}

// fetch calls the adapter under the per-call timeout
func (a *Aggregator) fetch(ctx context.Context, src sources.Source, batch []string) (map[string]sources.Price, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	start := time.Now()
	prices, err := src.Fetch(callCtx, batch)
	if err == nil && callCtx.Err() != nil && ctx.Err() == nil {
		// Adapter ignored its context and returned after the call timeout.
		// Prices that arrive after the caller left are still kept.
		err = callCtx.Err()
	}

	outcome := sources.Classify(err)
	if err != nil && ctx.Err() != nil {
		outcome = "cancelled"
	}
	metrics.RecordSourceFetch(src.Name(), outcome, time.Since(start))

	return prices, err
}

// unresolvedReason tells a symbol no source maps from one that every
// mapping source failed to price.
func unresolvedReason(srcs []sources.Source, symbol string) string {
	for _, src := range srcs {
		if src.Supports(symbol) {
			return metrics.UnresolvedUnavailable
		}
	}
	return metrics.UnresolvedUnsupported
}

func (a *Aggregator) skip(source, reason string) {
	metrics.RecordSourceSkip(source, reason)
	a.logger.Debug("Skipping source", "source", source, "reason", reason)
}

// CacheStats summarizes the cache, open breakers and rate-limit windows
func (a *Aggregator) CacheStats() Stats {
	cs := a.cache.Stats()
	return Stats{
		TotalCached:     cs.Total,
		FreshCached:     cs.Fresh,
		StaleCached:     cs.Stale,
		CacheHitRate:    cs.HitRate,
		FailedSources:   a.breaker.OpenSources(),
		RateLimitStatus: a.limiter.Status(),
	}
}

func (a *Aggregator) prioritized() []sources.Source {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sources
}

func sourceNames(srcs []sources.Source) []string {
	names := make([]string, len(srcs))
	for i, src := range srcs {
		names[i] = src.Name()
	}
	return names
}
