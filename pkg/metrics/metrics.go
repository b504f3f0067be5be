// Package metrics provides Prometheus metrics for the price aggregator.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PriceUpdatesTotal is a counter of prices accepted from sources.
	PriceUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_updates_total",
			Help: "Total number of valid prices accepted from sources",
		},
		[]string{"source", "symbol"},
	)

	// SourceLastUpdate is a gauge of the last successful fetch timestamp per source.
	SourceLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_last_update_timestamp",
			Help: "Unix timestamp of last successful fetch from source",
		},
		[]string{"source"},
	)

	// CacheLookupsTotal counts cache reads by result (hit, miss, expired).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cache_lookups_total",
			Help: "Total number of price cache lookups by result",
		},
		[]string{"result"},
	)

	// SourceFetchesTotal counts adapter calls by outcome.
	SourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Total number of upstream fetches by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// SourceFetchDuration is a histogram of adapter call latencies.
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Duration of upstream fetches",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	// SourceSkipsTotal counts sources passed over in the fallback cascade.
	SourceSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_skips_total",
			Help: "Total number of times a source was skipped by reason",
		},
		[]string{"source", "reason"},
	)

	// BreakerOpen is 1 while a source's circuit breaker is open.
	BreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_breaker_open",
			Help: "Circuit breaker state per source (1=open, 0=closed)",
		},
		[]string{"source"},
	)

	// UnresolvedSymbolsTotal counts symbols no source could price, by
	// reason: "unsupported" (no source maps the symbol) or "unavailable"
	// (mapped, but no source returned a valid price).
	UnresolvedSymbolsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unresolved_symbols_total",
			Help: "Total number of requested symbols left unresolved",
		},
		[]string{"reason"},
	)

	// GetPricesDuration is a histogram of full GetPrices calls.
	GetPricesDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "get_prices_duration_seconds",
			Help:    "Duration of GetPrices calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"force_refresh"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 10},
		},
		[]string{"endpoint"},
	)
)

var initOnce sync.Once

// Init registers all metrics with the default Prometheus registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			PriceUpdatesTotal,
			SourceLastUpdate,
			CacheLookupsTotal,
			SourceFetchesTotal,
			SourceFetchDuration,
			SourceSkipsTotal,
			BreakerOpen,
			UnresolvedSymbolsTotal,
			GetPricesDuration,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceUpdate records a price accepted from a source.
func RecordSourceUpdate(source, symbol string) {
	PriceUpdatesTotal.WithLabelValues(source, symbol).Inc()
	SourceLastUpdate.WithLabelValues(source).SetToCurrentTime()
}

// RecordCacheLookup records a cache read result.
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordSourceFetch records the outcome and latency of an adapter call.
func RecordSourceFetch(source, outcome string, duration time.Duration) {
	SourceFetchesTotal.WithLabelValues(source, outcome).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordSourceSkip records a source passed over in the cascade.
func RecordSourceSkip(source, reason string) {
	SourceSkipsTotal.WithLabelValues(source, reason).Inc()
}

// RecordBreakerState records whether a source's breaker is open.
func RecordBreakerState(source string, open bool) {
	val := 0.0
	if open {
		val = 1.0
	}
	BreakerOpen.WithLabelValues(source).Set(val)
}

// Unresolved reasons
const (
	UnresolvedUnsupported = "unsupported"
	UnresolvedUnavailable = "unavailable"
)

// RecordUnresolved records a symbol left unresolved. The symbol itself is
// not a label: callers choose it freely.
func RecordUnresolved(reason string) {
	UnresolvedSymbolsTotal.WithLabelValues(reason).Inc()
}

// RecordGetPrices records a GetPrices call.
func RecordGetPrices(forceRefresh bool, duration time.Duration) {
	label := "false"
	if forceRefresh {
		label = "true"
	}
	GetPricesDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
