package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/StrathCole/price-aggregator/pkg/config"
	"github.com/StrathCole/price-aggregator/pkg/logging"
	"github.com/StrathCole/price-aggregator/pkg/metrics"
	"github.com/StrathCole/price-aggregator/pkg/server/aggregator"
	"github.com/StrathCole/price-aggregator/pkg/server/api"
	"github.com/StrathCole/price-aggregator/pkg/server/ratelimit"
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
	"github.com/StrathCole/price-aggregator/pkg/server/warmup"
	"github.com/StrathCole/price-aggregator/pkg/version"

	// Import sources to register them
	_ "github.com/StrathCole/price-aggregator/pkg/server/sources/cex"
)

const shutdownTimeout = 10 * time.Second

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
	warmupFlag = flag.Bool("warmup", false, "Warm the cache for configured warmup symbols even if warmup is disabled in the config")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("price-aggregator version %s\n", version.Version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *warmupFlag {
		cfg.Warmup.Enabled = true
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting price-aggregator", "version", version.Version)

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Price aggregator failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

// run wires sources, aggregator, warmer and API and blocks until ctx ends
// or the API server fails.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	httpClient := sources.NewHTTPClient(
		cfg.Aggregator.ConnectTimeout.ToDuration(),
		cfg.Aggregator.RequestTimeout.ToDuration(),
	)

	srcs, limits := buildSources(cfg, httpClient, logger)
	if len(srcs) == 0 {
		return aggregator.ErrNoSources
	}

	agg := aggregator.New(aggregator.Config{
		CacheTTL:        cfg.Aggregator.CacheTTL.ToDuration(),
		BreakerCooldown: cfg.Aggregator.BreakerCooldown.ToDuration(),
		MaxCooldown:     cfg.Aggregator.MaxCooldown.ToDuration(),
		RequestTimeout:  cfg.Aggregator.RequestTimeout.ToDuration(),
		Limits:          limits,
		HTTPClient:      httpClient,
	}, srcs, logger)

	if err := agg.Start(ctx); err != nil {
		return fmt.Errorf("failed to start aggregator: %w", err)
	}
	defer func() {
		if err := agg.Stop(); err != nil {
			logger.Warn("Errors while stopping sources", "error", err)
		}
	}()
	logger.Info("Sources ready", "priority", agg.Sources())

	var warmer *warmup.Warmer
	if cfg.Warmup.Enabled {
		warmer = warmup.New(warmup.Config{
			Symbols:          cfg.Warmup.Symbols,
			Interval:         cfg.Warmup.Interval.ToDuration(),
			BatchSize:        cfg.Warmup.BatchSize,
			BatchesPerSecond: cfg.Warmup.BatchesPerSecond,
		}, agg, logger)
		warmer.Start(ctx)
		defer warmer.Stop()
	}

	server := api.NewServer(cfg.Server.HTTP.Addr, agg, logger)
	if cfg.Server.WebSocket.Enabled {
		server.EnableWebSocket(cfg.Server.WebSocket.Path)
	}

	errChan := make(chan error, 1)
	go func() {
		if cfg.Server.HTTP.TLS.Enabled {
			errChan <- server.StartTLS(cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key)
			return
		}
		errChan <- server.Start()
	}()

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-errChan:
		if runErr == nil {
			runErr = errors.New("HTTP server stopped unexpectedly")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}

	return runErr
}

// buildSources creates the enabled sources in priority order together with
// their rate limits. Sources that cannot be created are logged and skipped.
func buildSources(cfg *config.Config, httpClient *http.Client, logger *logging.Logger) ([]sources.Source, map[string]ratelimit.Limit) {
	var srcs []sources.Source
	limits := make(map[string]ratelimit.Limit)

	for _, sourceCfg := range cfg.PrioritizedSources() {
		logger.Info("Creating source", "type", sourceCfg.Type, "name", sourceCfg.Name, "priority", sourceCfg.Priority)

		// Add shared logger and client so sources don't create their own
		srcConfig := make(map[string]interface{}, len(sourceCfg.Config)+2)
		for k, v := range sourceCfg.Config {
			srcConfig[k] = v
		}
		srcConfig["logger"] = logger
		srcConfig["http_client"] = httpClient

		source, err := sources.Create(sourceCfg.Type, sourceCfg.Name, srcConfig)
		if err != nil {
			logger.Warn("Failed to create source", "type", sourceCfg.Type, "name", sourceCfg.Name, "error", err)
			continue
		}

		limits[source.Name()] = ratelimit.Limit{
			RequestsPerMinute: sourceCfg.RateLimit.RequestsPerMinute,
			MinInterval:       sourceCfg.RateLimit.EffectiveMinInterval(),
		}
		srcs = append(srcs, source)
	}

	return srcs, limits
}
