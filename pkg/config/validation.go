package config

import (
	"fmt"
	"os"
	"strings"
)

var validSourceTypes = []string{"cex"}

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateAggregatorConfig(&cfg.Aggregator); err != nil {
		return fmt.Errorf("aggregator config: %w", err)
	}

	if len(cfg.Sources) == 0 {
		return ErrNoSourcesConfigured
	}
	names := make(map[string]bool, len(cfg.Sources))
	for i, source := range cfg.Sources {
		if err := validateSourceConfig(&source); err != nil {
			return fmt.Errorf("source %d (%s.%s): %w", i, source.Type, source.Name, err)
		}
		if names[source.Name] {
			return fmt.Errorf("source %d: %w: %s", i, ErrDuplicateSource, source.Name)
		}
		names[source.Name] = true
	}
	if len(cfg.PrioritizedSources()) == 0 {
		return ErrNoSourcesEnabled
	}

	if cfg.Warmup.Enabled && len(cfg.Warmup.Symbols) == 0 {
		return fmt.Errorf("warmup config: %w", ErrWarmupSymbolsRequired)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}
	return nil
}

func validateAggregatorConfig(cfg *AggregatorConfig) error {
	durations := map[string]Duration{
		"cache_ttl":        cfg.CacheTTL,
		"breaker_cooldown": cfg.BreakerCooldown,
		"connect_timeout":  cfg.ConnectTimeout,
		"request_timeout":  cfg.RequestTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, name)
		}
	}
	if cfg.MaxCooldown != 0 && cfg.MaxCooldown < cfg.BreakerCooldown {
		return ErrMaxCooldownTooSmall
	}
	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Type == "" {
		return ErrSourceTypeRequired
	}
	typeValid := false
	for _, t := range validSourceTypes {
		if strings.ToLower(cfg.Type) == t {
			typeValid = true
			break
		}
	}
	if !typeValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidSourceType, cfg.Type, strings.Join(validSourceTypes, ", "))
	}

	if cfg.Name == "" {
		return ErrSourceNameRequired
	}

	if cfg.Priority < 0 {
		return ErrInvalidPriority
	}

	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.MinInterval < 0 {
		return ErrInvalidRateLimit
	}

	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	format := strings.ToLower(cfg.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
