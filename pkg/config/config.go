// Package config provides configuration loading and validation for price-aggregator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultWSPath          = "/v1/ws"
	defaultCacheTTL        = 60 * time.Second
	defaultBreakerCooldown = 300 * time.Second
	defaultConnectTimeout  = 5 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultWarmupBatchSize = 20
	defaultWarmupPace      = 1
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration bytes, expanding ${ENV} references and
// applying defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = defaultHTTPAddr
	}
	if cfg.Server.WebSocket.Path == "" {
		cfg.Server.WebSocket.Path = defaultWSPath
	}

	if cfg.Aggregator.CacheTTL == 0 {
		cfg.Aggregator.CacheTTL = Duration(defaultCacheTTL)
	}
	if cfg.Aggregator.BreakerCooldown == 0 {
		cfg.Aggregator.BreakerCooldown = Duration(defaultBreakerCooldown)
	}
	if cfg.Aggregator.ConnectTimeout == 0 {
		cfg.Aggregator.ConnectTimeout = Duration(defaultConnectTimeout)
	}
	if cfg.Aggregator.RequestTimeout == 0 {
		cfg.Aggregator.RequestTimeout = Duration(defaultRequestTimeout)
	}

	if cfg.Warmup.BatchSize == 0 {
		cfg.Warmup.BatchSize = defaultWarmupBatchSize
	}
	if cfg.Warmup.BatchesPerSecond == 0 {
		cfg.Warmup.BatchesPerSecond = defaultWarmupPace
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// PrioritizedSources returns the enabled sources ordered by ascending
// priority. Sources with equal priority keep their order from the file.
func (c *Config) PrioritizedSources() []SourceConfig {
	enabled := make([]SourceConfig, 0, len(c.Sources))
	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}

// EffectiveMinInterval returns the minimum gap between two requests to a source.
// An explicit min_interval wins over requests_per_second.
func (rl RateLimitConfig) EffectiveMinInterval() time.Duration {
	if rl.MinInterval > 0 {
		return rl.MinInterval.ToDuration()
	}
	if rl.RequestsPerSecond > 0 {
		return time.Duration(float64(time.Second) / rl.RequestsPerSecond)
	}
	return 0
}

// GetString retrieves a string value from the source configuration.
func (sc *SourceConfig) GetString(key, defaultValue string) string {
	if val, ok := sc.Config[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean from source config.
func (sc *SourceConfig) GetBool(key string, defaultValue bool) bool {
	if val, ok := sc.Config[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultValue
}
