package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Warmup     WarmupConfig     `yaml:"warmup"`
	Sources    []SourceConfig   `yaml:"sources"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the price API
type ServerConfig struct {
	HTTP      HTTPConfig `yaml:"http"`
	WebSocket WSConfig   `yaml:"websocket"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the request/response WebSocket endpoint
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// AggregatorConfig configures caching, circuit breaking and upstream timeouts.
type AggregatorConfig struct {
	CacheTTL        Duration `yaml:"cache_ttl"`        // Max age of a cached price (default 60s)
	BreakerCooldown Duration `yaml:"breaker_cooldown"` // Time a failed source stays disabled (default 300s)
	MaxCooldown     Duration `yaml:"max_cooldown"`     // Cap for cooldown doubling; 0 keeps cooldown fixed
	ConnectTimeout  Duration `yaml:"connect_timeout"`  // Dial timeout for upstream requests (default 5s)
	RequestTimeout  Duration `yaml:"request_timeout"`  // Total timeout per adapter call (default 10s)
}

// WarmupConfig configures cache pre-fill for frequently requested symbols
type WarmupConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Symbols          []string `yaml:"symbols"`
	Interval         Duration `yaml:"interval"`           // 0 = warm once at startup only
	BatchSize        int      `yaml:"batch_size"`         // Symbols per GetPrices call
	BatchesPerSecond int      `yaml:"batches_per_second"` // Pacing between batches
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type      string                 `yaml:"type"`
	Name      string                 `yaml:"name"`
	Enabled   bool                   `yaml:"enabled"`
	Priority  int                    `yaml:"priority"` // Lower is consulted first
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Config    map[string]interface{} `yaml:"config"`
}

// RateLimitConfig bounds how often a single source may be called
type RateLimitConfig struct {
	RequestsPerMinute int      `yaml:"requests_per_minute"` // 0 = unlimited
	RequestsPerSecond float64  `yaml:"requests_per_second"` // Converted to a minimum interval
	MinInterval       Duration `yaml:"min_interval"`        // Explicit minimum gap between requests
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
