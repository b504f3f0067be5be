// Package config provides configuration loading and validation for price-aggregator.
package config

import "errors"

var (
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrNoSourcesEnabled indicates that every configured source is disabled.
	ErrNoSourcesEnabled = errors.New("no sources enabled")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrInvalidSourceType indicates that the source type is invalid.
	ErrInvalidSourceType = errors.New("invalid source type")
	// ErrDuplicateSource indicates that two sources share the same name.
	ErrDuplicateSource = errors.New("duplicate source name")
	// ErrInvalidPriority indicates a negative source priority.
	ErrInvalidPriority = errors.New("priority must be >= 0")
	// ErrInvalidRateLimit indicates a negative rate limit value.
	ErrInvalidRateLimit = errors.New("rate limit values must be >= 0")
	// ErrInvalidDuration indicates a negative duration setting.
	ErrInvalidDuration = errors.New("duration must be > 0")
	// ErrMaxCooldownTooSmall indicates that max_cooldown is below breaker_cooldown.
	ErrMaxCooldownTooSmall = errors.New("max_cooldown must be 0 or >= breaker_cooldown")
	// ErrWarmupSymbolsRequired indicates that warmup is enabled without symbols.
	ErrWarmupSymbolsRequired = errors.New("warmup enabled but no symbols configured")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
