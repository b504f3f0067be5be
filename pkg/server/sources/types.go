package sources

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SourceType represents the type of price source
type SourceType string

const (
	SourceTypeCEX SourceType = "cex"
)

// Price is a single observation of a symbol's price from one source.
type Price struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Change24h float64         `json:"change_24h"` // Percent
	Volume    decimal.Decimal `json:"volume_24h"`
}

// Valid reports whether the price can be served. Zero and negative prices
// are treated as fetch failures.
func (p Price) Valid() bool {
	return p.Price.IsPositive()
}

// Age returns how old the observation is at now.
func (p Price) Age(now time.Time) time.Duration {
	return now.Sub(p.Timestamp)
}

// View attaches the age computed at now.
func (p Price) View(now time.Time) PriceView {
	return PriceView{
		Price:      p,
		AgeSeconds: p.Age(now).Seconds(),
	}
}

// PriceView is a price as returned to callers, with its age at read time.
type PriceView struct {
	Price
	AgeSeconds float64 `json:"age_seconds"`
}

// Source defines the uniform fetch capability every upstream adapter implements.
type Source interface {
	// Initialize prepares the source for operation (connections, streams)
	Initialize(ctx context.Context) error

	// Stop halts the source and cleans up resources
	Stop() error

	// Fetch returns prices for the given canonical symbols. Symbols the
	// source does not map, or that the upstream omits, are simply absent
	// from the result; that is not an error. An error means the whole
	// request failed.
	Fetch(ctx context.Context, symbols []string) (map[string]Price, error)

	// Name returns the unique name of this source
	Name() string

	// Type returns the type of this source
	Type() SourceType

	// Symbols returns the canonical symbols this source can price
	Symbols() []string

	// Supports reports whether the symbol has a mapping on this source
	Supports(symbol string) bool
}

// SourceFactory is a function that creates a new Source instance
type SourceFactory func(config map[string]interface{}) (Source, error)
