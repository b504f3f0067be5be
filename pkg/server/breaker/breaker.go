// Package breaker implements the per-source circuit breaker used by the
// aggregator's fallback cascade.
//
// A source is either Closed (callable) or Open (failed recently). An Open
// source becomes callable again once its cooldown has elapsed since the last
// failure; it stays Open until a call actually succeeds. There is no
// half-open state limiting how many callers may probe at once.
package breaker

import (
	"sort"
	"sync"
	"time"

	"github.com/StrathCole/price-aggregator/pkg/metrics"
)

// DefaultCooldown is used when Config.Cooldown is zero.
const DefaultCooldown = 300 * time.Second

// State is the breaker state of one source
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker
type Config struct {
	Cooldown time.Duration
	// MaxCooldown enables doubling of the cooldown for every consecutive
	// failure, capped at this value. Zero or <= Cooldown keeps it fixed.
	MaxCooldown time.Duration
	Now         func() time.Time
}

type circuit struct {
	mu       sync.Mutex
	state    State
	openedAt time.Time
	failures int // consecutive
}

// Breaker tracks one circuit per source
type Breaker struct {
	cooldown    time.Duration
	maxCooldown time.Duration
	now         func() time.Time

	mu       sync.RWMutex
	circuits map[string]*circuit
}

// New creates a breaker with every source Closed
func New(cfg Config) *Breaker {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		cooldown:    cfg.Cooldown,
		maxCooldown: cfg.MaxCooldown,
		now:         cfg.Now,
		circuits:    make(map[string]*circuit),
	}
}

// IsAvailable reports whether source may be called. An Open source whose
// cooldown has elapsed is available but remains Open.
func (b *Breaker) IsAvailable(source string) bool {
	c := b.circuit(source)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return true
	}
	return b.now().Sub(c.openedAt) >= b.cooldownFor(c.failures)
}

// RecordSuccess closes the circuit of source
func (b *Breaker) RecordSuccess(source string) {
	c := b.circuit(source)
	c.mu.Lock()
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	c.openedAt = time.Time{}
	c.failures = 0
	c.mu.Unlock()

	if wasOpen {
		metrics.RecordBreakerState(source, false)
	}
}

// RecordFailure opens the circuit of source and restarts its cooldown
func (b *Breaker) RecordFailure(source string) {
	c := b.circuit(source)
	c.mu.Lock()
	c.state = StateOpen
	c.openedAt = b.now()
	c.failures++
	c.mu.Unlock()

	metrics.RecordBreakerState(source, true)
}

// State returns the current state of source
func (b *Breaker) State(source string) State {
	c := b.circuit(source)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cooldown returns the cooldown currently applying to source
func (b *Breaker) Cooldown(source string) time.Duration {
	c := b.circuit(source)
	c.mu.Lock()
	defer c.mu.Unlock()
	return b.cooldownFor(c.failures)
}

// OpenSources returns the sorted names of all sources currently Open
func (b *Breaker) OpenSources() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	open := make([]string, 0)
	for name, c := range b.circuits {
		c.mu.Lock()
		if c.state == StateOpen {
			open = append(open, name)
		}
		c.mu.Unlock()
	}
	sort.Strings(open)
	return open
}

// cooldownFor returns base * 2^(failures-1) capped at maxCooldown when
// growth is enabled, the base cooldown otherwise.
func (b *Breaker) cooldownFor(failures int) time.Duration {
	if b.maxCooldown <= b.cooldown || failures <= 1 {
		return b.cooldown
	}
	d := b.cooldown
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= b.maxCooldown {
			return b.maxCooldown
		}
	}
	return d
}

func (b *Breaker) circuit(source string) *circuit {
	b.mu.RLock()
	c, ok := b.circuits[source]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.circuits[source]; !ok {
		c = &circuit{}
		b.circuits[source] = c
	}
	return c
}
