// Package cache holds the latest price per symbol with lazy TTL expiry.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/StrathCole/price-aggregator/pkg/metrics"
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

// DefaultTTL is used when New is given a zero TTL.
const DefaultTTL = 60 * time.Second

// Lookup results reported to metrics
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultExpired = "expired"
)

// Stats is a point-in-time view of the cache
type Stats struct {
	Total   int     `json:"total"`
	Fresh   int     `json:"fresh"`
	Stale   int     `json:"stale"` // expired but not yet read
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"` // 0 before the first lookup
}

// Cache maps canonical symbols to their latest price. Entries are never
// swept in the background: a read that finds an expired entry deletes it.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]sources.Price
	ttl     time.Duration
	now     func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates an empty cache. now may be nil.
func New(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]sources.Price),
		ttl:     ttl,
		now:     now,
	}
}

// TTL returns the maximum age of a served entry
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for symbol if its age does not exceed the TTL
func (c *Cache) Get(symbol string) (sources.Price, bool) {
	c.mu.RLock()
	p, ok := c.entries[symbol]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		metrics.RecordCacheLookup(resultMiss)
		return sources.Price{}, false
	}

	if c.fresh(p, c.now()) {
		c.hits.Add(1)
		metrics.RecordCacheLookup(resultHit)
		return p, true
	}

	c.mu.Lock()
	// A concurrent Put may have replaced the entry since the read above
	if cur, ok := c.entries[symbol]; ok && !c.fresh(cur, c.now()) {
		delete(c.entries, symbol)
	}
	c.mu.Unlock()

	c.misses.Add(1)
	metrics.RecordCacheLookup(resultExpired)
	return sources.Price{}, false
}

// Put stores p, replacing any entry for the same symbol
func (c *Cache) Put(p sources.Price) {
	c.mu.Lock()
	c.entries[p.Symbol] = p
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats counts fresh and stale entries without expiring anything
func (c *Cache) Stats() Stats {
	now := c.now()

	c.mu.RLock()
	stats := Stats{Total: len(c.entries)}
	for _, p := range c.entries {
		if c.fresh(p, now) {
			stats.Fresh++
		}
	}
	c.mu.RUnlock()

	stats.Stale = stats.Total - stats.Fresh
	stats.Hits = c.hits.Load()
	stats.Misses = c.misses.Load()
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		stats.HitRate = float64(stats.Hits) / float64(lookups)
	}
	return stats
}

func (c *Cache) fresh(p sources.Price, now time.Time) bool {
	return p.Age(now) <= c.ttl
}
