// Package ratelimit tracks per-source request windows so upstream limits are
// never exceeded. Checks never block: a denied request is skipped by the
// caller, not queued.
package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// Window is the trailing period counted against RequestsPerMinute.
const Window = time.Minute

// Limit bounds how often one source may be called.
type Limit struct {
	RequestsPerMinute int           // 0 = no per-minute bound
	MinInterval       time.Duration // 0 = no spacing between requests
}

// Unlimited reports whether the limit places no bound at all.
func (l Limit) Unlimited() bool {
	return l.RequestsPerMinute <= 0 && l.MinInterval <= 0
}

type window struct {
	mu     sync.Mutex
	limit  Limit
	stamps []time.Time // ascending, within the trailing Window after prune
	last   time.Time
}

// Limiter holds one sliding window per source.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	now     func() time.Time
}

// New creates a limiter for the given per-source limits. now may be nil.
func New(limits map[string]Limit, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	l := &Limiter{
		windows: make(map[string]*window, len(limits)),
		now:     now,
	}
	for source, limit := range limits {
		l.windows[source] = &window{limit: limit}
	}
	return l
}

// Configure sets or replaces the limit of a source, keeping its history.
func (l *Limiter) Configure(source string, limit Limit) {
	w := l.window(source)
	w.mu.Lock()
	w.limit = limit
	w.mu.Unlock()
}

// Allow reports whether a request to source may be made now.
func (l *Limiter) Allow(source string) bool {
	w := l.window(source)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.allow(l.now())
}

// Record counts a request to source made now.
func (l *Limiter) Record(source string) {
	w := l.window(source)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(l.now())
}

// TryAcquire checks and records in one step. Concurrent callers cannot both
// pass the check for the last free slot.
func (l *Limiter) TryAcquire(source string) bool {
	w := l.window(source)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	if !w.allow(now) {
		return false
	}
	w.record(now)
	return true
}

// Count returns the number of requests to source within the current window.
func (l *Limiter) Count(source string) int {
	w := l.window(source)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(l.now())
	return len(w.stamps)
}

// Status returns the current window size of every known source.
func (l *Limiter) Status() map[string]int {
	l.mu.RLock()
	names := make([]string, 0, len(l.windows))
	for name := range l.windows {
		names = append(names, name)
	}
	l.mu.RUnlock()
	sort.Strings(names)

	status := make(map[string]int, len(names))
	for _, name := range names {
		status[name] = l.Count(name)
	}
	return status
}

func (l *Limiter) window(source string) *window {
	l.mu.RLock()
	w, ok := l.windows[source]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[source]; !ok {
		w = &window{}
		l.windows[source] = w
	}
	return w
}

// allow must be called with w.mu held.
func (w *window) allow(now time.Time) bool {
	w.prune(now)

	if w.limit.RequestsPerMinute > 0 && len(w.stamps) >= w.limit.RequestsPerMinute {
		return false
	}
	if w.limit.MinInterval > 0 && !w.last.IsZero() && now.Sub(w.last) < w.limit.MinInterval {
		return false
	}
	return true
}

func (w *window) record(now time.Time) {
	w.stamps = append(w.stamps, now)
	w.last = now
}

// prune drops stamps older than Window. Must be called with w.mu held.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
