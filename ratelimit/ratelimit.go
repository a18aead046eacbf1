// Package ratelimit implements fixed-window admission control keyed by
// caller identifier, with one independent limiter per named action.
//
// Each limiter counts requests per identifier within discrete,
// non-overlapping windows. An entry whose window has passed is replaced on
// next access, never incremented. A background sweep owned by the Pool
// removes expired entries so memory stays bounded to active callers.
//
// Synchronization is per entry: concurrent calls for the same
// (action, identifier) pair are linearized by the entry's own mutex, while
// calls for different pairs never contend on a shared lock.
package ratelimit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCleanupInterval is how often the Pool sweeps expired entries.
	// Deliberately coarser than any individual action window.
	DefaultCleanupInterval = 5 * time.Minute
)

// Config holds the capacity and window for one named action.
// Immutable after the Pool is constructed.
type Config struct {
	// Capacity is the maximum number of requests per identifier per window.
	Capacity int

	// Window is the fixed window duration.
	Window time.Duration
}

// entry tracks one identifier's count within the current window.
// All fields are guarded by mu. gone marks entries removed by the sweep so
// a concurrent Allow re-creates the entry instead of resurrecting it.
type entry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
	gone    bool
}

// Limiter is a fixed-window rate limiter for a single named action.
type Limiter struct {
	cfg     Config
	entries sync.Map // identifier -> *entry
	now     func() time.Time

	// Statistics
	totalAllowed  atomic.Int64
	totalDenied   atomic.Int64
	activeEntries atomic.Int64
	totalSweeps   atomic.Int64
}

// newLimiter creates a limiter for one action. Limiters are only created
// through a Pool so that the sweep goroutine covers all of them.
func newLimiter(cfg Config, now func() time.Time) *Limiter {
	return &Limiter{
		cfg: cfg,
		now: now,
	}
}

// Allow records a request from the given identifier and reports whether it
// is admitted within the current window.
//
// Absent or expired entries are replaced with a fresh {count:1} entry.
// At capacity the call is denied and the entry is left unchanged.
func (l *Limiter) Allow(identifier string) bool {
	now := l.now()

	for {
		v, loaded := l.entries.LoadOrStore(identifier, &entry{})
		e := v.(*entry)
		if !loaded {
			l.activeEntries.Add(1)
		}

		e.mu.Lock()
		if e.gone {
			// Swept between LoadOrStore and Lock; retry with a fresh entry.
			e.mu.Unlock()
			continue
		}

		switch {
		case e.count == 0 || now.After(e.resetAt):
			// Fresh or expired window: replace, never carry the old count.
			e.count = 1
			e.resetAt = now.Add(l.cfg.Window)
			e.mu.Unlock()
			l.totalAllowed.Add(1)
			return true

		case e.count < l.cfg.Capacity:
			e.count++
			e.mu.Unlock()
			l.totalAllowed.Add(1)
			return true

		default:
			e.mu.Unlock()
			l.totalDenied.Add(1)
			return false
		}
	}
}

// Count returns the identifier's request count within the current window,
// or zero if the identifier is unknown or its window has expired.
func (l *Limiter) Count(identifier string) int {
	v, ok := l.entries.Load(identifier)
	if !ok {
		return 0
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone || e.count == 0 || l.now().After(e.resetAt) {
		return 0
	}
	return e.count
}

// ResetIn returns how long until the identifier's current window expires.
// Returns zero for unknown identifiers and expired windows, meaning the
// next request starts a fresh window.
func (l *Limiter) ResetIn(identifier string) time.Duration {
	v, ok := l.entries.Load(identifier)
	if !ok {
		return 0
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone || e.count == 0 {
		return 0
	}
	d := e.resetAt.Sub(l.now())
	if d < 0 {
		return 0
	}
	return d
}

// Config returns the limiter's capacity and window.
func (l *Limiter) Config() Config {
	return l.cfg
}

// sweep removes entries whose window has already expired. Expiry is proven
// under the entry's own lock; an entry being incremented concurrently is
// never removed.
func (l *Limiter) sweep() int {
	now := l.now()
	removed := 0

	l.entries.Range(func(key, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if !e.gone && now.After(e.resetAt) {
			e.gone = true
			l.entries.Delete(key)
			l.activeEntries.Add(-1)
			removed++
		}
		e.mu.Unlock()
		return true
	})

	if removed > 0 {
		l.totalSweeps.Add(1)
	}
	return removed
}

// Stats holds limiter statistics for monitoring.
type Stats struct {
	ActiveEntries int64 // current number of tracked identifiers
	TotalAllowed  int64 // total requests admitted
	TotalDenied   int64 // total requests denied
	TotalSweeps   int64 // sweeps that removed at least one entry
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() Stats {
	return Stats{
		ActiveEntries: l.activeEntries.Load(),
		TotalAllowed:  l.totalAllowed.Load(),
		TotalDenied:   l.totalDenied.Load(),
		TotalSweeps:   l.totalSweeps.Load(),
	}
}

// Pool is a named set of independent limiters, one per action. The set of
// actions is fixed at construction. The Pool owns the single background
// sweep goroutine covering all of its limiters.
type Pool struct {
	limiters        map[string]*Limiter
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewPool creates a pool with one limiter per configured action and the
// default cleanup interval.
func NewPool(configs map[string]Config, logger *slog.Logger) *Pool {
	return NewPoolWithConfig(configs, DefaultCleanupInterval, logger)
}

// NewPoolWithConfig creates a pool with a custom cleanup interval.
func NewPoolWithConfig(configs map[string]Config, cleanupInterval time.Duration, logger *slog.Logger) *Pool {
	return newPool(configs, cleanupInterval, logger, time.Now)
}

// newPool is the shared constructor. The clock is fixed before the sweep
// goroutine starts so it is never swapped while the loop is reading it.
func newPool(configs map[string]Config, cleanupInterval time.Duration, logger *slog.Logger, now func() time.Time) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
		logger.Warn("Invalid cleanupInterval, using default", "cleanupInterval", cleanupInterval)
	}

	p := &Pool{
		limiters:        make(map[string]*Limiter, len(configs)),
		logger:          logger,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             now,
	}

	for action, cfg := range configs {
		if cfg.Capacity <= 0 || cfg.Window <= 0 {
			logger.Warn("Skipping action with invalid limiter config",
				"action", action,
				"capacity", cfg.Capacity,
				"window", cfg.Window)
			continue
		}
		p.limiters[action] = newLimiter(cfg, p.clock)
	}

	go p.cleanupLoop()

	logger.Debug("Rate limiter pool initialized",
		"actions", len(p.limiters),
		"cleanup_interval", cleanupInterval)

	return p
}

// clock indirects through the pool's now func so tests can substitute a
// virtual clock for every limiter at once.
func (p *Pool) clock() time.Time {
	return p.now()
}

// Limiter returns the limiter for the given action, if configured.
func (p *Pool) Limiter(action string) (*Limiter, bool) {
	l, ok := p.limiters[action]
	return l, ok
}

// Allow reports whether a request for the action from the identifier is
// admitted. Unknown actions are denied; the Pool's action set is fixed, so
// an unknown action is a caller bug, not traffic to wave through.
func (p *Pool) Allow(action, identifier string) bool {
	l, ok := p.limiters[action]
	if !ok {
		p.logger.Warn("Rate limit check for unconfigured action", "action", action)
		return false
	}
	return l.Allow(identifier)
}

// cleanupLoop periodically sweeps expired entries from every limiter.
func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Sweep()
		case <-p.stopCleanup:
			return
		}
	}
}

// Sweep removes expired entries from every limiter. Exposed so tests can
// trigger cleanup deterministically instead of waiting on the ticker.
func (p *Pool) Sweep() {
	removed := 0
	for _, l := range p.limiters {
		removed += l.sweep()
	}
	if removed > 0 {
		p.logger.Debug("Rate limiter sweep completed", "removed", removed)
	}
}

// Stats returns per-action limiter statistics.
func (p *Pool) Stats() map[string]Stats {
	stats := make(map[string]Stats, len(p.limiters))
	for action, l := range p.limiters {
		stats[action] = l.Stats()
	}
	return stats
}

// Stop terminates the background sweep goroutine. Safe to call multiple
// times concurrently.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCleanup)
		p.logger.Debug("Rate limiter pool stopped")
	})
}
