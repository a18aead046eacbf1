package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// testClock is a manually advanced clock so window expiry can be tested
// without sleeping.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestPool(t *testing.T, configs map[string]Config) (*Pool, *testClock) {
	t.Helper()
	clock := newTestClock()
	p := newPool(configs, DefaultCleanupInterval, slog.Default(), clock.Now)
	t.Cleanup(p.Stop)
	return p, clock
}

func TestPool_Allow_CapacityBoundary(t *testing.T) {
	p, _ := newTestPool(t, map[string]Config{
		"search": {Capacity: 5, Window: time.Minute},
	})

	for i := 0; i < 5; i++ {
		if !p.Allow("search", "u1") {
			t.Errorf("Allow() request %d should be allowed", i+1)
		}
	}

	if p.Allow("search", "u1") {
		t.Error("Allow() request 6 should be denied at capacity")
	}

	l, _ := p.Limiter("search")
	if got := l.Count("u1"); got != 5 {
		t.Errorf("Count() = %d, want 5 (denied call must not change state)", got)
	}

	resetIn := l.ResetIn("u1")
	if resetIn <= 0 || resetIn > time.Minute {
		t.Errorf("ResetIn() = %v, want in (0, 1m]", resetIn)
	}
}

func TestPool_Allow_WindowExpiryResetsCount(t *testing.T) {
	p, clock := newTestPool(t, map[string]Config{
		"search": {Capacity: 5, Window: time.Minute},
	})

	for i := 0; i < 5; i++ {
		p.Allow("search", "u1")
	}
	if p.Allow("search", "u1") {
		t.Fatal("Allow() should be denied at capacity")
	}

	clock.Advance(time.Minute + time.Second)

	if !p.Allow("search", "u1") {
		t.Error("Allow() should be allowed after window expiry")
	}

	l, _ := p.Limiter("search")
	if got := l.Count("u1"); got != 1 {
		t.Errorf("Count() after expiry = %d, want 1 (fresh window, not accumulated)", got)
	}
}

func TestPool_Allow_IdentifiersIndependent(t *testing.T) {
	p, _ := newTestPool(t, map[string]Config{
		"api": {Capacity: 2, Window: time.Minute},
	})

	p.Allow("api", "u1")
	p.Allow("api", "u1")
	if p.Allow("api", "u1") {
		t.Error("Allow(u1) should be denied at capacity")
	}

	if !p.Allow("api", "u2") {
		t.Error("Allow(u2) should be allowed (independent identifier)")
	}
}

func TestPool_Allow_ActionsIndependent(t *testing.T) {
	p, _ := newTestPool(t, map[string]Config{
		"search": {Capacity: 1, Window: time.Minute},
		"upload": {Capacity: 1, Window: time.Hour},
	})

	if !p.Allow("search", "u1") {
		t.Error("Allow(search) should be allowed")
	}
	if p.Allow("search", "u1") {
		t.Error("Allow(search) should be denied at capacity")
	}

	if !p.Allow("upload", "u1") {
		t.Error("Allow(upload) should be allowed (independent action)")
	}
}

func TestPool_Allow_UnknownActionDenied(t *testing.T) {
	p, _ := newTestPool(t, map[string]Config{
		"api": {Capacity: 10, Window: time.Minute},
	})

	if p.Allow("nonexistent", "u1") {
		t.Error("Allow() for unconfigured action should be denied")
	}
}

func TestLimiter_CountAndResetIn_UnknownIdentifier(t *testing.T) {
	p, _ := newTestPool(t, map[string]Config{
		"api": {Capacity: 10, Window: time.Minute},
	})
	l, _ := p.Limiter("api")

	if got := l.Count("ghost"); got != 0 {
		t.Errorf("Count(unknown) = %d, want 0", got)
	}
	if got := l.ResetIn("ghost"); got != 0 {
		t.Errorf("ResetIn(unknown) = %v, want 0", got)
	}
}

func TestLimiter_CountExpiredWindowIsZero(t *testing.T) {
	p, clock := newTestPool(t, map[string]Config{
		"api": {Capacity: 10, Window: time.Minute},
	})
	l, _ := p.Limiter("api")

	p.Allow("api", "u1")
	clock.Advance(2 * time.Minute)

	if got := l.Count("u1"); got != 0 {
		t.Errorf("Count() on expired window = %d, want 0", got)
	}
	if got := l.ResetIn("u1"); got != 0 {
		t.Errorf("ResetIn() on expired window = %v, want 0", got)
	}
}

func TestPool_Sweep_RemovesOnlyExpiredEntries(t *testing.T) {
	p, clock := newTestPool(t, map[string]Config{
		"api": {Capacity: 10, Window: time.Minute},
	})
	l, _ := p.Limiter("api")

	p.Allow("api", "old")
	clock.Advance(2 * time.Minute)
	p.Allow("api", "fresh")

	p.Sweep()

	stats := l.Stats()
	if stats.ActiveEntries != 1 {
		t.Errorf("ActiveEntries after sweep = %d, want 1", stats.ActiveEntries)
	}
	if got := l.Count("fresh"); got != 1 {
		t.Errorf("Count(fresh) after sweep = %d, want 1", got)
	}

	// A swept identifier starts over on next access.
	if !p.Allow("api", "old") {
		t.Error("Allow() after sweep should start a fresh window")
	}
	if got := l.Count("old"); got != 1 {
		t.Errorf("Count(old) after re-admission = %d, want 1", got)
	}
}

func TestPool_Stats(t *testing.T) {
	p, _ := newTestPool(t, map[string]Config{
		"api": {Capacity: 1, Window: time.Minute},
	})

	p.Allow("api", "u1")
	p.Allow("api", "u1") // denied

	stats := p.Stats()["api"]
	if stats.TotalAllowed != 1 {
		t.Errorf("TotalAllowed = %d, want 1", stats.TotalAllowed)
	}
	if stats.TotalDenied != 1 {
		t.Errorf("TotalDenied = %d, want 1", stats.TotalDenied)
	}
	if stats.ActiveEntries != 1 {
		t.Errorf("ActiveEntries = %d, want 1", stats.ActiveEntries)
	}
}

func TestPool_InvalidConfigSkipped(t *testing.T) {
	p, _ := newTestPool(t, map[string]Config{
		"good": {Capacity: 1, Window: time.Minute},
		"bad":  {Capacity: 0, Window: time.Minute},
	})

	if _, ok := p.Limiter("good"); !ok {
		t.Error("Limiter(good) should exist")
	}
	if _, ok := p.Limiter("bad"); ok {
		t.Error("Limiter(bad) should have been skipped")
	}
}

func TestPool_Stop_Idempotent(t *testing.T) {
	p := NewPool(map[string]Config{
		"api": {Capacity: 1, Window: time.Minute},
	}, slog.Default())

	p.Stop()
	p.Stop() // must not panic
}

func TestLimiter_ConcurrentAllow(t *testing.T) {
	p, _ := newTestPool(t, map[string]Config{
		"api": {Capacity: 50, Window: time.Minute},
	})
	l, _ := p.Limiter("api")

	const goroutines = 10
	const perGoroutine = 10

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				p.Allow("api", "shared")
			}
		}()
	}
	wg.Wait()

	// 100 concurrent requests against capacity 50: exactly 50 admitted.
	if got := l.Count("shared"); got != 50 {
		t.Errorf("Count() after concurrent calls = %d, want 50", got)
	}

	stats := l.Stats()
	if stats.TotalAllowed != 50 || stats.TotalDenied != 50 {
		t.Errorf("stats = %+v, want 50 allowed / 50 denied", stats)
	}
}

func TestLimiter_ConcurrentAllowWithSweep(t *testing.T) {
	p, clock := newTestPool(t, map[string]Config{
		"api": {Capacity: 1000, Window: time.Minute},
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p.Allow("api", fmt.Sprintf("user-%d-%d", g, i%5))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			p.Sweep()
		}
	}()
	wg.Wait()

	// Nothing expired, so the sweep must not have removed live entries.
	l, _ := p.Limiter("api")
	if stats := l.Stats(); stats.ActiveEntries != 40 {
		t.Errorf("ActiveEntries = %d, want 40", stats.ActiveEntries)
	}

	clock.Advance(2 * time.Minute)
	p.Sweep()
	l2, _ := p.Limiter("api")
	if stats := l2.Stats(); stats.ActiveEntries != 0 {
		t.Errorf("ActiveEntries after expiry sweep = %d, want 0", stats.ActiveEntries)
	}
}
