package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/Eliza/internal/eliza/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	clk := newClock()
	l := ratelimit.New(3, ratelimit.WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		if !l.Allow("@alice:example.com") {
			t.Fatalf("call %d: expected Allow to return true", i+1)
		}
	}
	if l.Allow("@alice:example.com") {
		t.Error("4th call: expected Allow to return false")
	}
}

func TestLimiter_IndependentPerSender(t *testing.T) {
	clk := newClock()
	l := ratelimit.New(1, ratelimit.WithClock(clk.Now))

	if !l.Allow("alice") {
		t.Fatal("alice first call should be allowed")
	}
	if l.Allow("alice") {
		t.Error("alice second call should be denied")
	}
	if !l.Allow("bob") {
		t.Error("bob should not be affected by alice's quota")
	}
}

func TestLimiter_Refills(t *testing.T) {
	clk := newClock()
	l := ratelimit.New(2, ratelimit.WithClock(clk.Now))

	l.Allow("alice")
	l.Allow("alice")
	if l.Allow("alice") {
		t.Fatal("expected quota to be exhausted")
	}

	// Two per minute refills one token every 30 seconds.
	clk.Advance(31 * time.Second)
	if !l.Allow("alice") {
		t.Error("expected one token after 31s")
	}
	if l.Allow("alice") {
		t.Error("expected only one token after 31s")
	}
}

func TestLimiter_Remaining(t *testing.T) {
	clk := newClock()
	l := ratelimit.New(5, ratelimit.WithClock(clk.Now))

	if got := l.Remaining("alice"); got != 5 {
		t.Errorf("Remaining before any call: got %d, want 5", got)
	}
	l.Allow("alice")
	l.Allow("alice")
	if got := l.Remaining("alice"); got != 3 {
		t.Errorf("Remaining after 2 calls: got %d, want 3", got)
	}
}

func TestLimiter_DefaultLimit(t *testing.T) {
	l := ratelimit.New(0)
	if got := l.Remaining("x"); got != ratelimit.DefaultPerMinute {
		t.Errorf("Remaining: got %d, want %d", got, ratelimit.DefaultPerMinute)
	}
}

func TestLimiter_Prune(t *testing.T) {
	clk := newClock()
	l := ratelimit.New(1, ratelimit.WithClock(clk.Now))

	l.Allow("alice")
	clk.Advance(10 * time.Second)
	l.Allow("bob")

	if n := l.Prune(5 * time.Second); n != 1 {
		t.Errorf("Prune: removed %d, want 1", n)
	}
	// alice starts over with a full bucket.
	if !l.Allow("alice") {
		t.Error("pruned sender should be allowed again")
	}
	if l.Allow("bob") {
		t.Error("bob should still be limited")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := ratelimit.New(100)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("alice") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	// Refill during the test may add a token or two.
	if allowed < 100 || allowed > 102 {
		t.Errorf("allowed %d of 200 concurrent calls, want about 100", allowed)
	}
}
