// Package ratelimit bounds how fast a single sender may talk to the bot.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPerMinute is used when a Limiter is built with a non-positive limit.
const DefaultPerMinute = 30

// Limiter is a per-sender token bucket. A sender may send PerMinute messages
// in a burst, after which tokens refill evenly over the minute.
//
// Limiter is safe for concurrent use from multiple goroutines.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*bucket
	now       func() time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a Limiter accepting perMinute messages per sender per minute.
func New(perMinute int, opts ...Option) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	l := &Limiter{
		perMinute: perMinute,
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow consumes one token for sender and reports whether the message may
// be answered.
func (l *Limiter) Allow(sender string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.bucket(sender, now)
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

// Remaining returns how many messages sender could send right now.
func (l *Limiter) Remaining(sender string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[sender]
	if !ok {
		return l.perMinute
	}
	n := int(b.limiter.TokensAt(l.now()))
	if n < 0 {
		return 0
	}
	return n
}

// Prune forgets senders idle for longer than idle and returns how many were
// removed. A forgotten sender starts again with a full bucket.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	n := 0
	for sender, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, sender)
			n++
		}
	}
	return n
}

func (l *Limiter) bucket(sender string, now time.Time) *bucket {
	b, ok := l.buckets[sender]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(l.perMinute))
		b = &bucket{limiter: rate.NewLimiter(every, l.perMinute), seen: now}
		// Fill the bucket as of now rather than the zero time.
		b.limiter.SetBurstAt(now, l.perMinute)
		l.buckets[sender] = b
	}
	return b
}
