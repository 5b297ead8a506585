// Package ratelimit wraps golang.org/x/time/rate with per-minute budgets
// and a keyed variant for per-client limits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket sized in requests per minute.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing requestsPerMinute with a burst of a tenth
// of that, at least one.
func New(requestsPerMinute int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(perMinute(requestsPerMinute), burstFor(requestsPerMinute))}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow takes a token if one is available now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

func perMinute(rpm int) rate.Limit {
	return rate.Limit(float64(rpm) / 60.0)
}

func burstFor(rpm int) int {
	if b := rpm / 10; b > 1 {
		return b
	}
	return 1
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed keeps one bucket per key. Buckets idle for longer than the idle
// window are dropped on the next sweep.
type Keyed struct {
	rpm  int
	idle time.Duration
	now  func() time.Time

	mu        sync.Mutex
	entries   map[string]*keyedEntry
	lastSweep time.Time
}

// NewKeyed creates a Keyed limiter giving each key requestsPerMinute.
func NewKeyed(requestsPerMinute int, idle time.Duration) *Keyed {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Keyed{
		rpm:     requestsPerMinute,
		idle:    idle,
		now:     time.Now,
		entries: make(map[string]*keyedEntry),
	}
}

// Allow takes a token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.lastSweep) > k.idle {
		for id, e := range k.entries {
			if now.Sub(e.lastSeen) > k.idle {
				delete(k.entries, id)
			}
		}
		k.lastSweep = now
	}

	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(perMinute(k.rpm), burstFor(k.rpm))}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
