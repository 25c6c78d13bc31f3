// Package ratelimit provides a local token-bucket request budget.
//
// The agent uses it to cap model classifier calls: triage consumes one
// token per classification and falls back to manual review when the
// bucket is empty, so a burst of arrivals never turns into a burst of
// provider requests.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket that refills continuously over its window.
// It is safe for concurrent use.
type Limiter struct {
	mu         sync.Mutex
	capacity   int
	available  float64
	window     time.Duration
	lastRefill time.Time
	now        func() time.Time
}

// New creates a limiter allowing capacity requests per window. The
// bucket starts full.
func New(capacity int, window time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		capacity:  capacity,
		available: float64(capacity),
		window:    window,
		now:       time.Now,
	}
	l.lastRefill = l.now()
	return l
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.available < 1 {
		return false
	}
	l.available--
	return true
}

// Remaining reports the whole tokens currently available.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return int(l.available)
}

func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.available += float64(l.capacity) * float64(elapsed) / float64(l.window)
	if l.available > float64(l.capacity) {
		l.available = float64(l.capacity)
	}
	l.lastRefill = now
}
