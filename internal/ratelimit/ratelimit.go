// Package ratelimit provides per-key minimum-interval limiters.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether an action keyed by key may proceed now.
type Limiter interface {
	Allow(key string) bool
	// Forget drops the state kept for key.
	Forget(key string)
	// Prune drops idle state and returns how many keys were removed.
	Prune() int
}

var _ Limiter = (*Interval)(nil)

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

// Interval allows at most one action per key within each interval.
// A zero interval disables limiting.
type Interval struct {
	mu       sync.Mutex
	interval time.Duration
	now      Clock
	limiters map[string]*rate.Limiter
}

// NewInterval creates an interval limiter using the wall clock.
func NewInterval(interval time.Duration) *Interval {
	return NewIntervalWithClock(interval, time.Now)
}

// NewIntervalWithClock creates an interval limiter reading time from now.
func NewIntervalWithClock(interval time.Duration, now Clock) *Interval {
	return &Interval{
		interval: interval,
		now:      now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow consumes the key's token if one is available.
func (l *Interval) Allow(key string) bool {
	if l.interval <= 0 {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(l.now(), 1)
}

// Forget drops the state kept for key.
func (l *Interval) Forget(key string) {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}

// Prune drops limiters that have been idle long enough to be full again.
func (l *Interval) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, lim := range l.limiters {
		if lim.TokensAt(now) >= 1 {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}
