// Package ratelimiter gates periodic work to at most once per interval.
package ratelimiter

import (
	"sync"
	"time"
)

// Limiter allows one action per interval and is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	now         func() time.Time
	lastAllowed time.Time
}

// New creates a limiter on the wall clock
func New(interval time.Duration) *Limiter {
	return NewWithClock(interval, time.Now)
}

// NewWithClock creates a limiter reading time from now
func NewWithClock(interval time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		interval: interval,
		now:      now,
	}
}

// Allow reports whether the action may run now and records it if so.
// When blocked it returns the remaining wait.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.lastAllowed.IsZero() || now.Sub(l.lastAllowed) >= l.interval {
		l.lastAllowed = now
		return true, 0
	}
	return false, l.interval - now.Sub(l.lastAllowed)
}

// Reset lets the next Allow through immediately
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = time.Time{}
	l.mu.Unlock()
}

// Interval returns the configured interval
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
