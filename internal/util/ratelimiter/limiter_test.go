package ratelimiter

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		advance  []time.Duration // clock advance before each Allow() call
		want     []bool
	}{
		{"first call allowed", time.Second, []time.Duration{0}, []bool{true}},
		{"immediate repeat blocked", time.Second, []time.Duration{0, 0}, []bool{true, false}},
		{"allowed after interval", time.Second, []time.Duration{0, time.Second}, []bool{true, true}},
		{"blocked just before interval", time.Second, []time.Duration{0, 999 * time.Millisecond}, []bool{true, false}},
		{"zero interval never blocks", 0, []time.Duration{0, 0, 0}, []bool{true, true, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
			l := NewWithClock(tt.interval, clock.Now)

			for i, d := range tt.advance {
				clock.Advance(d)
				allowed, wait := l.Allow()
				if allowed != tt.want[i] {
					t.Errorf("call %d: Allow() = %v, want %v", i, allowed, tt.want[i])
				}
				if allowed && wait != 0 {
					t.Errorf("call %d: allowed with wait %v", i, wait)
				}
				if !allowed && wait <= 0 {
					t.Errorf("call %d: blocked with wait %v", i, wait)
				}
			}
		})
	}
}

func TestLimiter_WaitTime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(10*time.Second, clock.Now)

	l.Allow()
	clock.Advance(3 * time.Second)

	_, wait := l.Allow()
	if wait != 7*time.Second {
		t.Errorf("wait = %v, want 7s", wait)
	}
}

func TestLimiter_Reset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(time.Hour, clock.Now)

	l.Allow()
	if ok, _ := l.Allow(); ok {
		t.Fatal("second Allow() should be blocked")
	}

	l.Reset()
	if ok, _ := l.Allow(); !ok {
		t.Error("Allow() after Reset() should pass")
	}
	if l.Interval() != time.Hour {
		t.Errorf("Interval() = %v", l.Interval())
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(time.Minute, clock.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 1 {
		t.Errorf("allowed = %d, want 1", allowed)
	}
}
