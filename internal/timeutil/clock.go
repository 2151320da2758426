// Package timeutil provides the host clock used to anchor hardware
// timestamps, with a manually driven implementation for tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the host time source. The reconciler reads Now at the first frame
// of a session; the simulator paces frames with NewTicker.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the part of time.Ticker the simulator needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when Advance is called. Tickers created from it fire
// at most once per Advance, dropping ticks nobody has read.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires every ticker that is due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{
		ch:     make(chan time.Time, 1),
		period: d,
		due:    c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

type MockTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	period  time.Duration
	due     time.Time
	stopped bool
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *MockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.due) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	t.due = now.Add(t.period)
}
