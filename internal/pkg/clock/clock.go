// Package clock abstracts time for the orchestration engine.
//
// Activity timeouts, retry backoff, and cache expiry are all specified in
// abstract time-units. Production code uses the real clock with a configured
// unit duration; tests use a manual clock advanced explicitly so timing
// behavior is deterministic.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the minimal time source used by the engine, invoker, and cache.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. Must never busy-wait.
	After(d time.Duration) <-chan time.Time
}

// Real is the wall-clock implementation.
type Real struct{}

// NewReal returns a wall-clock backed Clock.
func NewReal() *Real { return &Real{} }

// Now returns time.Now.
func (*Real) Now() time.Time { return time.Now() }

// After wraps time.After.
func (*Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Manual is a test clock that only moves when Advance is called.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	at time.Time
	ch chan time.Time
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After registers a timer firing once the clock has been advanced past d.
// A non-positive duration fires on the next Advance(0).
func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{at: m.now.Add(d), ch: make(chan time.Time, 1)}
	m.timers = append(m.timers, t)
	return t.ch
}

// Advance moves the clock forward and fires every timer whose deadline has
// been reached, in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now

	var due []*manualTimer
	remaining := m.timers[:0]
	for _, t := range m.timers {
		if !t.at.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	m.timers = remaining
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.ch <- now
	}
}
