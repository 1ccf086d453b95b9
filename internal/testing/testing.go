// package testing contains shared testing utilities
package testing

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FakeClock is a manual clock. Timers created from it fire immediately and
// advance the clock by their duration, so polling and backoff loops run
// without real sleeps.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements [backoff.Clock].
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every duration a timer was started with, in order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Timer returns a [backoff.Timer] bound to the clock.
func (c *FakeClock) Timer() backoff.Timer {
	return &fakeTimer{clock: c, ch: make(chan time.Time, 1)}
}

type fakeTimer struct {
	clock *FakeClock
	ch    chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.clock.mu.Lock()
	t.clock.now = t.clock.now.Add(d)
	t.clock.sleeps = append(t.clock.sleeps, d)
	now := t.clock.now
	t.clock.mu.Unlock()

	select {
	case t.ch <- now:
	default:
	}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
