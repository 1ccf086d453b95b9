// Package retry provides a bounded retry loop with a pluggable error
// classifier and backoff schedule.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts is used when a Policy does not set MaxAttempts.
const DefaultMaxAttempts = 3

// Policy describes when and how long to wait before trying again.
type Policy struct {
	// MaxAttempts caps the total number of calls, including the first.
	MaxAttempts int
	// Retryable classifies an error. Nil retries everything except context
	// cancellation.
	Retryable func(error) bool
	// Backoff returns the wait before retry number attempt (0-based).
	// Nil selects Exponential(time.Second).
	Backoff func(attempt int) time.Duration
	// Timer overrides the wall-clock timer, mostly for tests.
	Timer backoff.Timer
	// Notify is called before every wait.
	Notify func(err error, wait time.Duration)
}

// Exponential returns base, 2*base, 4*base, ...
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << attempt
	}
}

// Constant returns the same wait for every attempt.
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempt
// cap is reached. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	next := p.Backoff
	if next == nil {
		next = Exponential(time.Second)
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&schedule{next: next}, uint64(attempts-1)), ctx)

	operation := func() (T, error) {
		v, err := op(ctx)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	var notify backoff.Notify
	if p.Notify != nil {
		notify = p.Notify
	}

	return backoff.RetryNotifyWithTimerAndData(operation, b, notify, p.Timer)
}

type schedule struct {
	next    func(int) time.Duration
	attempt int
}

func (s *schedule) NextBackOff() time.Duration {
	d := s.next(s.attempt)
	s.attempt++
	return d
}

func (s *schedule) Reset() { s.attempt = 0 }
