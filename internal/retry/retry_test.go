package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	tu "github.com/blacktop/lipost/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDo(t *testing.T) {
	t.Run("Succeeds After Two Retryable Failures", func(t *testing.T) {
		clock := tu.NewFakeClock(time.Unix(0, 0))
		calls := 0
		got, err := Do(context.Background(), Policy{MaxAttempts: 3, Retryable: isTransient, Timer: clock.Timer()},
			func(context.Context) (string, error) {
				calls++
				if calls <= 2 {
					return "", errTransient
				}
				return "ok", nil
			})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	})

	t.Run("Final Retryable Failure Propagates Without Sleeping", func(t *testing.T) {
		clock := tu.NewFakeClock(time.Unix(0, 0))
		calls := 0
		_, err := Do(context.Background(), Policy{MaxAttempts: 3, Retryable: isTransient, Timer: clock.Timer()},
			func(context.Context) (int, error) {
				calls++
				return 0, errTransient
			})
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, calls)
		assert.Len(t, clock.Sleeps(), 2)
	})

	t.Run("Non Retryable Failure Propagates Immediately", func(t *testing.T) {
		clock := tu.NewFakeClock(time.Unix(0, 0))
		calls := 0
		_, err := Do(context.Background(), Policy{MaxAttempts: 5, Retryable: isTransient, Timer: clock.Timer()},
			func(context.Context) (int, error) {
				calls++
				return 0, errFatal
			})
		assert.ErrorIs(t, err, errFatal)
		assert.Equal(t, 1, calls)
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("Single Attempt Never Sleeps", func(t *testing.T) {
		clock := tu.NewFakeClock(time.Unix(0, 0))
		_, err := Do(context.Background(), Policy{MaxAttempts: 1, Timer: clock.Timer()},
			func(context.Context) (int, error) { return 0, errTransient })
		assert.ErrorIs(t, err, errTransient)
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("Custom Backoff And Notify", func(t *testing.T) {
		clock := tu.NewFakeClock(time.Unix(0, 0))
		var waits []time.Duration
		calls := 0
		_, err := Do(context.Background(), Policy{
			MaxAttempts: 4,
			Backoff:     Constant(3 * time.Second),
			Timer:       clock.Timer(),
			Notify:      func(_ error, d time.Duration) { waits = append(waits, d) },
		}, func(context.Context) (int, error) {
			calls++
			if calls < 4 {
				return 0, errTransient
			}
			return calls, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}, waits)
		assert.Equal(t, waits, clock.Sleeps())
	})

	t.Run("Cancelled Context Stops", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := Do(ctx, Policy{MaxAttempts: 3, Backoff: Constant(time.Hour)},
			func(context.Context) (int, error) {
				calls++
				cancel()
				return 0, errTransient
			})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestExponential(t *testing.T) {
	next := Exponential(time.Second)
	assert.Equal(t, time.Second, next(0))
	assert.Equal(t, 2*time.Second, next(1))
	assert.Equal(t, 4*time.Second, next(2))
}
