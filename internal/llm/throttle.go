package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type throttled struct {
	Agent
	limiter *rate.Limiter
}

// NewLimiter allows perMinute requests with no burst. It returns nil for a
// non-positive perMinute.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Throttle paces agent to at most perMinute requests. A non-positive
// perMinute returns agent unchanged.
func Throttle(agent Agent, perMinute int) Agent {
	return WithLimiter(agent, NewLimiter(perMinute))
}

// WithLimiter paces agent with a limiter that may be shared between agents.
func WithLimiter(agent Agent, limiter *rate.Limiter) Agent {
	if limiter == nil {
		return agent
	}
	return &throttled{Agent: agent, limiter: limiter}
}

func (t *throttled) Step(ctx context.Context, prompt string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.Agent.Step(ctx, prompt)
}
