// Package llm generates post text with a hosted language model.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/retry"
)

const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultTemperature   = 0.7
	DefaultSystemMessage = "You are an expert LinkedIn content strategist."

	// maxHistory bounds the remembered conversation, in messages.
	maxHistory = 20
)

// Config selects and tunes a model provider.
type Config struct {
	Provider      string
	APIKey        string
	Model         string
	BaseURL       string
	SystemMessage string
	Temperature   float64
	MaxTokens     int
	// SDKRetries is the provider SDK's own transport retry count.
	SDKRetries int
}

// Agent is a conversational model session. Each Step sees the earlier
// prompts and answers until Reset is called.
type Agent interface {
	Name() string
	Step(ctx context.Context, prompt string) (string, error)
	Reset()
}

// New creates an Agent for the configured provider.
func New(cfg Config) (Agent, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s API key not provided", cfg.Provider)
	}
	if cfg.SystemMessage == "" {
		cfg.SystemMessage = DefaultSystemMessage
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	var (
		agent Agent
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGroq:
		agent, err = NewGroq(cfg)
	case ProviderOpenAI:
		agent, err = NewOpenAI(cfg)
	case ProviderAnthropic:
		agent, err = NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// GenerateWithRetry runs one model round trip, retrying only when the
// provider rate limits the call. Policy fields left empty get the defaults:
// three attempts with 1s, 2s, 4s... between them.
func GenerateWithRetry(ctx context.Context, agent Agent, prompt string, p retry.Policy) (string, error) {
	p.Retryable = IsRateLimited
	if p.Notify == nil {
		p.Notify = func(err error, wait time.Duration) {
			logutil.Warnf("%s rate limited, retrying in %s", agent.Name(), wait)
		}
	}

	text, err := retry.Do(ctx, p, func(ctx context.Context) (string, error) {
		return agent.Step(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func trimHistory[T any](history []T) []T {
	if over := len(history) - maxHistory; over > 0 {
		return append([]T(nil), history[over:]...)
	}
	return history
}
