package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("no response from model")

// RateLimitError marks a model call rejected by the provider's rate limiter.
// It is the only error GenerateWithRetry retries.
type RateLimitError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is, or wraps, a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

func classifyStatus(provider string, status int, err error) error {
	if status == http.StatusTooManyRequests {
		return &RateLimitError{Provider: provider, StatusCode: status, Err: err}
	}
	return err
}
