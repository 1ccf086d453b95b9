package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blacktop/lipost/internal/retry"
	tu "github.com/blacktop/lipost/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedAgent struct {
	mu      sync.Mutex
	replies []error
	calls   int
}

func (s *scriptedAgent) Name() string { return "scripted" }
func (s *scriptedAgent) Reset()       {}

func (s *scriptedAgent) Step(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.replies) && s.replies[i] != nil {
		return "", s.replies[i]
	}
	return fmt.Sprintf("answer %d", s.calls), nil
}

func rateLimited() error {
	return &RateLimitError{Provider: "groq", StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}
}

func TestGenerateWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("Recovers After Rate Limits", func(t *testing.T) {
		clock := tu.NewFakeClock(time.Unix(0, 0))
		agent := &scriptedAgent{replies: []error{rateLimited(), rateLimited()}}

		text, err := GenerateWithRetry(ctx, agent, "write a post", retry.Policy{MaxAttempts: 3, Timer: clock.Timer()})
		require.NoError(t, err)
		assert.Equal(t, "answer 3", text)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	})

	t.Run("Third Rate Limit Propagates", func(t *testing.T) {
		clock := tu.NewFakeClock(time.Unix(0, 0))
		agent := &scriptedAgent{replies: []error{rateLimited(), rateLimited(), rateLimited()}}

		_, err := GenerateWithRetry(ctx, agent, "write a post", retry.Policy{MaxAttempts: 3, Timer: clock.Timer()})
		assert.True(t, IsRateLimited(err))
		assert.Equal(t, 3, agent.calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	})

	t.Run("Other Errors Are Not Retried", func(t *testing.T) {
		clock := tu.NewFakeClock(time.Unix(0, 0))
		agent := &scriptedAgent{replies: []error{errors.New("invalid api key")}}

		_, err := GenerateWithRetry(ctx, agent, "write a post", retry.Policy{MaxAttempts: 3, Timer: clock.Timer()})
		assert.EqualError(t, err, "invalid api key")
		assert.Equal(t, 1, agent.calls)
		assert.Empty(t, clock.Sleeps())
	})
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("upstream")

	err := classifyStatus("groq", http.StatusTooManyRequests, base)
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "groq", rl.Provider)
	assert.ErrorIs(t, err, base)

	assert.Same(t, base, classifyStatus("groq", http.StatusInternalServerError, base))
	assert.False(t, IsRateLimited(base))
}

func TestNew(t *testing.T) {
	_, err := New(Config{Provider: "groq"})
	assert.ErrorContains(t, err, "API key not provided")

	_, err = New(Config{Provider: "cohere", APIKey: "k"})
	assert.ErrorContains(t, err, "unsupported model provider")

	for _, provider := range []string{"", "groq", "OpenAI", "anthropic"} {
		agent, err := New(Config{Provider: provider, APIKey: "k"})
		require.NoError(t, err, provider)
		if provider == "" {
			provider = ProviderGroq
		}
		assert.Equal(t, strings.ToLower(provider), agent.Name())
	}
}

func TestThrottle(t *testing.T) {
	agent := &scriptedAgent{}
	assert.Same(t, Agent(agent), Throttle(agent, 0))

	throttled := Throttle(agent, 1)
	_, err := throttled.Step(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = throttled.Step(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, agent.calls)
	assert.Equal(t, "scripted", throttled.Name())
}

func TestWithLimiterShared(t *testing.T) {
	assert.Nil(t, NewLimiter(0))

	limiter := NewLimiter(1)
	first, second := &scriptedAgent{}, &scriptedAgent{}

	_, err := WithLimiter(first, limiter).Step(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = WithLimiter(second, limiter).Step(ctx, "b")
	assert.Error(t, err)
	assert.Equal(t, 0, second.calls)
}

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"messages"`
}

func TestOpenAIAgent(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []chatRequest
		limited  atomic.Bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		n := len(requests)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if limited.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached","type":"tokens"}}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"id":"c%d","object":"chat.completion","created":1,"model":"llama","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"draft %d"}}]}`, n, n)
	}))
	defer srv.Close()

	agent, err := NewGroq(Config{APIKey: "test-key", BaseURL: srv.URL, SystemMessage: "be brief", Temperature: DefaultTemperature})
	require.NoError(t, err)
	assert.Equal(t, ProviderGroq, agent.Name())

	ctx := context.Background()
	out, err := agent.Step(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "draft 1", out)

	out, err = agent.Step(ctx, "shorter")
	require.NoError(t, err)
	assert.Equal(t, "draft 2", out)

	require.Len(t, requests, 2)
	assert.Len(t, requests[0].Messages, 2)
	require.Len(t, requests[1].Messages, 4)
	assert.Equal(t, "system", requests[1].Messages[0].Role)
	assert.Equal(t, "assistant", requests[1].Messages[2].Role)

	agent.Reset()
	_, err = agent.Step(ctx, "again")
	require.NoError(t, err)
	assert.Len(t, requests[2].Messages, 2)

	limited.Store(true)
	_, err = agent.Step(ctx, "more")
	assert.True(t, IsRateLimited(err), "%v", err)
}

func TestAnthropicAgent(t *testing.T) {
	var limited atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if limited.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"Hello from Claude"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	agent, err := NewAnthropic(Config{APIKey: "k", BaseURL: srv.URL, Temperature: DefaultTemperature})
	require.NoError(t, err)

	out, err := agent.Step(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello from Claude", out)
	assert.Len(t, agent.history, 2)

	limited.Store(true)
	_, err = agent.Step(context.Background(), "again")
	assert.True(t, IsRateLimited(err), "%v", err)
	assert.Len(t, agent.history, 2)
}
