package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 1024
)

// Anthropic is an Agent backed by the Anthropic Messages API.
type Anthropic struct {
	client      *anthropic.Client
	model       string
	system      string
	temperature float64
	maxTokens   int64

	mu      sync.Mutex
	history []anthropic.MessageParam
}

// NewAnthropic creates an Anthropic agent.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key not provided")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.SDKRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Anthropic{
		client:      &client,
		model:       model,
		system:      cfg.SystemMessage,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Name returns the provider name.
func (a *Anthropic) Name() string {
	return ProviderAnthropic
}

// Step sends prompt with the conversation so far and records the answer.
func (a *Anthropic) Step(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user := anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))
	messages := append(append([]anthropic.MessageParam(nil), a.history...), user)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(a.temperature),
	}
	if a.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.system}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(ProviderAnthropic, apiErr.StatusCode, fmt.Errorf("messages: %w", err))
		}
		return "", fmt.Errorf("messages: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(content.String())
	if text == "" {
		return "", ErrEmptyResponse
	}

	a.history = trimHistory(append(a.history, user, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text))))
	return text, nil
}

// Reset forgets the conversation.
func (a *Anthropic) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}
