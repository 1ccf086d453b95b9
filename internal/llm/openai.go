package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	GroqBaseURL      = "https://api.groq.com/openai/v1"
	DefaultGroqModel = "llama-3.3-70b-versatile"
)

// OpenAI is an Agent for OpenAI-compatible chat completion APIs.
type OpenAI struct {
	name        string
	client      openai.Client
	model       openai.ChatModel
	system      string
	temperature float64
	maxTokens   int

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

// NewGroq creates an agent against Groq's OpenAI-compatible endpoint.
func NewGroq(cfg Config) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGroqModel
	}
	return newOpenAI(ProviderGroq, cfg)
}

// NewOpenAI creates an agent against the OpenAI API.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4o
	}
	return newOpenAI(ProviderOpenAI, cfg)
}

func newOpenAI(name string, cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key not provided", name)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.SDKRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		name:        name,
		client:      openai.NewClient(opts...),
		model:       openai.ChatModel(cfg.Model),
		system:      cfg.SystemMessage,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name returns the provider name.
func (o *OpenAI) Name() string {
	return o.name
}

// Step sends prompt with the conversation so far and records the answer.
func (o *OpenAI) Step(ctx context.Context, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(o.history)+2)
	if o.system != "" {
		messages = append(messages, openai.SystemMessage(o.system))
	}
	messages = append(messages, o.history...)
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       o.model,
		Messages:    messages,
		Temperature: openai.Float(o.temperature),
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.maxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(o.name, apiErr.StatusCode, fmt.Errorf("chat completion: %w", err))
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}

	o.history = trimHistory(append(o.history, openai.UserMessage(prompt), openai.AssistantMessage(content)))
	return content, nil
}

// Reset forgets the conversation.
func (o *OpenAI) Reset() {
	o.mu.Lock()
	o.history = nil
	o.mu.Unlock()
}
