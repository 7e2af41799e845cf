package summarize

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kbhalerao/codesmriti/internal/errors"
)

// LLM is the summarization backend: one prompt in, one completion out.
// Any chat-completions-shaped service satisfies the contract.
type LLM interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// ClientConfig configures the chat-completions client.
type ClientConfig struct {
	// Endpoint is the base URL (e.g. an OpenAI-compatible local server).
	Endpoint string

	// Model is sent with every request.
	Model string

	// APIKey may be empty for unauthenticated local backends.
	APIKey string

	// Temperature defaults to 0.2; summaries should be stable.
	Temperature float32

	// RequestTimeout bounds one completion call.
	RequestTimeout time.Duration
}

// Client is the production LLM backed by the OpenAI chat-completions
// API shape.
type Client struct {
	client *openai.Client
	config ClientConfig
}

var _ LLM = (*Client)(nil)

// NewClient builds a client against the configured endpoint.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		apiCfg.BaseURL = cfg.Endpoint
	}

	return &Client{
		client: openai.NewClientWithConfig(apiCfg),
		config: cfg,
	}
}

// Complete sends one completion request. All failures are reported as
// transient so the summarizer's retry policy owns the attempt budget.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return "", errors.TransientUpstream("llm completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.TransientUpstream("llm returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
