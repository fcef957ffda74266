package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// AnthropicConfig parameterizes the Anthropic messages client.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// AnthropicClient implements Client on the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	config AnthropicConfig
}

// NewAnthropicClient builds an Anthropic-backed language-model client.
func NewAnthropicClient(config AnthropicConfig) *AnthropicClient {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2048
	}
	var opts []anthropic.ClientOption
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(config.APIKey, opts...),
		config: config,
	}
}

func (c *AnthropicClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	system, turns := splitSystemPrompt(messages)

	temperature := c.config.Temperature
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.config.Model),
		System:      system,
		Messages:    turns,
		MaxTokens:   c.config.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		return nil, &EmptyResponseError{Message: "message returned no text content"}
	}

	content := strings.TrimSpace(*resp.Content[0].Text)
	if content == "" {
		return nil, &EmptyResponseError{Message: "message returned empty content"}
	}
	return &types.Response{
		Content:          content,
		Model:            string(resp.Model),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

func (c *AnthropicClient) ChatStructured(ctx context.Context, messages []types.Message, out any) error {
	resp, err := c.Chat(ctx, messages)
	if err != nil {
		return err
	}
	return DecodeStructured(resp.Content, out)
}

func (c *AnthropicClient) Close() error { return nil }

// splitSystemPrompt lifts system messages into the request-level system
// field, which is how the Anthropic API expects them.
func splitSystemPrompt(messages []types.Message) (string, []anthropic.Message) {
	var system []string
	turns := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, m.Content)
		case types.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantTextMessage(m.Content))
		default:
			turns = append(turns, anthropic.NewUserTextMessage(m.Content))
		}
	}
	return strings.Join(system, "\n\n"), turns
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsRateLimitErr() {
			return &RateLimitError{Message: apiErr.Message}
		}
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.StatusCode == http.StatusTooManyRequests {
			return &RateLimitError{Message: err.Error()}
		}
	}
	return err
}
