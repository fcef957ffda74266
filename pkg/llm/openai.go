package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// OpenAIConfig parameterizes the OpenAI-compatible client. BaseURL makes
// it work against any OpenAI-compatible endpoint (vLLM, LocalAI, etc.).
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// OpenAIClient implements Client on the OpenAI chat-completions API.
type OpenAIClient struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIClient builds an OpenAI-backed language-model client.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2048
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.chat(ctx, messages, nil)
}

func (c *OpenAIClient) ChatStructured(ctx context.Context, messages []types.Message, out any) error {
	format := &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	resp, err := c.chat(ctx, messages, format)
	if err != nil {
		return err
	}
	return DecodeStructured(resp.Content, out)
}

func (c *OpenAIClient) chat(ctx context.Context, messages []types.Message, format *openai.ChatCompletionResponseFormat) (*types.Response, error) {
	req := openai.ChatCompletionRequest{
		Model:          c.config.Model,
		Messages:       toOpenAIMessages(messages),
		Temperature:    c.config.Temperature,
		MaxTokens:      c.config.MaxTokens,
		ResponseFormat: format,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &EmptyResponseError{Message: "completion returned no choices"}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, &RefusalError{Message: "completion blocked by content filter"}
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return nil, &EmptyResponseError{Message: "completion returned empty content"}
	}

	return &types.Response{
		Content:          content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAIClient) Close() error { return nil }

func toOpenAIMessages(messages []types.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case types.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case types.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return &RateLimitError{Message: apiErr.Message}
		case http.StatusBadRequest:
			if strings.Contains(strings.ToLower(apiErr.Message), "content policy") {
				return &RefusalError{Message: apiErr.Message}
			}
		}
	}
	return err
}
