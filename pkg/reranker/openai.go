package reranker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chronograph-io/chronograph/pkg/llm"
)

// OpenAIConfig parameterizes the OpenAI-backed cross-encoder.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIReranker scores passages with a single structured chat call.
type OpenAIReranker struct {
	client *openai.Client
	model  string
}

// NewOpenAIReranker builds an OpenAI-backed reranker.
func NewOpenAIReranker(config OpenAIConfig) *OpenAIReranker {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIReranker{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}
}

type scoredItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type rankPayload struct {
	Results []scoredItem `json:"results"`
}

func (r *OpenAIReranker) Rank(ctx context.Context, query string, passages []Passage) ([]RankedPassage, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&sb, "id=%s: %s\n", p.ID, p.Text)
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You score passages for relevance to a query. " +
					"Reply with JSON {\"results\": [{\"id\": \"...\", \"score\": 0-100}]} covering every passage.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Query: %s\n\nPassages:\n%s", query, sb.String()),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rerank completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("rerank completion returned no choices")
	}

	var payload rankPayload
	if err := llm.DecodeStructured(resp.Choices[0].Message.Content, &payload); err != nil {
		return nil, fmt.Errorf("decode rerank scores: %w", err)
	}

	scores := make(map[string]float64, len(payload.Results))
	for _, item := range payload.Results {
		scores[item.ID] = item.Score
	}

	// Unscored passages keep their relative position at score 0.
	ranked := make([]RankedPassage, len(passages))
	for i, p := range passages {
		ranked[i] = RankedPassage{ID: p.ID, Score: scores[p.ID]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}

func (r *OpenAIReranker) Close() error { return nil }
