package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// scriptedClient fails a fixed number of times before succeeding.
type scriptedClient struct {
	failures  int
	failWith  error
	callCount int
}

func (s *scriptedClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	s.callCount++
	if s.callCount <= s.failures {
		return nil, s.failWith
	}
	return &types.Response{Content: "ok"}, nil
}

func (s *scriptedClient) ChatStructured(ctx context.Context, messages []types.Message, out any) error {
	_, err := s.Chat(ctx, messages)
	return err
}

func (s *scriptedClient) Close() error { return nil }

func fastRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:        maxRetries,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryRecoversFromRateLimit(t *testing.T) {
	inner := &scriptedClient{failures: 2, failWith: &RateLimitError{}}
	client := NewRetryClient(inner, fastRetryConfig(3))

	resp, err := client.Chat(context.Background(), []types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, inner.callCount)
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	inner := &scriptedClient{failures: 10, failWith: &RateLimitError{}}
	client := NewRetryClient(inner, fastRetryConfig(2))

	_, err := client.Chat(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimit)
	assert.Equal(t, 3, inner.callCount) // initial attempt + 2 retries
}

func TestRefusalIsNotRetried(t *testing.T) {
	inner := &scriptedClient{failures: 10, failWith: &RefusalError{Message: "no"}}
	client := NewRetryClient(inner, fastRetryConfig(3))

	_, err := client.Chat(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefusal)
	assert.Equal(t, 1, inner.callCount)
}

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &RateLimitError{}, true},
		{"empty response", &EmptyResponseError{}, true},
		{"refusal", &RefusalError{Message: "no"}, false},
		{"cancelled", context.Canceled, false},
		{"server fault text", errors.New("503 service unavailable"), true},
		{"plain error", errors.New("schema mismatch"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestDecodeStructured(t *testing.T) {
	type payload struct {
		Entities []string `json:"entities"`
	}

	t.Run("plain json", func(t *testing.T) {
		var p payload
		require.NoError(t, DecodeStructured(`{"entities":["a","b"]}`, &p))
		assert.Equal(t, []string{"a", "b"}, p.Entities)
	})

	t.Run("fenced with prose", func(t *testing.T) {
		var p payload
		content := "Here you go:\n```json\n{\"entities\": [\"a\"]}\n```\nHope that helps."
		require.NoError(t, DecodeStructured(content, &p))
		assert.Equal(t, []string{"a"}, p.Entities)
	})

	t.Run("truncated json is repaired", func(t *testing.T) {
		var p payload
		require.NoError(t, DecodeStructured(`{"entities": ["a", "b"`, &p))
		assert.Equal(t, []string{"a", "b"}, p.Entities)
	})

	t.Run("no json at all", func(t *testing.T) {
		var p payload
		err := DecodeStructured("I cannot find any entities.", &p)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}
