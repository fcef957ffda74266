// Package llm provides the language-model capability consumed by the
// episode pipeline, the deduplication engine, and the community
// detector. Provider clients (OpenAI, Anthropic) sit behind a small
// Client interface; wrappers add retry with exponential backoff, a
// circuit breaker, and global concurrency limiting. Construct clients
// explicitly and pass them in; there is no package-level default.
package llm

import (
	"context"

	"github.com/chronograph-io/chronograph/pkg/types"
	"github.com/chronograph-io/chronograph/pkg/utils"
)

// Client is the language-model capability.
type Client interface {
	// Chat sends a chat exchange and returns the model reply.
	Chat(ctx context.Context, messages []types.Message) (*types.Response, error)

	// ChatStructured sends a chat exchange, asking the model for a JSON
	// object decodable into out. Implementations repair near-JSON before
	// decoding; a reply that cannot be decoded is an EmptyResponseError.
	ChatStructured(ctx context.Context, messages []types.Message, out any) error

	// Close releases provider resources.
	Close() error
}

// limitedClient applies a shared concurrency limiter to every call, so
// outstanding capability requests stay bounded system-wide.
type limitedClient struct {
	inner   Client
	limiter *utils.Limiter
}

// WithLimiter wraps client so every call holds a slot in limiter.
func WithLimiter(client Client, limiter *utils.Limiter) Client {
	if limiter == nil {
		return client
	}
	return &limitedClient{inner: client, limiter: limiter}
}

func (l *limitedClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	var resp *types.Response
	err := l.limiter.Do(ctx, func() error {
		var callErr error
		resp, callErr = l.inner.Chat(ctx, messages)
		return callErr
	})
	return resp, err
}

func (l *limitedClient) ChatStructured(ctx context.Context, messages []types.Message, out any) error {
	return l.limiter.Do(ctx, func() error {
		return l.inner.ChatStructured(ctx, messages, out)
	})
}

func (l *limitedClient) Close() error { return l.inner.Close() }
