// Package embedder provides the vector-embedding capability used for
// entity name embeddings, fact embeddings, and query embeddings.
package embedder

import (
	"context"

	"github.com/chronograph-io/chronograph/pkg/utils"
)

// Client is the embedding capability.
type Client interface {
	// Embed returns the embedding vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the embedding width.
	Dimensions() int
	// Close releases provider resources.
	Close() error
}

// limitedClient applies the shared capability limiter to embedding
// calls.
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

func (l *limitedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := l.limiter.Do(ctx, func() error {
		var callErr error
		vec, callErr = l.inner.Embed(ctx, text)
		return callErr
	})
	return vec, err
}

func (l *limitedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := l.limiter.Do(ctx, func() error {
		var callErr error
		vecs, callErr = l.inner.EmbedBatch(ctx, texts)
		return callErr
	})
	return vecs, err
}

func (l *limitedClient) Dimensions() int { return l.inner.Dimensions() }

func (l *limitedClient) Close() error { return l.inner.Close() }
