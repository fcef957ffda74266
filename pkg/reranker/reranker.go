// Package reranker provides the optional cross-encoder capability used
// by the search engine for final ordering of fused candidates. Search
// treats this capability as best-effort: any failure falls back to the
// pre-rerank order.
package reranker

import (
	"context"

	"github.com/chronograph-io/chronograph/pkg/utils"
)

// Passage is one candidate sent for scoring.
type Passage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// RankedPassage is one scored candidate. Higher is more relevant.
type RankedPassage struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Client is the cross-encoder capability.
type Client interface {
	// Rank scores every passage against the query and returns them in
	// descending score order.
	Rank(ctx context.Context, query string, passages []Passage) ([]RankedPassage, error)
	// Close releases provider resources.
	Close() error
}

// limitedClient applies the shared capability limiter to rank calls.
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

func (l *limitedClient) Rank(ctx context.Context, query string, passages []Passage) ([]RankedPassage, error) {
	var ranked []RankedPassage
	err := l.limiter.Do(ctx, func() error {
		var callErr error
		ranked, callErr = l.inner.Rank(ctx, query, passages)
		return callErr
	})
	return ranked, err
}

func (l *limitedClient) Close() error { return l.inner.Close() }
