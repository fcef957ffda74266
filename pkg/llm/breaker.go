package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// BreakerConfig tunes the circuit breaker around a provider client.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval over which failure counts are aggregated while closed.
	Interval time.Duration
	// Timeout before a tripped breaker transitions to half-open.
	Timeout time.Duration
	// FailureRatio trips the breaker once exceeded (with >= 3 requests).
	FailureRatio float64
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxRequests:  2,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
	}
}

// BreakerClient short-circuits calls to a failing provider so a dead
// endpoint sheds load quickly instead of stacking up timeouts. Refusals
// count as successes for breaker purposes: the provider answered.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps client; a nil config gets defaults.
func NewBreakerClient(client Client, config *BreakerConfig) *BreakerClient {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	settings := gobreaker.Settings{
		Name:        "llm",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var refusal *RefusalError
			return errors.As(err, &refusal)
		},
	}
	return &BreakerClient{inner: client, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Chat(ctx, messages)
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.Response), nil
}

func (b *BreakerClient) ChatStructured(ctx context.Context, messages []types.Message, out any) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.inner.ChatStructured(ctx, messages, out)
	})
	return err
}

func (b *BreakerClient) Close() error { return b.inner.Close() }
