package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// RetryConfig controls exponential backoff for transient capability
// failures.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the standard backoff settings.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryClient wraps a Client with bounded retries. Transient errors
// (rate limits, 5xx, timeouts) back off exponentially; refusals fail
// immediately because asking again will not change the answer.
type RetryClient struct {
	inner  Client
	config *RetryConfig
}

// NewRetryClient wraps client; a nil config gets defaults.
func NewRetryClient(client Client, config *RetryConfig) *RetryClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryClient{inner: client, config: config}
}

func (r *RetryClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	var resp *types.Response
	err := r.withRetries(ctx, func() error {
		var callErr error
		resp, callErr = r.inner.Chat(ctx, messages)
		return callErr
	})
	return resp, err
}

func (r *RetryClient) ChatStructured(ctx context.Context, messages []types.Message, out any) error {
	return r.withRetries(ctx, func() error {
		return r.inner.ChatStructured(ctx, messages, out)
	})
}

func (r *RetryClient) Close() error { return r.inner.Close() }

func (r *RetryClient) withRetries(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.delay(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("cancelled during retry backoff: %w", ctx.Err())
			}
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("capability exhausted %d retries: %w", r.config.MaxRetries, lastErr)
}

func (r *RetryClient) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	return time.Duration(d)
}

// IsRetryable classifies capability errors. Rate limits, empty replies,
// and transport/server faults retry; refusals and cancellations do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRefusal) {
		return false
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrEmptyResponse) {
		return true
	}

	type statusCoder interface{ HTTPStatusCode() int }
	if sc, ok := err.(statusCoder); ok {
		code := sc.HTTPStatusCode()
		return code >= 500 || code == http.StatusTooManyRequests
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"429", "rate limit", "too many requests",
		"500", "502", "503", "504",
		"timeout", "connection reset", "connection refused",
		"temporary failure",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
