package utils

import (
	"context"
	"fmt"
	"sync"
)

// Limiter is a bounded semaphore shared by every capability wrapper so
// that outstanding model/embedding/reranker calls stay under the
// provider rate limit system-wide. Callers queue when the limit is
// reached; they never fail because of it.
type Limiter struct {
	sem chan struct{}
}

// NewLimiter creates a limiter admitting at most n concurrent holders.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 16
	}
	return &Limiter{sem: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired earlier.
func (l *Limiter) Release() {
	<-l.sem
}

// Do runs fn while holding a limiter slot.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Gather runs the functions concurrently under maxConcurrency and
// returns the per-function errors in order. Panics are recovered and
// surfaced as errors so one bad goroutine cannot take the process down.
func Gather(ctx context.Context, maxConcurrency int, fns ...func() error) []error {
	if len(fns) == 0 {
		return nil
	}
	limiter := NewLimiter(maxConcurrency)
	errs := make([]error, len(fns))
	var wg sync.WaitGroup

	for i, fn := range fns {
		wg.Add(1)
		go func(idx int, f func() error) {
			defer wg.Done()
			defer recoverInto(&errs[idx])

			if err := limiter.Acquire(ctx); err != nil {
				errs[idx] = err
				return
			}
			defer limiter.Release()
			errs[idx] = f()
		}(i, fn)
	}

	wg.Wait()
	return errs
}

// GatherResults is Gather for functions that also produce a value.
func GatherResults[T any](ctx context.Context, maxConcurrency int, fns ...func() (T, error)) ([]T, []error) {
	if len(fns) == 0 {
		return nil, nil
	}
	limiter := NewLimiter(maxConcurrency)
	results := make([]T, len(fns))
	errs := make([]error, len(fns))
	var wg sync.WaitGroup

	for i, fn := range fns {
		wg.Add(1)
		go func(idx int, f func() (T, error)) {
			defer wg.Done()
			defer recoverInto(&errs[idx])

			if err := limiter.Acquire(ctx); err != nil {
				errs[idx] = err
				return
			}
			defer limiter.Release()
			results[idx], errs[idx] = f()
		}(i, fn)
	}

	wg.Wait()
	return results, errs
}

// FirstError returns the first non-nil error, or nil.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func recoverInto(dst *error) {
	if r := recover(); r != nil {
		*dst = fmt.Errorf("recovered panic: %v", r)
	}
}
