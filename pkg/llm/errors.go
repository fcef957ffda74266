package llm

import "errors"

// Sentinel capability errors.
var (
	// ErrRateLimit indicates the provider rate limit was exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrRefusal indicates the model declined to answer. Not retryable.
	ErrRefusal = errors.New("model refused the request")
	// ErrEmptyResponse indicates the model returned nothing usable.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// RateLimitError carries provider detail for a rate-limit rejection.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return ErrRateLimit.Error()
	}
	return e.Message
}

func (e *RateLimitError) Is(target error) bool {
	if target == ErrRateLimit {
		return true
	}
	_, ok := target.(*RateLimitError)
	return ok
}

// RefusalError carries the refusal text returned by the model.
type RefusalError struct {
	Message string
}

func (e *RefusalError) Error() string { return e.Message }

func (e *RefusalError) Is(target error) bool {
	if target == ErrRefusal {
		return true
	}
	_, ok := target.(*RefusalError)
	return ok
}

// EmptyResponseError marks a blank or undecodable model reply.
type EmptyResponseError struct {
	Message string
}

func (e *EmptyResponseError) Error() string {
	if e.Message == "" {
		return ErrEmptyResponse.Error()
	}
	return e.Message
}

func (e *EmptyResponseError) Is(target error) bool {
	if target == ErrEmptyResponse {
		return true
	}
	_, ok := target.(*EmptyResponseError)
	return ok
}
