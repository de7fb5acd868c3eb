package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ValidationError reports malformed input (bad locale, oversized batch).
// It is fatal to the call and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// APIError is a non-success response from the translate endpoint.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// QuotaError is an APIError caused by an exhausted translation quota
// (HTTP 429 or an explicit quota error code). Never auto-retried.
type QuotaError struct {
	APIError
	Limit int
	Used  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded (%d/%d): %s", e.Used, e.Limit, e.Message)
}

// Signature identifies the quota limit that was hit, so repeated
// notifications for the same limit can be suppressed.
func (e *QuotaError) Signature() string {
	return fmt.Sprintf("%s:%d", e.Code, e.Limit)
}

// NetworkError wraps a transport-level failure. Retried per backoff policy.
type NetworkError struct {
	Err     error
	Timeout bool
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("network timeout: %v", e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError is produced locally when the client-side limiter rejects a
// call before any network round trip.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// IsRetryable reports whether err may succeed on a later attempt.
// Validation failures, quota exhaustion, and cancellations never do.
func IsRetryable(err error) bool {
	var (
		ve *ValidationError
		qe *QuotaError
		ne *NetworkError
		ae *APIError
		re *RateLimitError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &qe):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &ne), errors.As(err, &re):
		return true
	case errors.As(err, &ae):
		return ae.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
