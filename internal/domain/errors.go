package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory is the closed taxonomy every collector and client error must
// classify into.
type ErrorCategory string

const (
	ErrAPIRateLimit   ErrorCategory = "api_rate_limit"
	ErrAPIClientError ErrorCategory = "api_client_error"
	ErrAPINotFound    ErrorCategory = "api_not_available"
	ErrAPIServerError ErrorCategory = "api_server_error"
	ErrAPIAuthError   ErrorCategory = "api_auth_error"
	ErrTimeout        ErrorCategory = "timeout"
	ErrParsing        ErrorCategory = "parsing"
	ErrValidation     ErrorCategory = "validation"
	ErrCancellation   ErrorCategory = "cancellation"
)

// Retriable reports whether the category is, per policy, eligible for retry
// by the execution pipeline.
func (c ErrorCategory) Retriable() bool {
	switch c {
	case ErrAPIRateLimit, ErrAPIServerError, ErrTimeout:
		return true
	default:
		return false
	}
}

// APIError is the categorized error every façade call and collector surfaces
// instead of a bare error, so the pipeline can decide retry/backoff/pause
// behavior without string matching.
type APIError struct {
	Category   ErrorCategory
	StatusCode int
	RetryAfter int // seconds, 0 if absent
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// ErrorRecord is the durable, reportable shape of a categorized failure,
// attributed to the collector and moment that produced it.
type ErrorRecord struct {
	Collector string
	Category  ErrorCategory
	When      int64 // unix seconds
	Message   string
	Retriable bool
}

// NewErrorRecord builds an ErrorRecord from an APIError, a context
// cancellation/deadline error, or a plain error, preserving the category
// when the error is an *APIError, mapping context errors onto the
// timeout/cancellation categories so tier-deadline and shutdown cancellation
// are accounted correctly, and defaulting to validation otherwise so every
// failure is accounted somewhere.
func NewErrorRecord(collector string, whenUnix int64, err error) ErrorRecord {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ErrorRecord{
			Collector: collector,
			Category:  apiErr.Category,
			When:      whenUnix,
			Message:   apiErr.Error(),
			Retriable: apiErr.Category.Retriable(),
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorRecord{
			Collector: collector,
			Category:  ErrTimeout,
			When:      whenUnix,
			Message:   err.Error(),
			Retriable: ErrTimeout.Retriable(),
		}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorRecord{
			Collector: collector,
			Category:  ErrCancellation,
			When:      whenUnix,
			Message:   err.Error(),
			Retriable: false,
		}
	}
	return ErrorRecord{
		Collector: collector,
		Category:  ErrValidation,
		When:      whenUnix,
		Message:   err.Error(),
		Retriable: false,
	}
}
