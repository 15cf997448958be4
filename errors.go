package loom

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory classifies upstream errors by how they should be handled.
type ErrorCategory string

const (
	// ErrorTransient indicates a temporary failure that can be retried.
	// Examples: connection resets, timeouts, server overload.
	ErrorTransient ErrorCategory = "transient"

	// ErrorRateLimit indicates the provider throttled the request.
	// The error may carry a retry-after hint.
	ErrorRateLimit ErrorCategory = "rate_limit"

	// ErrorAuth indicates missing or rejected credentials.
	ErrorAuth ErrorCategory = "auth"

	// ErrorInvalidRequest indicates the request parameters were rejected.
	ErrorInvalidRequest ErrorCategory = "invalid_request"

	// ErrorContentFilter indicates the provider refused the content.
	ErrorContentFilter ErrorCategory = "content_filter"

	// ErrorPermanent indicates any other failure that retrying will not fix.
	ErrorPermanent ErrorCategory = "permanent"
)

// Retryable reports whether errors of this category may be retried.
func (c ErrorCategory) Retryable() bool {
	return c == ErrorTransient || c == ErrorRateLimit
}

// CategorizedError is an error that provides information about how it should be handled.
type CategorizedError interface {
	error
	Category() ErrorCategory
	Retryable() bool           // true for transient and rate limit categories
	StatusCode() int           // HTTP status code if applicable, 0 otherwise
	RetryAfter() time.Duration // suggested retry delay from server, 0 if not available
}

// UpstreamError is an error reported by the model provider.
type UpstreamError struct {
	Msg        string
	Cat        ErrorCategory
	Code       int           // HTTP status code, 0 if not applicable
	RetryDelay time.Duration // from Retry-After header, 0 if not available
	Cause      error
}

// Error returns the error message.
func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// Category returns the error category.
func (e *UpstreamError) Category() ErrorCategory {
	return e.Cat
}

// Retryable reports whether the error category allows a retry.
func (e *UpstreamError) Retryable() bool {
	return e.Cat.Retryable()
}

// StatusCode returns the HTTP status code, or 0 if not applicable.
func (e *UpstreamError) StatusCode() int {
	return e.Code
}

// RetryAfter returns the suggested retry delay, or 0 if not available.
func (e *UpstreamError) RetryAfter() time.Duration {
	return e.RetryDelay
}

// NewUpstreamError creates an upstream error of the given category.
func NewUpstreamError(cat ErrorCategory, msg string, statusCode int, cause error) *UpstreamError {
	return &UpstreamError{Msg: msg, Cat: cat, Code: statusCode, Cause: cause}
}

// NewTransientError creates a transient error that can be retried.
func NewTransientError(msg string, statusCode int, cause error) *UpstreamError {
	return NewUpstreamError(ErrorTransient, msg, statusCode, cause)
}

// NewRateLimitError creates a rate limit error with an optional retry-after hint.
func NewRateLimitError(msg string, statusCode int, retryAfter time.Duration, cause error) *UpstreamError {
	e := NewUpstreamError(ErrorRateLimit, msg, statusCode, cause)
	e.RetryDelay = retryAfter
	return e
}

// NewPermanentError creates a permanent error that should not be retried.
func NewPermanentError(msg string, statusCode int, cause error) *UpstreamError {
	return NewUpstreamError(ErrorPermanent, msg, statusCode, cause)
}

// CategoryForStatus maps an HTTP status code to an error category.
func CategoryForStatus(code int) ErrorCategory {
	switch {
	case code == 429:
		return ErrorRateLimit
	case code == 408 || code >= 500:
		return ErrorTransient
	case code == 401 || code == 403:
		return ErrorAuth
	case code == 400 || code == 404 || code == 413 || code == 422:
		return ErrorInvalidRequest
	default:
		return ErrorPermanent
	}
}

// CategoryOf returns the category of a categorized error in the chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category(), true
	}
	return "", false
}

// IsTransient returns true if the error is categorized as retryable.
// It checks if the error or any wrapped error implements CategorizedError.
func IsTransient(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return false
}

// StatusCodeOf returns the HTTP status code from a categorized error, or 0.
func StatusCodeOf(err error) int {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.StatusCode()
	}
	return 0
}

// RetryAfterOf returns the retry delay from a categorized error, or 0.
func RetryAfterOf(err error) time.Duration {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.RetryAfter()
	}
	return 0
}

// ConfigError reports missing or invalid call inputs detected before any
// network activity.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// ProtocolError reports malformed stream framing. It is never retried.
type ProtocolError struct {
	// ID is the stream part id involved, if any.
	ID     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol: " + e.Reason
	if e.ID != "" {
		msg = fmt.Sprintf("protocol: %s (id %s)", e.Reason, e.ID)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
