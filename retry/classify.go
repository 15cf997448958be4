package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	ai "github.com/spetersoncode/loom"
)

// Class is the retry classification of an error.
type Class int

const (
	// Terminal errors propagate to the caller immediately.
	Terminal Class = iota
	// Retryable errors may be retried within the policy bounds.
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "terminal"
}

// statusCoder is an interface for errors that have an HTTP status code.
type statusCoder interface {
	StatusCode() int
}

// Classify determines whether a failed model call may be retried.
//
// Categorized errors decide for themselves: transient and rate limit
// categories are retryable, auth, invalid request and content filter
// categories are terminal. Protocol, config, exhausted and cancellation
// errors are always terminal. Uncategorized errors fall back to status code
// and network heuristics.
func Classify(err error) Class {
	if err == nil {
		return Terminal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Terminal
	}

	var exhausted *ExhaustedError
	var protoErr *ai.ProtocolError
	var cfgErr *ai.ConfigError
	if errors.As(err, &exhausted) || errors.As(err, &protoErr) || errors.As(err, &cfgErr) {
		return Terminal
	}

	var ce ai.CategorizedError
	if errors.As(err, &ce) {
		return classOf(ce.Retryable())
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() > 0 {
		return classOf(ai.CategoryForStatus(sc.StatusCode()).Retryable())
	}

	return classOf(isTransientNetworkError(err))
}

// IsRetryable reports whether Classify(err) is Retryable.
func IsRetryable(err error) bool {
	return Classify(err) == Retryable
}

func classOf(retryable bool) Class {
	if retryable {
		return Retryable
	}
	return Terminal
}

func retryAfterOf(err error) time.Duration {
	return ai.RetryAfterOf(err)
}

// isTransientNetworkError checks for network-level transient errors.
func isTransientNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && isTransientNetworkError(urlErr.Err) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT, syscall.EPIPE:
			return true
		}
	}

	errMsg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"bad gateway",
	"gateway timeout",
	"unexpected eof",
}
