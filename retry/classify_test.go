package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	ai "github.com/spetersoncode/loom"
	"github.com/stretchr/testify/assert"
)

// mockAPIError simulates an SDK error with a status code.
type mockAPIError struct {
	code int
	msg  string
}

func (e *mockAPIError) Error() string   { return e.msg }
func (e *mockAPIError) StatusCode() int { return e.code }

// mockNetError simulates a network error with timeout/temporary flags.
type mockNetError struct {
	msg     string
	timeout bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.timeout }

var _ net.Error = (*mockNetError)(nil)

func TestClassifyCategorized(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Class
	}{
		{"transient", ai.NewTransientError("overloaded", 503, nil), Retryable},
		{"rate limit", ai.NewRateLimitError("slow down", 429, 0, nil), Retryable},
		{"auth", ai.NewUpstreamError(ai.ErrorAuth, "bad key", 401, nil), Terminal},
		{"invalid request", ai.NewUpstreamError(ai.ErrorInvalidRequest, "bad param", 400, nil), Terminal},
		{"content filter", ai.NewUpstreamError(ai.ErrorContentFilter, "blocked", 0, nil), Terminal},
		{"permanent", ai.NewPermanentError("gone", 0, nil), Terminal},
		{"wrapped transient", fmt.Errorf("call: %w", ai.NewTransientError("reset", 0, nil)), Retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassifyStatusCode(t *testing.T) {
	tests := []struct {
		code     int
		expected Class
	}{
		{400, Terminal},
		{401, Terminal},
		{403, Terminal},
		{404, Terminal},
		{408, Retryable},
		{429, Retryable},
		{500, Retryable},
		{502, Retryable},
		{503, Retryable},
		{504, Retryable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.code), func(t *testing.T) {
			err := &mockAPIError{code: tt.code, msg: "api error"}
			assert.Equal(t, tt.expected, Classify(err))
		})
	}
}

func TestClassifyAlwaysTerminal(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, Terminal, Classify(nil))
	})

	t.Run("context canceled", func(t *testing.T) {
		assert.Equal(t, Terminal, Classify(context.Canceled))
		assert.Equal(t, Terminal, Classify(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	})

	t.Run("protocol error", func(t *testing.T) {
		assert.Equal(t, Terminal, Classify(&ai.ProtocolError{Reason: "timeout in framing"}))
	})

	t.Run("config error", func(t *testing.T) {
		assert.Equal(t, Terminal, Classify(&ai.ConfigError{Field: "messages", Reason: "empty"}))
	})

	t.Run("exhausted wraps retryable", func(t *testing.T) {
		err := &ExhaustedError{Attempts: 2, Err: ai.NewRateLimitError("slow down", 429, 0, nil)}
		assert.Equal(t, Terminal, Classify(err))
		assert.True(t, ai.IsTransient(err), "the wrapped cause stays inspectable")
	})
}

func TestClassifyNetwork(t *testing.T) {
	t.Run("net timeout", func(t *testing.T) {
		assert.Equal(t, Retryable, Classify(&mockNetError{msg: "i/o", timeout: true}))
	})

	t.Run("connection reset errno", func(t *testing.T) {
		assert.Equal(t, Retryable, Classify(fmt.Errorf("read: %w", syscall.ECONNRESET)))
	})

	t.Run("temporary dns", func(t *testing.T) {
		assert.Equal(t, Retryable, Classify(&net.DNSError{Err: "no such host", IsTemporary: true}))
	})

	t.Run("message pattern", func(t *testing.T) {
		assert.Equal(t, Retryable, Classify(errors.New("upstream: Service Unavailable")))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.Equal(t, Terminal, Classify(errors.New("invalid json")))
	})
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "retryable", Retryable.String())
	assert.Equal(t, "terminal", Terminal.String())
}
