package retry

import (
	"context"
	"fmt"
	"time"
)

// EventType identifies the kind of event occurring during retry execution.
type EventType string

const (
	// EventAttemptFailed fires after a failed attempt.
	EventAttemptFailed EventType = "attempt_failed"

	// EventRetrying fires before sleeping between attempts.
	EventRetrying EventType = "retrying"

	// EventExhausted fires when a retryable error hit a policy bound.
	EventExhausted EventType = "exhausted"
)

// Event represents an observable occurrence during retry execution.
type Event struct {
	Type EventType

	// Attempt is the attempt number the event refers to (1-indexed).
	Attempt int

	// MaxAttempts is the total number of attempts allowed.
	MaxAttempts int

	// Err is the error from the failed attempt.
	Err error

	// Delay is the wait before the next attempt (EventRetrying only).
	Delay time.Duration

	// Retryable reports how the error was classified.
	Retryable bool
}

// ExhaustedError wraps the last retryable error once the policy gave up.
// It always classifies as Terminal.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Option configures a single Do call.
type Option func(*doConfig)

type doConfig struct {
	notify func(Event)
	now    func() time.Time
}

// WithNotify registers a callback that observes failed attempts and waits.
// The callback runs synchronously on the retrying goroutine.
func WithNotify(fn func(Event)) Option {
	return func(c *doConfig) {
		c.notify = fn
	}
}

// Do executes fn with retry logic.
//
// Terminal errors are returned unchanged after the first failure. When a
// retryable error exhausts MaxAttempts or MaxElapsed, the last error is
// wrapped in *ExhaustedError. Context cancellation during a wait returns
// ctx.Err().
func Do[T any](ctx context.Context, p Policy, fn func() (T, error), opts ...Option) (T, error) {
	cfg := doConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	start := cfg.now()
	maxAttempts := p.attempts()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		retryable := IsRetryable(err)
		cfg.emit(Event{
			Type:        EventAttemptFailed,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Err:         err,
			Retryable:   retryable,
		})
		if !retryable {
			return zero, err
		}

		delay := p.Backoff(attempt-1, err)
		elapsed := cfg.now().Sub(start)
		if attempt >= maxAttempts || (p.MaxElapsed > 0 && elapsed+delay > p.MaxElapsed) {
			cfg.emit(Event{
				Type:        EventExhausted,
				Attempt:     attempt,
				MaxAttempts: maxAttempts,
				Err:         err,
			})
			return zero, &ExhaustedError{Attempts: attempt, Elapsed: elapsed, Err: err}
		}

		cfg.emit(Event{
			Type:        EventRetrying,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Err:         err,
			Delay:       delay,
			Retryable:   true,
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// DoStream is like Do but for functions that open a stream. It retries the
// stream establishment only; failures inside an open stream are never
// retried.
func DoStream[T any](ctx context.Context, p Policy, fn func() (<-chan T, error), opts ...Option) (<-chan T, error) {
	return Do(ctx, p, fn, opts...)
}

func (c doConfig) emit(e Event) {
	if c.notify != nil {
		c.notify(e)
	}
}
