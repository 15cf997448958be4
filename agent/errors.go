package agent

import (
	"context"
	"errors"
)

// Sentinel errors for agent termination conditions.
var (
	// ErrMaxStepsReached indicates a step bound stopped the loop while the
	// model still asked for tools.
	ErrMaxStepsReached = errors.New("agent: maximum steps reached")

	// ErrCancelled indicates the run was cancelled or timed out. The
	// returned error also wraps the context error.
	ErrCancelled = errors.New("agent: cancelled")
)

type cancelledError struct {
	cause error
}

func (e *cancelledError) Error() string {
	return "agent: cancelled: " + e.cause.Error()
}

func (e *cancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *cancelledError) Unwrap() error {
	return e.cause
}

func cancelled(ctx context.Context) error {
	return &cancelledError{cause: ctx.Err()}
}
