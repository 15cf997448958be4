package tool

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a tool failure.
type ErrorKind string

const (
	// KindNotFound means no tool with the requested name is registered.
	KindNotFound ErrorKind = "not-found"
	// KindInvalidInput means the input failed to parse or validate.
	KindInvalidInput ErrorKind = "invalid-input"
	// KindExecutionFailed means the tool returned an error or panicked.
	KindExecutionFailed ErrorKind = "execution-failed"
	// KindExecutionDenied means the approver rejected the call.
	KindExecutionDenied ErrorKind = "execution-denied"
)

// Error is a failed tool call. Tool errors are never retried.
type Error struct {
	Kind   ErrorKind
	Tool   string
	CallID string
	// Reason is a short explanation, used when Err is nil.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	detail := e.Reason
	if e.Err != nil {
		if detail != "" {
			detail += ": "
		}
		detail += e.Err.Error()
	}
	return fmt.Sprintf("tool: %s: %s: %s", e.Tool, e.Kind, detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a tool error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a tool error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ErrAlreadyRegistered is returned when registering a tool with a duplicate name.
type ErrAlreadyRegistered struct {
	Name string
}

func (e *ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("tool: already registered: %s", e.Name)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
