// Package event defines the events a running tool loop reports. The event
// types map 1:1 onto the AG-UI protocol, see package agui.
package event

import (
	"context"
	"time"

	ai "github.com/spetersoncode/loom"
)

// Type identifies the kind of event.
type Type string

// Run lifecycle events
const (
	// RunStart fires when a run begins.
	RunStart Type = "run_start"

	// RunEnd fires when a run finished successfully.
	RunEnd Type = "run_end"

	// RunError fires when a run failed. It is the last event of the run.
	RunError Type = "run_error"
)

// Step lifecycle events
const (
	// StepStart fires when a step begins, before the model is called.
	StepStart Type = "step_start"

	// StepEnd fires when a step completed, after its tools ran.
	StepEnd Type = "step_end"

	// StateChange fires on every transition of the loop state machine.
	StateChange Type = "state_change"

	// Retrying fires before the loop waits to retry a failed model call.
	Retrying Type = "retrying"
)

// Message lifecycle events
const (
	// MessageStart fires when an assistant text block begins.
	MessageStart Type = "message_start"

	// MessageDelta fires for each streamed text fragment.
	MessageDelta Type = "message_delta"

	// MessageEnd fires when an assistant text block completes.
	MessageEnd Type = "message_end"

	// ReasoningStart fires when a reasoning block begins.
	ReasoningStart Type = "reasoning_start"

	// ReasoningDelta fires for each streamed reasoning fragment.
	ReasoningDelta Type = "reasoning_delta"

	// ReasoningEnd fires when a reasoning block completes.
	ReasoningEnd Type = "reasoning_end"
)

// Tool call lifecycle events
const (
	// ToolCallStart fires when the model starts a tool call.
	ToolCallStart Type = "tool_call_start"

	// ToolCallArgs fires for each fragment of tool input. Partial holds
	// the repaired input received so far.
	ToolCallArgs Type = "tool_call_args"

	// ToolCallEnd fires when the tool input is complete.
	ToolCallEnd Type = "tool_call_end"

	// ToolCallApproved fires when a call was approved.
	ToolCallApproved Type = "tool_call_approved"

	// ToolCallRejected fires when a call was rejected.
	ToolCallRejected Type = "tool_call_rejected"

	// ToolCallExecuting fires right before a tool runs.
	ToolCallExecuting Type = "tool_call_executing"

	// ToolCallResult fires with the result of a tool call, failed ones
	// included.
	ToolCallResult Type = "tool_call_result"
)

// Event is an observable occurrence during a run.
type Event struct {
	// Type identifies the kind of event.
	Type Type

	// RunID identifies the run.
	RunID string

	// State is the loop state after a StateChange.
	State string

	// MessageID correlates Start/Delta/End events of one block.
	MessageID string

	// Delta holds streamed text, reasoning or tool input.
	Delta string

	// Partial is the best-effort tool input on ToolCallArgs events.
	Partial *ai.PartialObject

	// ToolCall is set on tool call events.
	ToolCall *ai.ToolCall

	// ToolResult is set on ToolCallResult events.
	ToolResult *ai.ToolResult

	// Step is the 1-based step number.
	Step int

	// StepResult is set on StepEnd events.
	StepResult *ai.StepResult

	// Attempt is the failed attempt number on Retrying events.
	Attempt int

	// Delay is the wait before the next attempt on Retrying events.
	Delay time.Duration

	// Error is set on RunError and Retrying events.
	Error error

	// Message carries extra context such as a rejection reason.
	Message string

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Emit stamps e and sends it to ch. It blocks until the consumer receives
// the event or ctx ends, in which case it returns ctx.Err().
func Emit(ctx context.Context, ch chan<- Event, e Event) error {
	e.Timestamp = time.Now()
	select {
	case ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewChannel creates a buffered event channel with standard capacity.
func NewChannel() chan Event {
	return make(chan Event, 100)
}
