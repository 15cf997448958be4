package agent

import (
	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/store"
)

// State is a state of the loop state machine.
type State string

const (
	// StateAwaitingModel: the model call is being established.
	StateAwaitingModel State = "awaiting-model"

	// StateDecoding: the model output is being consumed into a step.
	StateDecoding State = "decoding"

	// StateExecutingTools: the step's tool calls are running.
	StateExecutingTools State = "executing-tools"

	// StateFinished is terminal: the run succeeded.
	StateFinished State = "finished"

	// StateFailed is terminal: the run failed. Err holds the reason.
	StateFailed State = "failed"
)

// Result is the outcome of a run. It is returned on failure too, holding
// the steps completed before the failure.
type Result struct {
	// Steps holds one result per completed step, in order.
	Steps []ai.StepResult

	// Text is the text of the last step.
	Text string

	// Usage is the usage summed over all steps.
	Usage ai.Usage

	// FinishReason is the finish reason of the last step.
	FinishReason ai.FinishReason

	// State is StateFinished or StateFailed.
	State State

	// Err is the error that failed the run.
	Err error

	history *store.MessageStore
}

// Messages returns the conversation history: the input messages followed
// by every message the run appended.
func (r *Result) Messages() []ai.Message {
	if r.history == nil {
		return nil
	}
	return r.history.Messages()
}

// MessageCount returns the number of messages in the conversation history.
func (r *Result) MessageCount() int {
	if r.history == nil {
		return 0
	}
	return r.history.Len()
}

// LastMessages returns the last n messages from the conversation history.
func (r *Result) LastMessages(n int) []ai.Message {
	if r.history == nil {
		return nil
	}
	return r.history.Last(n)
}

// LastStep returns the last completed step.
func (r *Result) LastStep() (ai.StepResult, bool) {
	if len(r.Steps) == 0 {
		return ai.StepResult{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}
