package agui

import (
	"encoding/json"
	"errors"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/loom"
)

// RunAgentInput represents the AG-UI protocol request for running an agent.
type RunAgentInput struct {
	ThreadID       string           `json:"thread_id"`
	RunID          string           `json:"run_id"`
	Messages       []events.Message `json:"messages"`
	Tools          []any            `json:"tools,omitempty"`
	Context        []any            `json:"context,omitempty"`
	State          any              `json:"state,omitempty"`
	ForwardedProps any              `json:"forwarded_props,omitempty"`
}

// PreparedInput contains validated and converted input ready for a run.
type PreparedInput struct {
	ThreadID string
	RunID    string
	Messages []ai.Message
	State    any
}

// ErrNoMessages is returned when the input contains no messages.
var ErrNoMessages = errors.New("no messages provided")

// ErrFrontendTools is returned when the input defines frontend tools, which
// the loop cannot execute.
var ErrFrontendTools = errors.New("frontend tools are not supported")

// Prepare validates the input and converts its messages.
func (r *RunAgentInput) Prepare() (*PreparedInput, error) {
	if len(r.Tools) > 0 {
		return nil, ErrFrontendTools
	}
	messages := ToMessages(r.Messages)
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	return &PreparedInput{
		ThreadID: r.ThreadID,
		RunID:    r.RunID,
		Messages: messages,
		State:    r.State,
	}, nil
}

// DecodeState decodes the raw state into a typed struct.
// Returns the zero value of T if State is nil.
func DecodeState[T any](input *PreparedInput) (T, error) {
	var result T
	if input.State == nil {
		return result, nil
	}

	// Re-marshal and unmarshal to get proper typing
	data, err := json.Marshal(input.State)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, err
	}
	return result, nil
}
