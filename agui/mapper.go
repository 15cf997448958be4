package agui

import (
	"fmt"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/loom/event"
)

// Mapper converts loop events to AG-UI events. Each loop event maps to at
// most one AG-UI event.
//
// Create a new Mapper for each run using NewMapper. The Mapper is not
// safe for concurrent use.
type Mapper struct {
	threadID string
	runID    string
}

// NewMapper creates a new Mapper for a single run.
// The threadID and runID are used in lifecycle events (RUN_STARTED, RUN_FINISHED).
func NewMapper(threadID, runID string) *Mapper {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	return &Mapper{
		threadID: threadID,
		runID:    runID,
	}
}

// ThreadID returns the thread ID for this mapper.
func (m *Mapper) ThreadID() string {
	return m.threadID
}

// RunID returns the run ID for this mapper.
func (m *Mapper) RunID() string {
	return m.runID
}

// RunStarted returns a RUN_STARTED event.
func (m *Mapper) RunStarted() events.Event {
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

// RunFinished returns a RUN_FINISHED event.
func (m *Mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

// RunError returns a RUN_ERROR event.
func (m *Mapper) RunError(err error) events.Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return events.NewRunErrorEvent(msg)
}

// StepName names a loop step in STEP_STARTED and STEP_FINISHED events.
func StepName(step int) string {
	return fmt.Sprintf("step-%d", step)
}

// MapEvent converts a loop event to an AG-UI event. It returns nil for
// events without an AG-UI equivalent: reasoning, state changes, retries
// and approval decisions.
func (m *Mapper) MapEvent(e event.Event) events.Event {
	switch e.Type {
	case event.RunStart:
		return m.RunStarted()
	case event.RunEnd:
		return m.RunFinished()
	case event.RunError:
		return m.RunError(e.Error)

	case event.StepStart:
		return events.NewStepStartedEvent(StepName(e.Step))
	case event.StepEnd:
		return events.NewStepFinishedEvent(StepName(e.Step))

	case event.MessageStart:
		return events.NewTextMessageStartEvent(e.MessageID, events.WithRole(RoleAssistant))
	case event.MessageDelta:
		// AG-UI rejects empty content events.
		if e.Delta == "" {
			return nil
		}
		return events.NewTextMessageContentEvent(e.MessageID, e.Delta)
	case event.MessageEnd:
		return events.NewTextMessageEndEvent(e.MessageID)

	case event.ToolCallStart:
		if e.ToolCall == nil {
			return nil
		}
		return events.NewToolCallStartEvent(e.ToolCall.ID, e.ToolCall.Name)
	case event.ToolCallArgs:
		if e.ToolCall == nil || e.Delta == "" {
			return nil
		}
		return events.NewToolCallArgsEvent(e.ToolCall.ID, e.Delta)
	case event.ToolCallEnd:
		if e.ToolCall == nil {
			return nil
		}
		return events.NewToolCallEndEvent(e.ToolCall.ID)
	case event.ToolCallResult:
		if e.ToolResult == nil {
			return nil
		}
		return events.NewToolCallResultEvent(events.GenerateMessageID(), e.ToolResult.ToolCallID, e.ToolResult.OutputText())

	default:
		return nil
	}
}

// MapStream maps every event of in and closes the returned channel once in
// is closed. The caller must drain the returned channel.
func (m *Mapper) MapStream(in <-chan event.Event) <-chan events.Event {
	out := make(chan events.Event, cap(in))
	go func() {
		defer close(out)
		for e := range in {
			if ev := m.MapEvent(e); ev != nil {
				out <- ev
			}
		}
	}()
	return out
}
