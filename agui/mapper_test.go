package agui

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/event"
)

func TestNewMapper(t *testing.T) {
	t.Run("with provided IDs", func(t *testing.T) {
		m := NewMapper("thread-123", "run-456")
		if m.ThreadID() != "thread-123" {
			t.Errorf("expected thread ID 'thread-123', got %q", m.ThreadID())
		}
		if m.RunID() != "run-456" {
			t.Errorf("expected run ID 'run-456', got %q", m.RunID())
		}
	})

	t.Run("generates IDs when empty", func(t *testing.T) {
		m := NewMapper("", "")
		if m.ThreadID() == "" {
			t.Error("expected generated thread ID, got empty")
		}
		if m.RunID() == "" {
			t.Error("expected generated run ID, got empty")
		}
	})
}

func TestMapper_MapEvent(t *testing.T) {
	m := NewMapper("thread-1", "run-1")
	call := &ai.ToolCall{ID: "call_1", Name: "get_weather", Input: json.RawMessage(`{"city":"Oslo"}`)}
	result := &ai.ToolResult{ToolCallID: "call_1", ToolName: "get_weather", Output: json.RawMessage(`"sunny"`)}

	tests := []struct {
		name string
		in   event.Event
		want events.EventType
	}{
		{"run start", event.Event{Type: event.RunStart}, events.EventTypeRunStarted},
		{"run end", event.Event{Type: event.RunEnd}, events.EventTypeRunFinished},
		{"run error", event.Event{Type: event.RunError, Error: errors.New("boom")}, events.EventTypeRunError},
		{"step start", event.Event{Type: event.StepStart, Step: 1}, events.EventTypeStepStarted},
		{"step end", event.Event{Type: event.StepEnd, Step: 1}, events.EventTypeStepFinished},
		{"message start", event.Event{Type: event.MessageStart, MessageID: "m1"}, events.EventTypeTextMessageStart},
		{"message delta", event.Event{Type: event.MessageDelta, MessageID: "m1", Delta: "Hi"}, events.EventTypeTextMessageContent},
		{"message end", event.Event{Type: event.MessageEnd, MessageID: "m1"}, events.EventTypeTextMessageEnd},
		{"tool call start", event.Event{Type: event.ToolCallStart, ToolCall: call}, events.EventTypeToolCallStart},
		{"tool call args", event.Event{Type: event.ToolCallArgs, ToolCall: call, Delta: `{"city":`}, events.EventTypeToolCallArgs},
		{"tool call end", event.Event{Type: event.ToolCallEnd, ToolCall: call}, events.EventTypeToolCallEnd},
		{"tool call result", event.Event{Type: event.ToolCallResult, ToolCall: call, ToolResult: result}, events.EventTypeToolCallResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.MapEvent(tt.in)
			if got == nil {
				t.Fatal("expected event, got nil")
			}
			if got.Type() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Type())
			}
		})
	}
}

func TestMapper_MapEvent_Unmapped(t *testing.T) {
	m := NewMapper("thread-1", "run-1")
	call := &ai.ToolCall{ID: "call_1", Name: "x"}

	unmapped := []event.Event{
		{Type: event.ReasoningDelta, Delta: "hmm"},
		{Type: event.StateChange, State: "calling-model"},
		{Type: event.Retrying, Attempt: 1},
		{Type: event.ToolCallApproved, ToolCall: call},
		{Type: event.ToolCallRejected, ToolCall: call},
		{Type: event.ToolCallExecuting, ToolCall: call},
		{Type: event.MessageDelta, MessageID: "m1"},
		{Type: event.ToolCallArgs, ToolCall: call},
		{Type: event.ToolCallStart},
		{Type: event.ToolCallResult},
	}
	for _, e := range unmapped {
		if got := m.MapEvent(e); got != nil {
			t.Errorf("%s: expected nil, got %s", e.Type, got.Type())
		}
	}
}

func TestMapper_MapStream(t *testing.T) {
	m := NewMapper("thread-1", "run-1")
	in := make(chan event.Event, 5)
	in <- event.Event{Type: event.RunStart}
	in <- event.Event{Type: event.StateChange, State: "calling-model"}
	in <- event.Event{Type: event.MessageStart, MessageID: "m1"}
	in <- event.Event{Type: event.MessageDelta, MessageID: "m1", Delta: "Hi"}
	in <- event.Event{Type: event.RunEnd}
	close(in)

	var got []events.EventType
	for ev := range m.MapStream(in) {
		got = append(got, ev.Type())
	}

	want := []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeRunFinished,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestStepName(t *testing.T) {
	if got := StepName(3); got != "step-3" {
		t.Errorf("expected step-3, got %q", got)
	}
}
