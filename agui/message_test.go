package agui

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/tool"
)

func ptr(s string) *string { return &s }

func TestToMessages(t *testing.T) {
	msgs := ToMessages([]events.Message{
		{ID: "s1", Role: RoleSystem, Content: ptr("be brief")},
		{ID: "u1", Role: RoleUser, Content: ptr("weather in Oslo?")},
		{ID: "a1", Role: RoleAssistant, ToolCalls: []events.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: events.Function{Name: "get_weather", Arguments: `{"city":"Oslo"}`},
		}}},
		{ID: "t1", Role: RoleTool, ToolCallID: ptr("call_1"), Content: ptr("sunny")},
		{ID: "t2", Role: RoleTool, ToolCallID: ptr("call_2"), Content: ptr(`{"temp":21}`)},
	})
	require.Len(t, msgs, 5)

	assert.Equal(t, ai.RoleSystem, msgs[0].Role)
	assert.Equal(t, "be brief", msgs[0].Text())
	assert.Equal(t, "u1", msgs[1].ID)
	assert.Equal(t, ai.RoleUser, msgs[1].Role)

	calls := msgs[2].ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(calls[0].Input))
	assert.Equal(t, "a1", msgs[2].ID)

	results := msgs[3].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "call_1", results[0].ToolCallID)
	assert.Equal(t, "get_weather", results[0].ToolName)
	assert.JSONEq(t, `"sunny"`, string(results[0].Output))

	assert.JSONEq(t, `{"temp":21}`, string(msgs[4].ToolResults()[0].Output))
	assert.Empty(t, msgs[4].ToolResults()[0].ToolName)
}

func TestFromMessages(t *testing.T) {
	msgs := FromMessages([]ai.Message{
		ai.NewUserText("hi"),
		ai.NewAssistantMessage(
			ai.NewReasoningPart("thinking"),
			ai.NewTextPart("Checking."),
			ai.NewToolCallPart(ai.ToolCall{ID: "call_1", Name: "get_weather", Input: json.RawMessage(`{"city":"Oslo"}`)}),
		),
		ai.NewToolMessage(
			ai.ToolResult{ToolCallID: "call_1", Output: json.RawMessage(`"sunny"`)},
			ai.ToolResult{ToolCallID: "call_2", Output: json.RawMessage(`{"temp":21}`)},
		),
	})
	require.Len(t, msgs, 4)

	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.NotEmpty(t, msgs[0].ID)

	assert.Equal(t, RoleAssistant, msgs[1].Role)
	require.NotNil(t, msgs[1].Content)
	assert.Equal(t, "Checking.", *msgs[1].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, `{"city":"Oslo"}`, msgs[1].ToolCalls[0].Function.Arguments)

	assert.Equal(t, "call_1", *msgs[2].ToolCallID)
	assert.Equal(t, "sunny", *msgs[2].Content)
	assert.Equal(t, `{"temp":21}`, *msgs[3].Content)
}

func TestRoundTripKeepsToolPairs(t *testing.T) {
	in := []ai.Message{
		ai.NewUserText("hi"),
		ai.NewAssistantMessage(ai.NewToolCallPart(ai.ToolCall{ID: "c1", Name: "echo", Input: json.RawMessage(`{"text":"x"}`)})),
		ai.NewToolMessage(ai.ToolResult{ToolCallID: "c1", ToolName: "echo", Output: json.RawMessage(`"x"`)}),
	}
	out := ToMessages(FromMessages(in))
	require.Len(t, out, 3)
	assert.Equal(t, in[2].ToolResults(), out[2].ToolResults())
}

func TestPrepare(t *testing.T) {
	t.Run("converts messages", func(t *testing.T) {
		input := RunAgentInput{ThreadID: "t", RunID: "r", Messages: []events.Message{{ID: "u1", Role: RoleUser, Content: ptr("hi")}}}
		prepared, err := input.Prepare()
		require.NoError(t, err)
		assert.Equal(t, "t", prepared.ThreadID)
		require.Len(t, prepared.Messages, 1)
	})

	t.Run("requires messages", func(t *testing.T) {
		_, err := (&RunAgentInput{}).Prepare()
		assert.ErrorIs(t, err, ErrNoMessages)
	})

	t.Run("rejects frontend tools", func(t *testing.T) {
		input := RunAgentInput{
			Messages: []events.Message{{Role: RoleUser, Content: ptr("hi")}},
			Tools:    []any{map[string]any{"name": "confirm"}},
		}
		_, err := input.Prepare()
		assert.ErrorIs(t, err, ErrFrontendTools)
	})
}

func TestDecodeState(t *testing.T) {
	type state struct {
		Count int `json:"count"`
	}
	got, err := DecodeState[state](&PreparedInput{State: map[string]any{"count": 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)

	got, err = DecodeState[state](&PreparedInput{})
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestDecodeApproval(t *testing.T) {
	d, err := DecodeApproval(strings.NewReader(`{"toolCallId":"call_1","approved":false,"reason":"no"}`))
	require.NoError(t, err)
	assert.Equal(t, tool.Decision{ToolCallID: "call_1", Reason: "no"}, d)

	_, err = DecodeApproval(strings.NewReader(`{"approved":true}`))
	assert.ErrorIs(t, err, ErrNoToolCallID)

	_, err = DecodeApproval(strings.NewReader(`{`))
	assert.Error(t, err)
}
