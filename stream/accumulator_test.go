package stream

import (
	"context"
	"encoding/json"
	"testing"

	ai "github.com/spetersoncode/loom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	d := NewDecoder()
	parts := d.Decode(context.Background(), source(
		ai.RawEvent{Type: ai.RawResponseMetadata, Response: &ai.ResponseMetadata{ID: "resp_1"}},
		ai.RawEvent{Type: ai.RawReasoningDelta, Index: 0, Delta: "hmm"},
		ai.RawEvent{Type: ai.RawTextDelta, Index: 1, Delta: "Checking "},
		ai.RawEvent{Type: ai.RawTextDelta, Index: 1, Delta: "weather."},
		ai.RawEvent{Type: ai.RawToolCallDelta, Index: 2, ID: "call_1", ToolName: "weather", Delta: `{"city":"Oslo"}`},
		ai.RawEvent{Type: ai.RawFinish, FinishReason: ai.FinishToolCalls, Usage: ai.Usage{InputTokens: ai.Tokens(5)}},
	))

	resp, err := Collect(context.Background(), parts)
	require.NoError(t, err)

	assert.Equal(t, "Checking weather.", resp.Text())
	assert.Equal(t, ai.FinishToolCalls, resp.FinishReason)
	assert.Equal(t, 5, *resp.Usage.InputTokens)
	assert.Nil(t, resp.Usage.OutputTokens)
	assert.Equal(t, "resp_1", resp.Response.ID)

	require.Len(t, resp.Content, 3)
	assert.Equal(t, ai.ContentPartTypeReasoning, resp.Content[0].Type)
	assert.Equal(t, ai.ContentPartTypeText, resp.Content[1].Type)

	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, ai.ToolCall{ID: "call_1", Name: "weather", Input: json.RawMessage(`{"city":"Oslo"}`)}, calls[0])
}

func TestCollectError(t *testing.T) {
	parts := NewDecoder().Decode(context.Background(), source(
		ai.RawEvent{Type: ai.RawTextDelta, Delta: "partial"},
		ai.RawEvent{Type: ai.RawError, Err: ai.NewTransientError("overloaded", 529, nil)},
	))

	resp, err := Collect(context.Background(), parts)
	require.Error(t, err)
	assert.True(t, ai.IsTransient(err))
	assert.Equal(t, "partial", resp.Text())
}

func TestAccumulatorIgnoresUnfinishedToolCalls(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Add(ai.StreamPart{Type: ai.PartToolCallStart, ID: "c", ToolName: "t"}))
	require.NoError(t, acc.Add(ai.StreamPart{Type: ai.PartToolInputDelta, ID: "c", Delta: `{"a":`}))

	assert.Empty(t, acc.ToolCalls())
	assert.False(t, acc.Finished())
	assert.Equal(t, ai.FinishUnknown, acc.FinishReason())
}

func TestResponseEventsRoundTrip(t *testing.T) {
	resp := &ai.GenerateResponse{
		Content: []ai.ContentPart{
			ai.NewReasoningPart("thinking"),
			ai.NewTextPart("hello"),
			ai.NewToolCallPart(ai.ToolCall{ID: "call_9", Name: "lookup", Input: json.RawMessage(`{"id":7}`)}),
		},
		FinishReason: ai.FinishToolCalls,
		Usage:        ai.Usage{OutputTokens: ai.Tokens(3)},
		Response:     ai.ResponseMetadata{ID: "r"},
	}

	ctx := context.Background()
	got, err := Collect(ctx, NewDecoder().Decode(ctx, Events(ctx, resp)))
	require.NoError(t, err)

	assert.Equal(t, resp.Content, got.Content)
	assert.Equal(t, resp.FinishReason, got.FinishReason)
	assert.Equal(t, resp.Usage, got.Usage)
	assert.Equal(t, resp.Response, got.Response)
}
