package loom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageAdd(t *testing.T) {
	t.Run("sums present fields", func(t *testing.T) {
		a := Usage{InputTokens: Tokens(10), OutputTokens: Tokens(5)}
		b := Usage{InputTokens: Tokens(3), OutputTokens: Tokens(2)}
		sum := a.Add(b)
		assert.Equal(t, 13, *sum.InputTokens)
		assert.Equal(t, 7, *sum.OutputTokens)
	})

	t.Run("absent on one side counts as zero", func(t *testing.T) {
		a := Usage{ReasoningTokens: Tokens(4)}
		sum := a.Add(Usage{InputTokens: Tokens(1)})
		require.NotNil(t, sum.ReasoningTokens)
		assert.Equal(t, 4, *sum.ReasoningTokens)
		assert.Equal(t, 1, *sum.InputTokens)
	})

	t.Run("absent on both sides stays absent", func(t *testing.T) {
		sum := Usage{InputTokens: Tokens(1)}.Add(Usage{})
		assert.Nil(t, sum.CachedInputTokens)
		assert.Nil(t, sum.TotalTokens)
	})

	t.Run("does not alias operands", func(t *testing.T) {
		a := Usage{InputTokens: Tokens(1)}
		sum := a.Add(Usage{})
		*sum.InputTokens = 99
		assert.Equal(t, 1, *a.InputTokens)
	})
}

func TestUsageTotal(t *testing.T) {
	assert.Equal(t, 15, Usage{InputTokens: Tokens(10), OutputTokens: Tokens(5)}.Total())
	assert.Equal(t, 20, Usage{InputTokens: Tokens(10), TotalTokens: Tokens(20)}.Total())
	assert.Zero(t, Usage{}.Total())
	assert.True(t, Usage{}.IsZero())
	assert.False(t, Usage{OutputTokens: Tokens(0)}.IsZero())
}

func TestFinishReason(t *testing.T) {
	assert.Equal(t, "unknown", FinishReason("").String())
	assert.Equal(t, "tool-calls", FinishToolCalls.String())

	tests := map[string]FinishReason{
		"stop":           FinishStop,
		"length":         FinishLength,
		"content-filter": FinishContentFilter,
		"tool-calls":     FinishToolCalls,
		"":               FinishUnknown,
		"max_tokens":     FinishOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseFinishReason(in), in)
	}
}

func TestPartialObjectGet(t *testing.T) {
	p := &PartialObject{Raw: `{"location":{"city":"Paris"},"days":[1,2]}`}
	assert.Equal(t, "Paris", p.Get("location.city").String())
	assert.Equal(t, int64(2), p.Get("days.#").Int())

	var nilObj *PartialObject
	assert.False(t, nilObj.Get("a").Exists())
}

func TestStepResultAccessors(t *testing.T) {
	s := StepResult{Content: []ContentPart{
		NewReasoningPart("r"),
		NewTextPart("answer"),
		NewToolCallPart(ToolCall{ID: "c", Name: "t"}),
	}}
	assert.Equal(t, "answer", s.Text())
	assert.Equal(t, "r", s.Reasoning())
	assert.Len(t, s.ToolCalls(), 1)

	resp := &GenerateResponse{Content: s.Content}
	assert.Equal(t, "answer", resp.Text())
	assert.Len(t, resp.ToolCalls(), 1)
}
