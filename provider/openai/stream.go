package openai

import (
	"time"

	"github.com/openai/openai-go"

	ai "github.com/spetersoncode/loom"
)

// Chunks carry text in a single block and tool-call fragments keyed by
// their index. Tool indices are offset so they never share a block index
// with the text.
const toolIndexOffset = 1

type chunkState struct {
	raw          bool
	metaSent     bool
	finishReason ai.FinishReason
	usage        ai.Usage
}

func newChunkState(raw bool) *chunkState {
	return &chunkState{raw: raw, finishReason: ai.FinishUnknown}
}

// events translates one chunk. Finish reason and usage are held back until
// the stream ends because usage arrives in a trailing chunk.
func (s *chunkState) events(chunk openai.ChatCompletionChunk) []ai.RawEvent {
	var out []ai.RawEvent
	if s.raw {
		out = append(out, ai.RawEvent{Type: ai.RawChunk, Raw: chunk})
	}
	if !s.metaSent && (chunk.ID != "" || chunk.Model != "") {
		s.metaSent = true
		out = append(out, ai.RawEvent{Type: ai.RawResponseMetadata, Response: &ai.ResponseMetadata{
			ID:        chunk.ID,
			ModelID:   chunk.Model,
			Timestamp: time.Unix(chunk.Created, 0),
		}})
	}

	if chunk.Usage.TotalTokens > 0 {
		s.usage = usage(chunk.Usage)
	}
	if len(chunk.Choices) == 0 {
		return out
	}

	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		out = append(out, ai.RawEvent{Type: ai.RawTextDelta, Index: 0, Delta: choice.Delta.Content})
	}
	for _, tc := range choice.Delta.ToolCalls {
		out = append(out, ai.RawEvent{
			Type:     ai.RawToolCallDelta,
			Index:    int(tc.Index) + toolIndexOffset,
			ID:       tc.ID,
			ToolName: tc.Function.Name,
			Delta:    tc.Function.Arguments,
		})
	}
	if choice.FinishReason != "" {
		s.finishReason = finishReason(choice.FinishReason)
	}
	return out
}

func (s *chunkState) finish() ai.RawEvent {
	return ai.RawEvent{Type: ai.RawFinish, FinishReason: s.finishReason, Usage: s.usage}
}
