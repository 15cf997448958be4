package anthropic

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	ai "github.com/spetersoncode/loom"
)

type eventState struct {
	raw      bool
	jsonMode bool
	// jsonBlock is the index of the JSON tool block, or -1.
	jsonBlock  int
	sawTool    bool
	stopReason string
	input      int64
	output     int64
	cached     int64
	done       bool
}

func newEventState(raw, jsonMode bool) *eventState {
	return &eventState{raw: raw, jsonMode: jsonMode, jsonBlock: -1}
}

// events translates one server-sent event into raw events keyed by content
// block index.
func (s *eventState) events(ev anthropic.MessageStreamEventUnion) []ai.RawEvent {
	var out []ai.RawEvent
	if s.raw {
		out = append(out, ai.RawEvent{Type: ai.RawChunk, Raw: ev})
	}

	switch ev.Type {
	case "message_start":
		msg := ev.AsMessageStart().Message
		s.input = msg.Usage.InputTokens
		s.cached = msg.Usage.CacheReadInputTokens
		out = append(out, ai.RawEvent{Type: ai.RawResponseMetadata, Response: &ai.ResponseMetadata{
			ID:        msg.ID,
			ModelID:   string(msg.Model),
			Timestamp: time.Now(),
		}})

	case "content_block_start":
		start := ev.AsContentBlockStart()
		index := int(start.Index)
		block := start.ContentBlock
		switch block.Type {
		case "tool_use":
			if s.jsonMode && block.Name == jsonToolName {
				s.jsonBlock = index
				break
			}
			s.sawTool = true
			out = append(out, ai.RawEvent{Type: ai.RawToolCallDelta, Index: index, ID: block.ID, ToolName: block.Name})
		case "text":
			if block.Text != "" {
				out = append(out, ai.RawEvent{Type: ai.RawTextDelta, Index: index, Delta: block.Text})
			}
		}

	case "content_block_delta":
		d := ev.AsContentBlockDelta()
		index := int(d.Index)
		switch d.Delta.Type {
		case "text_delta":
			out = append(out, ai.RawEvent{Type: ai.RawTextDelta, Index: index, Delta: d.Delta.Text})
		case "thinking_delta":
			out = append(out, ai.RawEvent{Type: ai.RawReasoningDelta, Index: index, Delta: d.Delta.Thinking})
		case "input_json_delta":
			if index == s.jsonBlock {
				out = append(out, ai.RawEvent{Type: ai.RawTextDelta, Index: index, Delta: d.Delta.PartialJSON})
				break
			}
			out = append(out, ai.RawEvent{Type: ai.RawToolCallDelta, Index: index, Delta: d.Delta.PartialJSON})
		}

	case "content_block_stop":
		out = append(out, ai.RawEvent{Type: ai.RawBlockEnd, Index: int(ev.AsContentBlockStop().Index)})

	case "message_delta":
		d := ev.AsMessageDelta()
		if d.Delta.StopReason != "" {
			s.stopReason = string(d.Delta.StopReason)
		}
		if d.Usage.OutputTokens > 0 {
			s.output = d.Usage.OutputTokens
		}
		if d.Usage.InputTokens > s.input {
			s.input = d.Usage.InputTokens
		}

	case "message_stop":
		s.done = true
	}
	return out
}

func (s *eventState) finish() ai.RawEvent {
	return ai.RawEvent{
		Type:         ai.RawFinish,
		FinishReason: finishReason(s.stopReason, s.sawTool),
		Usage:        usage(s.input, s.output, s.cached),
	}
}
