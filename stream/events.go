package stream

import (
	"context"

	ai "github.com/spetersoncode/loom"
)

// Events replays a complete response as a raw event stream: one event per
// content part followed by a finish event. The channel is closed when all
// events were delivered or ctx is cancelled.
func Events(ctx context.Context, resp *ai.GenerateResponse) <-chan ai.RawEvent {
	events := ResponseEvents(resp)
	ch := make(chan ai.RawEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return ch
}

// ResponseEvents converts a complete response into the raw events a
// streaming call would have produced.
func ResponseEvents(resp *ai.GenerateResponse) []ai.RawEvent {
	var events []ai.RawEvent
	if resp.Response.ID != "" || resp.Response.ModelID != "" {
		meta := resp.Response
		events = append(events, ai.RawEvent{Type: ai.RawResponseMetadata, Response: &meta})
	}
	for i, c := range resp.Content {
		switch c.Type {
		case ai.ContentPartTypeText:
			events = append(events, ai.RawEvent{Type: ai.RawTextDelta, Index: i, Delta: c.Text})
		case ai.ContentPartTypeReasoning:
			events = append(events, ai.RawEvent{Type: ai.RawReasoningDelta, Index: i, Delta: c.Text})
		case ai.ContentPartTypeToolCall:
			if c.ToolCall == nil {
				continue
			}
			events = append(events, ai.RawEvent{
				Type:     ai.RawToolCall,
				Index:    i,
				ID:       c.ToolCall.ID,
				ToolName: c.ToolCall.Name,
				Input:    c.ToolCall.Input,
			})
			continue
		case ai.ContentPartTypeToolResult:
			if c.ToolResult == nil {
				continue
			}
			events = append(events, ai.RawEvent{Type: ai.RawToolResult, Index: i, ToolResult: c.ToolResult})
			continue
		default:
			continue
		}
		events = append(events, ai.RawEvent{Type: ai.RawBlockEnd, Index: i})
	}
	return append(events, ai.RawEvent{
		Type:         ai.RawFinish,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	})
}
