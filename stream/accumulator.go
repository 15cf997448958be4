package stream

import (
	"context"

	ai "github.com/spetersoncode/loom"
)

// Accumulator folds a part sequence into the content of one model response.
// Tool calls are added only at their end part, when their input is final.
type Accumulator struct {
	content  []ai.ContentPart
	blocks   map[string]int
	finish   ai.FinishReason
	usage    ai.Usage
	response ai.ResponseMetadata
	finished bool
	err      error
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{blocks: make(map[string]int)}
}

// Add folds p into the accumulated state. It returns the error carried by
// an error part.
func (a *Accumulator) Add(p ai.StreamPart) error {
	switch p.Type {
	case ai.PartTextStart:
		a.blocks[p.ID] = len(a.content)
		a.content = append(a.content, ai.NewTextPart(""))
	case ai.PartReasoningStart:
		a.blocks[p.ID] = len(a.content)
		a.content = append(a.content, ai.NewReasoningPart(""))
	case ai.PartTextDelta, ai.PartReasoningDelta:
		if i, ok := a.blocks[p.ID]; ok {
			a.content[i].Text += p.Delta
		}
	case ai.PartTextEnd, ai.PartReasoningEnd:
		delete(a.blocks, p.ID)
	case ai.PartToolCallEnd:
		a.content = append(a.content, ai.NewToolCallPart(p.ToolCall()))
	case ai.PartToolResult:
		if p.ToolResult != nil {
			a.content = append(a.content, ai.NewToolResultPart(*p.ToolResult))
		}
	case ai.PartResponseMetadata:
		if p.Response != nil {
			a.response = *p.Response
		}
	case ai.PartFinish:
		a.finish = p.FinishReason
		a.usage = a.usage.Add(p.Usage)
		a.finished = true
	case ai.PartError:
		a.err = p.Err
		return p.Err
	}
	return nil
}

// Content returns the accumulated content parts. Text blocks still open are
// included with the text received so far.
func (a *Accumulator) Content() []ai.ContentPart {
	out := make([]ai.ContentPart, 0, len(a.content))
	for _, c := range a.content {
		if (c.Type == ai.ContentPartTypeText || c.Type == ai.ContentPartTypeReasoning) && c.Text == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Text returns the accumulated text.
func (a *Accumulator) Text() string {
	return ai.Message{Content: a.content}.Text()
}

// ToolCalls returns the completed tool calls in declaration order.
func (a *Accumulator) ToolCalls() []ai.ToolCall {
	return ai.Message{Content: a.content}.ToolCalls()
}

// FinishReason returns the reported finish reason, or FinishUnknown when the
// stream ended without one.
func (a *Accumulator) FinishReason() ai.FinishReason {
	if !a.finished {
		return ai.FinishUnknown
	}
	return a.finish
}

// Finished reports whether a finish part was seen.
func (a *Accumulator) Finished() bool {
	return a.finished
}

// Usage returns the reported usage.
func (a *Accumulator) Usage() ai.Usage {
	return a.usage
}

// Err returns the error of an error part, if one was seen.
func (a *Accumulator) Err() error {
	return a.err
}

// Response returns the accumulated state as a GenerateResponse.
func (a *Accumulator) Response() *ai.GenerateResponse {
	return &ai.GenerateResponse{
		Content:      a.Content(),
		FinishReason: a.FinishReason(),
		Usage:        a.usage,
		Response:     a.response,
	}
}

// Collect drains parts into a GenerateResponse. It returns the error of an
// error part, or ctx.Err() when the stream was cut short by cancellation.
func Collect(ctx context.Context, parts <-chan ai.StreamPart) (*ai.GenerateResponse, error) {
	acc := NewAccumulator()
	for {
		select {
		case <-ctx.Done():
			return acc.Response(), ctx.Err()
		case p, ok := <-parts:
			if !ok {
				if err := ctx.Err(); err != nil && !acc.Finished() {
					return acc.Response(), err
				}
				return acc.Response(), nil
			}
			if err := acc.Add(p); err != nil {
				return acc.Response(), err
			}
		}
	}
}
