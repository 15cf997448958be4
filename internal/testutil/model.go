// Package testutil provides scripted fakes for tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/stream"
)

// ErrNoTurn is returned once a Model ran out of scripted turns.
var ErrNoTurn = errors.New("testutil: no scripted turn left")

// Turn is the scripted outcome of one model call.
type Turn struct {
	// Response is returned by Generate. Stream replays it as events unless
	// Events is set.
	Response *ai.GenerateResponse
	// Events overrides the events Stream sends.
	Events []ai.RawEvent
	// Err fails the call before it starts.
	Err error
	// Delay is waited before every streamed event.
	Delay time.Duration
}

// Model is a LanguageModel that plays back scripted turns in order. It is
// safe for concurrent use.
type Model struct {
	ProviderID string
	Model      string

	mu    sync.Mutex
	turns []Turn
	calls []ai.CallOptions
}

// NewModel creates a Model playing turns.
func NewModel(turns ...Turn) *Model {
	return &Model{ProviderID: "test", Model: "scripted", turns: turns}
}

func (m *Model) Provider() string { return m.ProviderID }
func (m *Model) ModelID() string  { return m.Model }

// Calls returns the options of every call made so far.
func (m *Model) Calls() []ai.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ai.CallOptions, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls made so far.
func (m *Model) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *Model) next(opts ai.CallOptions) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, opts)
	if len(m.turns) == 0 {
		return Turn{}, ErrNoTurn
	}
	t := m.turns[0]
	m.turns = m.turns[1:]
	return t, nil
}

func (m *Model) Generate(ctx context.Context, opts ai.CallOptions) (*ai.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.next(opts)
	if err != nil {
		return nil, err
	}
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Response, nil
}

func (m *Model) Stream(ctx context.Context, opts ai.CallOptions) (<-chan ai.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.next(opts)
	if err != nil {
		return nil, err
	}
	if t.Err != nil {
		return nil, t.Err
	}
	events := t.Events
	if events == nil && t.Response != nil {
		events = stream.ResponseEvents(t.Response)
	}

	ch := make(chan ai.RawEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			if t.Delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(t.Delay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return ch, nil
}

// Text scripts a turn answering with text and finish reason stop.
func Text(text string) Turn {
	return Turn{Response: &ai.GenerateResponse{
		Content:      []ai.ContentPart{ai.NewTextPart(text)},
		FinishReason: ai.FinishStop,
		Usage:        ai.Usage{InputTokens: ai.Tokens(10), OutputTokens: ai.Tokens(5)},
	}}
}

// ToolCalls scripts a turn requesting calls with finish reason tool-calls.
func ToolCalls(calls ...ai.ToolCall) Turn {
	content := make([]ai.ContentPart, len(calls))
	for i, c := range calls {
		content[i] = ai.NewToolCallPart(c)
	}
	return Turn{Response: &ai.GenerateResponse{
		Content:      content,
		FinishReason: ai.FinishToolCalls,
		Usage:        ai.Usage{InputTokens: ai.Tokens(10), OutputTokens: ai.Tokens(5)},
	}}
}

// Fail scripts a turn failing with err before the call starts.
func Fail(err error) Turn {
	return Turn{Err: err}
}

// Call builds a tool call with input marshaled from v.
func Call(id, name string, v any) ai.ToolCall {
	input, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return ai.ToolCall{ID: id, Name: name, Input: input}
}
