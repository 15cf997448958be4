// Package stream decodes vendor-normalized raw events into the canonical
// StreamPart sequence.
//
// A Decoder runs as a producer goroutine that feeds a bounded channel. The
// consumer stops the producer by cancelling the context passed to Decode;
// the producer observes cancellation at every send and receive and closes
// its output.
//
// Ordering guarantees:
//
//   - every delta for an id is preceded by its start part and followed by its
//     end part before the stream ends or moves on to another id
//   - ids are never reused within one Decoder
//   - an error part is always the last part; no end parts follow it
//   - text and reasoning deltas that arrive while a tool call's input is
//     open are held back and emitted after its end part
//   - the input deltas of a tool call concatenate to its final input; a call
//     with no input gets a single "{}" delta
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/partialjson"
)

const defaultBufferSize = 64

// Decoder converts raw events into stream parts. Generated ids come from a
// counter owned by the Decoder, so a Decoder shared across the steps of one
// session never repeats an id.
type Decoder struct {
	bufferSize int
	logger     *slog.Logger
	idPrefix   string
	seq        atomic.Int64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithBufferSize sets the capacity of the output channel.
func WithBufferSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.bufferSize = n
		}
	}
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithIDPrefix prepends prefix to every generated id.
func WithIDPrefix(prefix string) Option {
	return func(d *Decoder) {
		d.idPrefix = prefix
	}
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		bufferSize: defaultBufferSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) nextID(kind string) string {
	return fmt.Sprintf("%s%s-%d", d.idPrefix, kind, d.seq.Add(1))
}

// Decode starts decoding src and returns the part channel. The channel is
// closed after a finish part, after an error part, when src is closed, or
// when ctx is cancelled. Events that src sends after the stream ended are
// drained and discarded until src closes or ctx is cancelled.
func (d *Decoder) Decode(ctx context.Context, src <-chan ai.RawEvent) <-chan ai.StreamPart {
	out := make(chan ai.StreamPart, d.bufferSize)
	r := &run{
		d:     d,
		ctx:   ctx,
		out:   out,
		ended: make(map[string]bool),
	}
	go func() {
		defer drain(ctx, src)
		defer close(out)
		r.loop(src)
	}()
	return out
}

type blockKind uint8

const (
	kindText blockKind = iota + 1
	kindReasoning
	kindTool
)

// block is the content block currently open.
type block struct {
	kind  blockKind
	index int
	id    string
	name  string
	input strings.Builder
}

// run holds the state of one Decode call. It is owned by the producer
// goroutine.
type run struct {
	d     *Decoder
	ctx   context.Context
	out   chan<- ai.StreamPart
	open  *block
	ended map[string]bool
	// held collects content events that arrived while a tool call was open.
	held []ai.RawEvent
	// endedIndex tracks tool slots whose call ended, for providers that only
	// send the id on the first delta of a call.
	endedIndex map[int]string
}

func (r *run) loop(src <-chan ai.RawEvent) {
	for {
		var (
			ev ai.RawEvent
			ok bool
		)
		select {
		case <-r.ctx.Done():
			return
		case ev, ok = <-src:
		}
		if !ok {
			r.closeOpen()
			return
		}
		if !r.handle(ev) {
			return
		}
	}
}

// handle processes one event and reports whether decoding continues.
func (r *run) handle(ev ai.RawEvent) bool {
	switch ev.Type {
	case ai.RawTextDelta:
		return r.contentDelta(kindText, ev)

	case ai.RawReasoningDelta:
		return r.contentDelta(kindReasoning, ev)

	case ai.RawToolCallDelta:
		return r.toolDelta(ev)

	case ai.RawToolCall:
		return r.toolCall(ev)

	case ai.RawBlockEnd:
		switch {
		case r.open == nil:
		case r.open.index == ev.Index:
			return r.end()
		case r.open.kind == kindTool && len(r.held) > 0:
			r.held = append(r.held, ev)
		}
		return true

	case ai.RawToolResult:
		if ev.ToolResult == nil {
			return r.fail(&ai.ProtocolError{Reason: "tool result event without result"})
		}
		if !r.closeOpen() {
			return false
		}
		return r.send(ai.StreamPart{
			Type:       ai.PartToolResult,
			ID:         ev.ToolResult.ToolCallID,
			ToolName:   ev.ToolResult.ToolName,
			ToolResult: ev.ToolResult,
		})

	case ai.RawResponseMetadata:
		return r.send(ai.StreamPart{Type: ai.PartResponseMetadata, Response: ev.Response})

	case ai.RawFinish:
		if !r.closeOpen() {
			return false
		}
		finish := ev.FinishReason
		if finish == "" {
			finish = ai.FinishUnknown
		}
		r.send(ai.StreamPart{Type: ai.PartFinish, FinishReason: finish, Usage: ev.Usage})
		return false

	case ai.RawError:
		r.fail(upstreamError(ev))
		return false

	case ai.RawChunk:
		return r.send(ai.StreamPart{Type: ai.PartRaw, Raw: ev.Raw})

	default:
		return r.fail(&ai.ProtocolError{Reason: fmt.Sprintf("unknown event type %q", ev.Type)})
	}
}

func (r *run) contentDelta(kind blockKind, ev ai.RawEvent) bool {
	if ev.Delta == "" {
		return true
	}
	if r.open != nil && r.open.kind == kindTool {
		r.held = append(r.held, ev)
		return true
	}
	if r.open == nil || r.open.kind != kind || r.open.index != ev.Index {
		if !r.closeOpen() {
			return false
		}
		prefix, start := "txt", ai.PartTextStart
		if kind == kindReasoning {
			prefix, start = "rsn", ai.PartReasoningStart
		}
		r.open = &block{kind: kind, index: ev.Index, id: r.d.nextID(prefix)}
		if !r.send(ai.StreamPart{Type: start, ID: r.open.id}) {
			return false
		}
	}
	delta := ai.PartTextDelta
	if kind == kindReasoning {
		delta = ai.PartReasoningDelta
	}
	return r.send(ai.StreamPart{Type: delta, ID: r.open.id, Delta: ev.Delta})
}

func (r *run) toolDelta(ev ai.RawEvent) bool {
	if ev.ID != "" && r.ended[ev.ID] {
		return r.fail(&ai.ProtocolError{ID: ev.ID, Reason: "delta for ended tool call"})
	}

	continues := r.open != nil && r.open.kind == kindTool && r.open.index == ev.Index &&
		(ev.ID == "" || ev.ID == r.open.id)
	if !continues {
		if ev.ID == "" {
			if id, ok := r.endedIndex[ev.Index]; ok {
				return r.fail(&ai.ProtocolError{ID: id, Reason: "delta for ended tool call"})
			}
		}
		if ev.ToolName == "" {
			return r.fail(&ai.ProtocolError{ID: ev.ID, Reason: "tool call delta without tool name"})
		}
		if !r.closeOpen() {
			return false
		}
		id := ev.ID
		if id == "" {
			id = r.d.nextID("call")
		}
		r.open = &block{kind: kindTool, index: ev.Index, id: id, name: ev.ToolName}
		if !r.send(ai.StreamPart{Type: ai.PartToolCallStart, ID: id, ToolName: ev.ToolName}) {
			return false
		}
	}

	if ev.Delta == "" {
		return true
	}
	b := r.open
	b.input.WriteString(ev.Delta)
	return r.send(ai.StreamPart{
		Type:     ai.PartToolInputDelta,
		ID:       b.id,
		ToolName: b.name,
		Delta:    ev.Delta,
		Partial:  partial(b.input.String()),
	})
}

// toolCall handles a tool call delivered in one event. It is decoded as a
// start, a single input delta and an end.
func (r *run) toolCall(ev ai.RawEvent) bool {
	if ev.ID != "" && r.ended[ev.ID] {
		return r.fail(&ai.ProtocolError{ID: ev.ID, Reason: "duplicate tool call"})
	}
	if ev.ToolName == "" {
		return r.fail(&ai.ProtocolError{ID: ev.ID, Reason: "tool call without tool name"})
	}
	if !r.closeOpen() {
		return false
	}
	id := ev.ID
	if id == "" {
		id = r.d.nextID("call")
	}
	r.open = &block{kind: kindTool, index: ev.Index, id: id, name: ev.ToolName}
	if !r.send(ai.StreamPart{Type: ai.PartToolCallStart, ID: id, ToolName: ev.ToolName}) {
		return false
	}
	if len(ev.Input) > 0 {
		text := string(ev.Input)
		r.open.input.WriteString(text)
		if !r.send(ai.StreamPart{
			Type:     ai.PartToolInputDelta,
			ID:       id,
			ToolName: ev.ToolName,
			Delta:    text,
			Partial:  partial(text),
		}) {
			return false
		}
	}
	return r.closeOpen()
}

// closeOpen ends the open block and any block opened by replaying held
// events, so that nothing is open on return.
func (r *run) closeOpen() bool {
	for r.open != nil {
		if !r.end() {
			return false
		}
	}
	return true
}

// end emits the end part of the open block, if any. Ending a tool call
// replays the events held while it was open.
func (r *run) end() bool {
	b := r.open
	if b == nil {
		return true
	}
	r.open = nil

	switch b.kind {
	case kindText:
		return r.send(ai.StreamPart{Type: ai.PartTextEnd, ID: b.id})
	case kindReasoning:
		return r.send(ai.StreamPart{Type: ai.PartReasoningEnd, ID: b.id})
	}

	r.ended[b.id] = true
	if r.endedIndex == nil {
		r.endedIndex = make(map[int]string)
	}
	r.endedIndex[b.index] = b.id

	text := b.input.String()
	if strings.TrimSpace(text) == "" {
		if !r.send(ai.StreamPart{
			Type:     ai.PartToolInputDelta,
			ID:       b.id,
			ToolName: b.name,
			Delta:    "{}",
			Partial:  partial("{}"),
		}) {
			return false
		}
		text += "{}"
	}
	if !json.Valid([]byte(text)) {
		return r.fail(&ai.ProtocolError{ID: b.id, Reason: "tool input is not valid JSON"})
	}
	if !r.send(ai.StreamPart{
		Type:     ai.PartToolCallEnd,
		ID:       b.id,
		ToolName: b.name,
		Input:    json.RawMessage(text),
	}) {
		return false
	}

	held := r.held
	r.held = nil
	for _, ev := range held {
		if !r.handle(ev) {
			return false
		}
	}
	return true
}

// fail emits an error part. It always reports false.
func (r *run) fail(err error) bool {
	r.open = nil
	r.held = nil
	r.d.logger.Debug("stream decode failed", "error", err)
	r.send(ai.StreamPart{Type: ai.PartError, Err: err})
	return false
}

func (r *run) send(p ai.StreamPart) bool {
	select {
	case <-r.ctx.Done():
		return false
	case r.out <- p:
		return true
	}
}

func partial(text string) *ai.PartialObject {
	v, repaired, state := partialjson.Parse(text)
	if state != partialjson.Successful && state != partialjson.Repaired {
		return nil
	}
	return &ai.PartialObject{Raw: repaired, Value: v}
}

func upstreamError(ev ai.RawEvent) error {
	if _, ok := ai.CategoryOf(ev.Err); ok {
		return ev.Err
	}
	msg := ev.Delta
	if msg == "" {
		msg = "stream error"
	}
	return ai.NewUpstreamError(ai.ErrorPermanent, msg, 0, ev.Err)
}

func drain(ctx context.Context, src <-chan ai.RawEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-src:
			if !ok {
				return
			}
		}
	}
}
