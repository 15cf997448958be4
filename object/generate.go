package object

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/partialjson"
	"github.com/spetersoncode/loom/retry"
	"github.com/spetersoncode/loom/stream"
)

// Result is a generated object.
type Result struct {
	// Object is the JSON text of the value.
	Object json.RawMessage
	// Value is Object decoded into generic Go values.
	Value    any
	Response *ai.GenerateResponse
}

// Generate requests a JSON value from model and returns it once complete.
func Generate(ctx context.Context, model ai.LanguageModel, messages []ai.Message, opts ...Option) (*Result, error) {
	cfg := newConfig(opts)
	v, err := newValidator(cfg.schema)
	if err != nil {
		return nil, err
	}
	call, err := cfg.callOptions(messages)
	if err != nil {
		return nil, err
	}

	resp, err := retry.Do(ctx, cfg.retry, func() (*ai.GenerateResponse, error) {
		return model.Generate(ctx, call)
	}, retry.WithNotify(cfg.notify))
	if err != nil {
		return nil, err
	}

	obj, value, err := v.parse(resp.Text(), resp)
	if err != nil {
		return nil, err
	}
	return &Result{Object: obj, Value: value, Response: resp}, nil
}

// GenerateAs generates a value of type T using the schema reflected from T.
func GenerateAs[T any](ctx context.Context, model ai.LanguageModel, messages []ai.Message, opts ...Option) (T, *Result, error) {
	var zero T
	schema, err := SchemaFor[T]()
	if err != nil {
		return zero, nil, err
	}
	res, err := Generate(ctx, model, messages, append(opts, WithSchema(schema))...)
	if err != nil {
		return zero, nil, err
	}
	v, err := Into[T](res.Object)
	return v, res, err
}

func (c *config) notify(e retry.Event) {
	if e.Type == retry.EventRetrying {
		c.logger.Warn("retrying object generation", "attempt", e.Attempt, "delay", e.Delay, "error", e.Err)
	}
}

// PartType identifies a streamed object part.
type PartType string

const (
	// PartPartial carries a partial value that differs from the previous one.
	PartPartial PartType = "partial"
	// PartTextDelta carries a raw fragment of the output text.
	PartTextDelta PartType = "text-delta"
	// PartFinish carries the validated final value. It is the last part.
	PartFinish PartType = "finish"
	// PartError carries the failure. It is the last part.
	PartError PartType = "error"
)

// Part is one unit of a streamed object.
type Part struct {
	Type    PartType
	Partial *ai.PartialObject
	Delta   string
	// Object, Value and Response are set on PartFinish.
	Object   json.RawMessage
	Value    any
	Response *ai.GenerateResponse
	Err      error
}

// Stream requests a JSON value from model and streams partial values. The
// call is established before Stream returns, so establishment errors are
// returned directly. The channel ends with exactly one PartFinish or
// PartError part and is then closed. Callers must drain it or cancel ctx.
func Stream(ctx context.Context, model ai.LanguageModel, messages []ai.Message, opts ...Option) (<-chan Part, error) {
	cfg := newConfig(opts)
	v, err := newValidator(cfg.schema)
	if err != nil {
		return nil, err
	}
	call, err := cfg.callOptions(messages)
	if err != nil {
		return nil, err
	}

	raw, err := retry.DoStream(ctx, cfg.retry, func() (<-chan ai.RawEvent, error) {
		return model.Stream(ctx, call)
	}, retry.WithNotify(cfg.notify))
	if err != nil {
		return nil, err
	}
	parts := stream.NewDecoder(cfg.decoderOpts...).Decode(ctx, raw)

	out := make(chan Part)
	go func() {
		defer close(out)
		s := &streamer{ctx: ctx, out: out, validator: v, acc: stream.NewAccumulator()}
		s.run(parts)
	}()
	return out, nil
}

type streamer struct {
	ctx       context.Context
	out       chan<- Part
	validator *validator
	acc       *stream.Accumulator

	text strings.Builder
	last any
	seen bool
}

func (s *streamer) run(parts <-chan ai.StreamPart) {
	defer func() {
		for range parts {
		}
	}()

	for p := range parts {
		// Add fails only for error parts, which end the stream.
		if err := s.acc.Add(p); err != nil {
			s.send(Part{Type: PartError, Err: err})
			return
		}
		if p.Type == ai.PartTextDelta && !s.delta(p.Delta) {
			return
		}
	}
	if err := s.ctx.Err(); err != nil {
		s.send(Part{Type: PartError, Err: err})
		return
	}

	resp := s.acc.Response()
	obj, value, err := s.validator.parse(s.text.String(), resp)
	if err != nil {
		s.send(Part{Type: PartError, Err: err})
		return
	}
	s.send(Part{Type: PartFinish, Object: obj, Value: value, Response: resp})
}

// delta appends text and reports the partial value when it changed.
func (s *streamer) delta(d string) bool {
	if d == "" {
		return true
	}
	s.text.WriteString(d)
	if !s.send(Part{Type: PartTextDelta, Delta: d}) {
		return false
	}

	value, repaired, state := partialjson.Parse(s.text.String())
	if state != partialjson.Successful && state != partialjson.Repaired {
		return true
	}
	if s.seen && reflect.DeepEqual(value, s.last) {
		return true
	}
	s.last, s.seen = value, true
	return s.send(Part{Type: PartPartial, Partial: &ai.PartialObject{Raw: repaired, Value: value}})
}

func (s *streamer) send(p Part) bool {
	select {
	case s.out <- p:
		return true
	case <-s.ctx.Done():
		return false
	}
}
