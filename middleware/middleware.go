// Package middleware wraps a language model with an ordered list of
// interceptors.
//
// Wrap composes the chain once, at construction. The first registered
// middleware is the outermost layer: it transforms call parameters first
// and sees results last. Provider and model id overrides resolve
// outermost-wins. The wrapped value satisfies ai.LanguageModel, so callers
// cannot tell it from an unwrapped model.
package middleware

import (
	"context"

	ai "github.com/spetersoncode/loom"
)

// CallType tells TransformParams which call is being made.
type CallType string

const (
	CallGenerate CallType = "generate"
	CallStream   CallType = "stream"
)

// GenerateFunc calls the next layer's Generate with the transformed options.
type GenerateFunc func(ctx context.Context) (*ai.GenerateResponse, error)

// StreamFunc calls the next layer's Stream with the transformed options.
type StreamFunc func(ctx context.Context) (<-chan ai.RawEvent, error)

// Middleware intercepts model calls. Embed Base to implement only the hooks
// you need.
type Middleware interface {
	// OverrideProvider returns a provider id to report instead of the
	// wrapped model's.
	OverrideProvider(model ai.LanguageModel) (string, bool)

	// OverrideModelID returns a model id to report instead of the wrapped
	// model's.
	OverrideModelID(model ai.LanguageModel) (string, bool)

	// TransformParams rewrites the options before they reach inner layers.
	TransformParams(ctx context.Context, typ CallType, opts ai.CallOptions, model ai.LanguageModel) (ai.CallOptions, error)

	// WrapGenerate runs a Generate call. It may call generate, call stream
	// instead, or not delegate at all.
	WrapGenerate(ctx context.Context, generate GenerateFunc, stream StreamFunc, opts ai.CallOptions, model ai.LanguageModel) (*ai.GenerateResponse, error)

	// WrapStream runs a Stream call. It may call stream, call generate
	// instead, or not delegate at all.
	WrapStream(ctx context.Context, generate GenerateFunc, stream StreamFunc, opts ai.CallOptions, model ai.LanguageModel) (<-chan ai.RawEvent, error)
}

// Base passes everything through unchanged.
type Base struct{}

func (Base) OverrideProvider(ai.LanguageModel) (string, bool) { return "", false }
func (Base) OverrideModelID(ai.LanguageModel) (string, bool)  { return "", false }

func (Base) TransformParams(_ context.Context, _ CallType, opts ai.CallOptions, _ ai.LanguageModel) (ai.CallOptions, error) {
	return opts, nil
}

func (Base) WrapGenerate(ctx context.Context, generate GenerateFunc, _ StreamFunc, _ ai.CallOptions, _ ai.LanguageModel) (*ai.GenerateResponse, error) {
	return generate(ctx)
}

func (Base) WrapStream(ctx context.Context, _ GenerateFunc, stream StreamFunc, _ ai.CallOptions, _ ai.LanguageModel) (<-chan ai.RawEvent, error) {
	return stream(ctx)
}

// Wrap returns model wrapped by mws. With no middleware, model is returned
// unchanged.
func Wrap(model ai.LanguageModel, mws ...Middleware) ai.LanguageModel {
	for i := len(mws) - 1; i >= 0; i-- {
		model = newLayer(model, mws[i])
	}
	return model
}

// layer is one middleware applied around an inner model.
type layer struct {
	inner    ai.LanguageModel
	mw       Middleware
	provider string
	modelID  string
}

func newLayer(inner ai.LanguageModel, mw Middleware) *layer {
	l := &layer{inner: inner, mw: mw, provider: inner.Provider(), modelID: inner.ModelID()}
	if p, ok := mw.OverrideProvider(inner); ok {
		l.provider = p
	}
	if id, ok := mw.OverrideModelID(inner); ok {
		l.modelID = id
	}
	return l
}

func (l *layer) Provider() string { return l.provider }
func (l *layer) ModelID() string  { return l.modelID }

func (l *layer) Generate(ctx context.Context, opts ai.CallOptions) (*ai.GenerateResponse, error) {
	transformed, err := l.mw.TransformParams(ctx, CallGenerate, opts, l.inner)
	if err != nil {
		return nil, err
	}
	generate, stream := l.bind(transformed)
	return l.mw.WrapGenerate(ctx, generate, stream, transformed, l.inner)
}

func (l *layer) Stream(ctx context.Context, opts ai.CallOptions) (<-chan ai.RawEvent, error) {
	transformed, err := l.mw.TransformParams(ctx, CallStream, opts, l.inner)
	if err != nil {
		return nil, err
	}
	generate, stream := l.bind(transformed)
	return l.mw.WrapStream(ctx, generate, stream, transformed, l.inner)
}

func (l *layer) bind(opts ai.CallOptions) (GenerateFunc, StreamFunc) {
	generate := func(ctx context.Context) (*ai.GenerateResponse, error) {
		return l.inner.Generate(ctx, opts.Clone())
	}
	stream := func(ctx context.Context) (<-chan ai.RawEvent, error) {
		return l.inner.Stream(ctx, opts.Clone())
	}
	return generate, stream
}
