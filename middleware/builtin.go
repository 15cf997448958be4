package middleware

import (
	"context"
	"log/slog"
	"maps"
	"time"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/stream"
)

type defaultSettings struct {
	Base
	defaults ai.CallOptions
}

// DefaultSettings fills in call options the caller left unset. Values set
// on the call win; headers and provider options are merged key by key.
func DefaultSettings(defaults ai.CallOptions) Middleware {
	return defaultSettings{defaults: defaults.Clone()}
}

func (m defaultSettings) TransformParams(_ context.Context, _ CallType, opts ai.CallOptions, _ ai.LanguageModel) (ai.CallOptions, error) {
	return Merge(m.defaults, opts), nil
}

// Merge returns call with every unset field taken from base.
func Merge(base, call ai.CallOptions) ai.CallOptions {
	out := call.Clone()
	if len(out.Messages) == 0 {
		out.Messages = base.Messages
	}
	if out.Tools == nil {
		out.Tools = base.Tools
	}
	if out.ToolChoice == "" {
		out.ToolChoice = base.ToolChoice
	}
	out.MaxOutputTokens = firstSet(out.MaxOutputTokens, base.MaxOutputTokens)
	out.Temperature = firstSet(out.Temperature, base.Temperature)
	out.TopP = firstSet(out.TopP, base.TopP)
	out.TopK = firstSet(out.TopK, base.TopK)
	out.PresencePenalty = firstSet(out.PresencePenalty, base.PresencePenalty)
	out.FrequencyPenalty = firstSet(out.FrequencyPenalty, base.FrequencyPenalty)
	out.Seed = firstSet(out.Seed, base.Seed)
	if out.StopSequences == nil {
		out.StopSequences = base.StopSequences
	}
	if out.ResponseFormat == nil {
		out.ResponseFormat = base.ResponseFormat
	}
	out.IncludeRawChunks = out.IncludeRawChunks || base.IncludeRawChunks
	out.Headers = mergeMaps(base.Headers, out.Headers)
	out.ProviderOptions = mergeMaps(base.ProviderOptions, out.ProviderOptions)
	return out
}

func firstSet[T any](call, base *T) *T {
	if call != nil {
		return call
	}
	return base
}

func mergeMaps[V any](base, call map[string]V) map[string]V {
	if len(base) == 0 {
		return call
	}
	merged := maps.Clone(base)
	maps.Copy(merged, call)
	return merged
}

type simulateStreaming struct {
	Base
}

// SimulateStreaming serves Stream calls from Generate. The complete
// response is replayed as a raw event stream.
func SimulateStreaming() Middleware {
	return simulateStreaming{}
}

func (simulateStreaming) WrapStream(ctx context.Context, generate GenerateFunc, _ StreamFunc, _ ai.CallOptions, _ ai.LanguageModel) (<-chan ai.RawEvent, error) {
	resp, err := generate(ctx)
	if err != nil {
		return nil, err
	}
	return stream.Events(ctx, resp), nil
}

type forceModelID struct {
	Base
	id string
}

// ForceModelID reports id as the model id.
func ForceModelID(id string) Middleware {
	return forceModelID{id: id}
}

func (m forceModelID) OverrideModelID(ai.LanguageModel) (string, bool) {
	return m.id, true
}

type forceProvider struct {
	Base
	provider string
}

// ForceProvider reports provider as the provider id.
func ForceProvider(provider string) Middleware {
	return forceProvider{provider: provider}
}

func (m forceProvider) OverrideProvider(ai.LanguageModel) (string, bool) {
	return m.provider, true
}

type logging struct {
	Base
	logger *slog.Logger
}

// Logging logs every call with its duration, finish reason and usage.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return logging{logger: logger}
}

func (m logging) WrapGenerate(ctx context.Context, generate GenerateFunc, _ StreamFunc, opts ai.CallOptions, model ai.LanguageModel) (*ai.GenerateResponse, error) {
	log := m.logger.With("provider", model.Provider(), "model", model.ModelID(), "call", CallGenerate)
	log.Debug("model call", "messages", len(opts.Messages), "tools", len(opts.Tools))

	start := time.Now()
	resp, err := generate(ctx)
	if err != nil {
		log.Warn("model call failed", "duration", time.Since(start), "error", err)
		return nil, err
	}
	log.Info("model call complete",
		"duration", time.Since(start),
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.Total(),
	)
	return resp, nil
}

func (m logging) WrapStream(ctx context.Context, _ GenerateFunc, next StreamFunc, opts ai.CallOptions, model ai.LanguageModel) (<-chan ai.RawEvent, error) {
	log := m.logger.With("provider", model.Provider(), "model", model.ModelID(), "call", CallStream)
	log.Debug("model call", "messages", len(opts.Messages), "tools", len(opts.Tools))

	start := time.Now()
	src, err := next(ctx)
	if err != nil {
		log.Warn("model call failed", "duration", time.Since(start), "error", err)
		return nil, err
	}

	out := make(chan ai.RawEvent)
	go func() {
		defer close(out)
		for ev := range src {
			switch ev.Type {
			case ai.RawFinish:
				log.Info("model stream complete",
					"duration", time.Since(start),
					"finish_reason", ev.FinishReason,
					"total_tokens", ev.Usage.Total(),
				)
			case ai.RawError:
				log.Warn("model stream failed", "duration", time.Since(start), "error", ev.Err)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				for range src {
				}
				return
			}
		}
	}()
	return out, nil
}
