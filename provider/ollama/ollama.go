// Package ollama adapts a local Ollama server to loom.LanguageModel.
//
// Ollama streams newline-delimited chat responses through a callback. Tool
// calls arrive whole, so each becomes a single RawToolCall event.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ollama/ollama/api"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/internal/provider"
)

// ProviderID is the registry id of this adapter.
const ProviderID = string(ai.ProviderOllama)

// DefaultHost is where Ollama listens by default.
const DefaultHost = "http://localhost:11434"

// Model ids known to support tool calling.
const (
	Llama31 = "llama3.1"
	Llama32 = "llama3.2"
	Qwen3   = "qwen3"
	Mistral = "mistral"

	DefaultModel = Llama31
)

// Think is the provider option key that enables thinking output on models
// that support it.
const Think = "ollama.think"

const (
	textIndex = iota
	reasoningIndex
	firstToolIndex
)

// Model is a chat model served by Ollama.
type Model struct {
	client  *api.Client
	modelID string
}

// Option configures the Ollama adapter.
type Option func(*config)

type config struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New creates an Ollama model. An empty host selects DefaultHost and an
// empty modelID selects DefaultModel.
func New(host, modelID string, opts ...Option) (*Model, error) {
	if host == "" {
		host = DefaultHost
	}
	if modelID == "" {
		modelID = DefaultModel
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", host, err)
	}
	cfg := &config{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Model{client: api.NewClient(base, cfg.httpClient), modelID: modelID}, nil
}

func (m *Model) Provider() string { return ProviderID }
func (m *Model) ModelID() string  { return m.modelID }

// Generate sends a conversation and returns the complete response.
func (m *Model) Generate(ctx context.Context, opts ai.CallOptions) (*ai.GenerateResponse, error) {
	req, warnings, err := m.request(opts, false)
	if err != nil {
		return nil, err
	}

	var final api.ChatResponse
	var content []ai.ContentPart
	err = m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		final = resp
		if resp.Message.Thinking != "" {
			content = append(content, ai.NewReasoningPart(resp.Message.Thinking))
		}
		if resp.Message.Content != "" {
			content = append(content, ai.NewTextPart(resp.Message.Content))
		}
		for _, tc := range resp.Message.ToolCalls {
			content = append(content, ai.NewToolCallPart(toolCall(tc)))
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err)
	}

	return &ai.GenerateResponse{
		Content:      content,
		FinishReason: finishReason(final.DoneReason, len(ai.Message{Content: content}.ToolCalls()) > 0),
		Usage:        usage(final),
		Warnings:     warnings,
		Response:     ai.ResponseMetadata{ModelID: final.Model, Timestamp: final.CreatedAt},
	}, nil
}

// Stream sends a conversation and returns its raw events. It returns once
// the first response line arrived or the request failed.
func (m *Model) Stream(ctx context.Context, opts ai.CallOptions) (<-chan ai.RawEvent, error) {
	req, _, err := m.request(opts, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan ai.RawEvent)
	started := make(chan error, 1)
	go func() {
		defer close(ch)

		var once sync.Once
		s := &chunkState{raw: opts.IncludeRawChunks, nextTool: firstToolIndex}
		err := m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			once.Do(func() { started <- nil })
			for _, ev := range s.events(resp) {
				if !provider.Send(ctx, ch, ev) {
					return ctx.Err()
				}
			}
			return nil
		})

		failedEarly := false
		once.Do(func() {
			failedEarly = err != nil
			started <- wrapError(err)
		})
		switch {
		case failedEarly:
		case err != nil:
			if ctx.Err() == nil {
				provider.Send(ctx, ch, ai.RawEvent{Type: ai.RawError, Err: wrapError(err)})
			}
		default:
			provider.Send(ctx, ch, s.finish())
		}
	}()

	if err := <-started; err != nil {
		return nil, err
	}
	return ch, nil
}

type chunkState struct {
	raw      bool
	metaSent bool
	nextTool int
	sawTool  bool
	final    api.ChatResponse
}

func (s *chunkState) events(resp api.ChatResponse) []ai.RawEvent {
	var out []ai.RawEvent
	if s.raw {
		out = append(out, ai.RawEvent{Type: ai.RawChunk, Raw: resp})
	}
	if !s.metaSent {
		s.metaSent = true
		out = append(out, ai.RawEvent{Type: ai.RawResponseMetadata, Response: &ai.ResponseMetadata{
			ModelID:   resp.Model,
			Timestamp: resp.CreatedAt,
		}})
	}
	if resp.Message.Thinking != "" {
		out = append(out, ai.RawEvent{Type: ai.RawReasoningDelta, Index: reasoningIndex, Delta: resp.Message.Thinking})
	}
	if resp.Message.Content != "" {
		out = append(out, ai.RawEvent{Type: ai.RawTextDelta, Index: textIndex, Delta: resp.Message.Content})
	}
	for _, tc := range resp.Message.ToolCalls {
		call := toolCall(tc)
		s.sawTool = true
		out = append(out, ai.RawEvent{
			Type:     ai.RawToolCall,
			Index:    s.nextTool,
			ToolName: call.Name,
			Input:    call.Input,
		})
		s.nextTool++
	}
	if resp.Done {
		s.final = resp
	}
	return out
}

func (s *chunkState) finish() ai.RawEvent {
	return ai.RawEvent{
		Type:         ai.RawFinish,
		FinishReason: finishReason(s.final.DoneReason, s.sawTool),
		Usage:        usage(s.final),
	}
}

// wrapError categorizes an Ollama status error. Connection failures pass
// through for the retry classifier.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return provider.StatusError(err, statusErr.StatusCode, nil)
	}
	var statusErrPtr *api.StatusError
	if errors.As(err, &statusErrPtr) {
		return provider.StatusError(err, statusErrPtr.StatusCode, nil)
	}
	return err
}

func toolCall(tc api.ToolCall) ai.ToolCall {
	input, err := json.Marshal(tc.Function.Arguments)
	if err != nil || string(input) == "null" {
		input = []byte("{}")
	}
	return ai.ToolCall{Name: tc.Function.Name, Input: input}
}

func usage(resp api.ChatResponse) ai.Usage {
	if !resp.Done {
		return ai.Usage{}
	}
	return ai.Usage{
		InputTokens:  provider.Tokens(resp.PromptEvalCount),
		OutputTokens: provider.Tokens(resp.EvalCount),
		TotalTokens:  provider.Tokens(resp.PromptEvalCount + resp.EvalCount),
	}
}

func finishReason(r string, toolCalls bool) ai.FinishReason {
	if toolCalls {
		return ai.FinishToolCalls
	}
	switch strings.ToLower(r) {
	case "stop":
		return ai.FinishStop
	case "length":
		return ai.FinishLength
	case "":
		return ai.FinishUnknown
	default:
		return ai.FinishOther
	}
}

var _ ai.LanguageModel = (*Model)(nil)
