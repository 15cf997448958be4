// Package anthropic adapts the Anthropic Messages API to loom.LanguageModel.
//
// Content blocks map to raw events by their block index: text deltas,
// thinking deltas and tool_use input fragments. JSON output is requested
// through a synthetic tool whose input is surfaced as text.
//
//	model := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), anthropic.ClaudeSonnet45)
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/internal/provider"
)

// ProviderID is the registry id of this adapter.
const ProviderID = string(ai.ProviderAnthropic)

// Model ids.
const (
	ClaudeOpus45   = "claude-opus-4-5"
	ClaudeSonnet45 = "claude-sonnet-4-5"
	ClaudeHaiku45  = "claude-haiku-4-5"

	DefaultModel = ClaudeSonnet45
)

// ThinkingBudget is the provider option key enabling extended thinking with
// the given token budget.
const ThinkingBudget = "anthropic.thinkingBudget"

// defaultMaxTokens is sent when the caller sets no limit; the API requires one.
const defaultMaxTokens = 4096

// Model is an Anthropic chat model.
type Model struct {
	client  anthropic.Client
	modelID string
}

// Option configures the Anthropic adapter.
type Option func(*config)

type config struct {
	requestOptions []option.RequestOption
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.requestOptions = append(c.requestOptions, option.WithBaseURL(url))
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.requestOptions = append(c.requestOptions, option.WithHTTPClient(hc))
	}
}

// New creates an Anthropic model. An empty modelID selects DefaultModel.
func New(apiKey, modelID string, opts ...Option) *Model {
	if modelID == "" {
		modelID = DefaultModel
	}
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, cfg.requestOptions...)

	return &Model{
		client:  anthropic.NewClient(reqOpts...),
		modelID: modelID,
	}
}

func (m *Model) Provider() string { return ProviderID }
func (m *Model) ModelID() string  { return m.modelID }

// Generate sends a conversation and returns the complete response.
func (m *Model) Generate(ctx context.Context, opts ai.CallOptions) (*ai.GenerateResponse, error) {
	req, err := m.request(opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Messages.New(ctx, req.params, headerOptions(opts)...)
	if err != nil {
		return nil, wrapError(err)
	}

	var content []ai.ContentPart
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				content = append(content, ai.NewTextPart(block.Text))
			}
		case "thinking":
			if block.Thinking != "" {
				content = append(content, ai.NewReasoningPart(block.Thinking))
			}
		case "tool_use":
			if req.jsonMode && block.Name == jsonToolName {
				content = append(content, ai.NewTextPart(string(block.Input)))
				continue
			}
			content = append(content, ai.NewToolCallPart(ai.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: provider.ToolInput(string(block.Input)),
			}))
		}
	}

	calls := ai.Message{Content: content}.ToolCalls()
	return &ai.GenerateResponse{
		Content:      content,
		FinishReason: finishReason(string(resp.StopReason), len(calls) > 0),
		Usage:        usage(resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.CacheReadInputTokens),
		Warnings:     req.warnings,
		Response: ai.ResponseMetadata{
			ID:        resp.ID,
			ModelID:   string(resp.Model),
			Timestamp: time.Now(),
		},
	}, nil
}

// Stream sends a conversation and returns its raw events. Connection and
// status failures surface from Stream itself.
func (m *Model) Stream(ctx context.Context, opts ai.CallOptions) (<-chan ai.RawEvent, error) {
	req, err := m.request(opts)
	if err != nil {
		return nil, err
	}

	stream := m.client.Messages.NewStreaming(ctx, req.params, headerOptions(opts)...)
	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err == nil {
			err = &ai.ProtocolError{Reason: "anthropic: stream ended before the first event"}
		}
		return nil, wrapError(err)
	}

	ch := make(chan ai.RawEvent)
	go func() {
		defer close(ch)
		defer stream.Close()

		s := newEventState(opts.IncludeRawChunks, req.jsonMode)
		for {
			for _, ev := range s.events(stream.Current()) {
				if !provider.Send(ctx, ch, ev) {
					return
				}
			}
			if s.done || !stream.Next() {
				break
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() == nil {
				provider.Send(ctx, ch, ai.RawEvent{Type: ai.RawError, Err: wrapError(err)})
			}
			return
		}
		provider.Send(ctx, ch, s.finish())
	}()
	return ch, nil
}

// wrapError categorizes an SDK error by HTTP status. Other errors pass
// through for the retry classifier.
func wrapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	var header http.Header
	if apiErr.Response != nil {
		header = apiErr.Response.Header
	}
	return provider.StatusError(err, apiErr.StatusCode, header)
}

func headerOptions(opts ai.CallOptions) []option.RequestOption {
	var reqOpts []option.RequestOption
	for k, v := range opts.Headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}
	return reqOpts
}

func usage(input, output, cached int64) ai.Usage {
	u := ai.Usage{
		InputTokens:  provider.Tokens(input),
		OutputTokens: provider.Tokens(output),
		TotalTokens:  provider.Tokens(input + output),
	}
	if cached > 0 {
		u.CachedInputTokens = provider.Tokens(cached)
	}
	return u
}

// finishReason maps a stop reason. tool_use without a real tool call comes
// from the JSON tool and counts as a normal stop.
func finishReason(r string, toolCalls bool) ai.FinishReason {
	switch r {
	case "end_turn", "stop_sequence":
		return ai.FinishStop
	case "max_tokens":
		return ai.FinishLength
	case "tool_use":
		if toolCalls {
			return ai.FinishToolCalls
		}
		return ai.FinishStop
	case "refusal":
		return ai.FinishContentFilter
	case "":
		return ai.FinishUnknown
	default:
		return ai.FinishOther
	}
}

var _ ai.LanguageModel = (*Model)(nil)
