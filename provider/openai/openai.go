// Package openai adapts the OpenAI chat completions API to loom.LanguageModel.
//
// Text and tool-call deltas are forwarded as raw events; tool-call argument
// fragments are keyed by the vendor's tool-call index. SDK errors become
// categorized *loom.UpstreamError values, honoring Retry-After.
//
//	model := openai.New(os.Getenv("OPENAI_API_KEY"), openai.GPT4o)
//	a := agent.New(model, registry)
//
// The SDK's own retries are disabled: retrying is the loop's job.
package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/internal/provider"
)

// ProviderID is the registry id of this adapter.
const ProviderID = string(ai.ProviderOpenAI)

// Common chat model ids.
const (
	GPT4o     = "gpt-4o"
	GPT4oMini = "gpt-4o-mini"
	GPT41     = "gpt-4.1"
	GPT5      = "gpt-5"
	GPT5Mini  = "gpt-5-mini"
	O4Mini    = "o4-mini"

	DefaultModel = GPT4o
)

// Model is an OpenAI chat model.
type Model struct {
	client  openai.Client
	modelID string
}

// Option configures the OpenAI adapter.
type Option func(*config)

type config struct {
	requestOptions []option.RequestOption
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
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

// WithRequestOptions passes SDK request options through.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) {
		c.requestOptions = append(c.requestOptions, opts...)
	}
}

// New creates an OpenAI model. An empty modelID selects DefaultModel.
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
		client:  openai.NewClient(reqOpts...),
		modelID: modelID,
	}
}

func (m *Model) Provider() string { return ProviderID }
func (m *Model) ModelID() string  { return m.modelID }

// Generate sends a conversation and returns the complete response.
func (m *Model) Generate(ctx context.Context, opts ai.CallOptions) (*ai.GenerateResponse, error) {
	params, warnings, err := m.params(opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Chat.Completions.New(ctx, params, headerOptions(opts)...)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ai.ProtocolError{Reason: "openai: response has no choices"}
	}

	choice := resp.Choices[0]
	var content []ai.ContentPart
	if choice.Message.Content != "" {
		content = append(content, ai.NewTextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		content = append(content, ai.NewToolCallPart(ai.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: provider.ToolInput(tc.Function.Arguments),
		}))
	}

	return &ai.GenerateResponse{
		Content:      content,
		FinishReason: finishReason(choice.FinishReason),
		Usage:        usage(resp.Usage),
		Warnings:     warnings,
		Response: ai.ResponseMetadata{
			ID:        resp.ID,
			ModelID:   resp.Model,
			Timestamp: time.Unix(resp.Created, 0),
		},
	}, nil
}

// Stream sends a conversation and returns its raw events. The call is
// established once the first chunk arrived, so connection failures are
// returned here rather than in-band.
func (m *Model) Stream(ctx context.Context, opts ai.CallOptions) (<-chan ai.RawEvent, error) {
	params, _, err := m.params(opts)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params, headerOptions(opts)...)
	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err == nil {
			err = &ai.ProtocolError{Reason: "openai: stream ended before the first chunk"}
		}
		return nil, wrapError(err)
	}

	ch := make(chan ai.RawEvent)
	go func() {
		defer close(ch)
		defer stream.Close()

		s := newChunkState(opts.IncludeRawChunks)
		for {
			for _, ev := range s.events(stream.Current()) {
				if !provider.Send(ctx, ch, ev) {
					return
				}
			}
			if !stream.Next() {
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

// wrapError categorizes an SDK error by HTTP status. Other errors, such as
// network failures, are returned unchanged for the retry classifier.
func wrapError(err error) error {
	var apiErr *openai.Error
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

var _ ai.LanguageModel = (*Model)(nil)
