// Package google adapts the Gemini API (google.golang.org/genai) to
// loom.LanguageModel.
//
// Gemini returns whole function calls rather than argument fragments, so each
// call becomes a single RawToolCall event. Thought parts become reasoning.
// Tool results are sent back as function responses matched by name.
package google

import (
	"context"
	"errors"
	"iter"
	"net/http"

	"google.golang.org/genai"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/internal/provider"
)

// ProviderID is the registry id of this adapter.
const ProviderID = string(ai.ProviderGoogle)

// Model ids.
const (
	Gemini25Pro       = "gemini-2.5-pro"
	Gemini25Flash     = "gemini-2.5-flash"
	Gemini25FlashLite = "gemini-2.5-flash-lite"

	DefaultModel = Gemini25Flash
)

// ThinkingBudget is the provider option key that enables thought summaries
// with the given token budget.
const ThinkingBudget = "google.thinkingBudget"

// Block indices of the raw events. Function calls follow after these.
const (
	textIndex = iota
	reasoningIndex
	firstToolIndex
)

// Model is a Gemini chat model.
type Model struct {
	client  *genai.Client
	modelID string
}

// Option configures the Google adapter.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = url
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPClient = hc
	}
}

// New creates a Gemini model. An empty modelID selects DefaultModel.
func New(ctx context.Context, apiKey, modelID string, opts ...Option) (*Model, error) {
	if modelID == "" {
		modelID = DefaultModel
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Model{client: client, modelID: modelID}, nil
}

func (m *Model) Provider() string { return ProviderID }
func (m *Model) ModelID() string  { return m.modelID }

// Generate sends a conversation and returns the complete response.
func (m *Model) Generate(ctx context.Context, opts ai.CallOptions) (*ai.GenerateResponse, error) {
	contents, config, warnings, err := m.request(opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.modelID, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	if err := blocked(resp); err != nil {
		return nil, err
	}

	var content []ai.ContentPart
	finish := ai.FinishUnknown
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					content = append(content, ai.NewToolCallPart(toolCall(part.FunctionCall)))
				case part.Thought && part.Text != "":
					content = append(content, ai.NewReasoningPart(part.Text))
				case part.Text != "":
					content = append(content, ai.NewTextPart(part.Text))
				}
			}
		}
		finish = finishReason(cand.FinishReason, len(ai.Message{Content: content}.ToolCalls()) > 0)
	}

	return &ai.GenerateResponse{
		Content:      content,
		FinishReason: finish,
		Usage:        usage(resp.UsageMetadata),
		Warnings:     warnings,
		Response:     metadata(resp),
	}, nil
}

// Stream sends a conversation and returns its raw events. The first
// response is awaited before returning so request failures surface here.
func (m *Model) Stream(ctx context.Context, opts ai.CallOptions) (<-chan ai.RawEvent, error) {
	contents, config, _, err := m.request(opts)
	if err != nil {
		return nil, err
	}

	next, stop := iter.Pull2(m.client.Models.GenerateContentStream(ctx, m.modelID, contents, config))
	first, err, ok := next()
	if !ok {
		stop()
		return nil, &ai.ProtocolError{Reason: "google: stream ended before the first response"}
	}
	if err != nil {
		stop()
		return nil, wrapError(err)
	}

	ch := make(chan ai.RawEvent)
	go func() {
		defer close(ch)
		defer stop()

		s := &chunkState{raw: opts.IncludeRawChunks, nextTool: firstToolIndex}
		resp := first
		for {
			if err := blocked(resp); err != nil {
				provider.Send(ctx, ch, ai.RawEvent{Type: ai.RawError, Err: err})
				return
			}
			for _, ev := range s.events(resp) {
				if !provider.Send(ctx, ch, ev) {
					return
				}
			}
			var ok bool
			resp, err, ok = next()
			if !ok {
				break
			}
			if err != nil {
				if ctx.Err() == nil {
					provider.Send(ctx, ch, ai.RawEvent{Type: ai.RawError, Err: wrapError(err)})
				}
				return
			}
		}
		provider.Send(ctx, ch, s.finish())
	}()
	return ch, nil
}

type chunkState struct {
	raw      bool
	metaSent bool
	nextTool int
	sawTool  bool
	reason   genai.FinishReason
	usage    ai.Usage
}

func (s *chunkState) events(resp *genai.GenerateContentResponse) []ai.RawEvent {
	var out []ai.RawEvent
	if s.raw {
		out = append(out, ai.RawEvent{Type: ai.RawChunk, Raw: resp})
	}
	if !s.metaSent {
		s.metaSent = true
		meta := metadata(resp)
		out = append(out, ai.RawEvent{Type: ai.RawResponseMetadata, Response: &meta})
	}
	if resp.UsageMetadata != nil {
		s.usage = usage(resp.UsageMetadata)
	}
	if len(resp.Candidates) == 0 {
		return out
	}

	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				tc := toolCall(part.FunctionCall)
				s.sawTool = true
				out = append(out, ai.RawEvent{
					Type:     ai.RawToolCall,
					Index:    s.nextTool,
					ID:       tc.ID,
					ToolName: tc.Name,
					Input:    tc.Input,
				})
				s.nextTool++
			case part.Thought && part.Text != "":
				out = append(out, ai.RawEvent{Type: ai.RawReasoningDelta, Index: reasoningIndex, Delta: part.Text})
			case part.Text != "":
				out = append(out, ai.RawEvent{Type: ai.RawTextDelta, Index: textIndex, Delta: part.Text})
			}
		}
	}
	if cand.FinishReason != "" {
		s.reason = cand.FinishReason
	}
	return out
}

func (s *chunkState) finish() ai.RawEvent {
	return ai.RawEvent{Type: ai.RawFinish, FinishReason: finishReason(s.reason, s.sawTool), Usage: s.usage}
}

// blocked reports a prompt rejected by safety filters.
func blocked(resp *genai.GenerateContentResponse) error {
	if resp == nil || resp.PromptFeedback == nil || resp.PromptFeedback.BlockReason == "" {
		return nil
	}
	return ai.NewUpstreamError(ai.ErrorContentFilter, "google: prompt blocked: "+string(resp.PromptFeedback.BlockReason), 0, nil)
}

// wrapError categorizes a genai API error by status code. The SDK does not
// expose response headers, so no Retry-After is available.
func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.StatusError(err, apiErr.Code, nil)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return provider.StatusError(err, apiErrPtr.Code, nil)
	}
	return err
}

func metadata(resp *genai.GenerateContentResponse) ai.ResponseMetadata {
	return ai.ResponseMetadata{
		ID:        resp.ResponseID,
		ModelID:   resp.ModelVersion,
		Timestamp: resp.CreateTime,
	}
}

func usage(u *genai.GenerateContentResponseUsageMetadata) ai.Usage {
	if u == nil {
		return ai.Usage{}
	}
	out := ai.Usage{
		InputTokens:  provider.Tokens(u.PromptTokenCount),
		OutputTokens: provider.Tokens(u.CandidatesTokenCount),
		TotalTokens:  provider.Tokens(u.TotalTokenCount),
	}
	if u.ThoughtsTokenCount > 0 {
		out.ReasoningTokens = provider.Tokens(u.ThoughtsTokenCount)
	}
	if u.CachedContentTokenCount > 0 {
		out.CachedInputTokens = provider.Tokens(u.CachedContentTokenCount)
	}
	return out
}

// finishReason maps a candidate finish reason. Gemini reports STOP when it
// calls functions, so tool calls take precedence.
func finishReason(r genai.FinishReason, toolCalls bool) ai.FinishReason {
	if toolCalls && (r == genai.FinishReasonStop || r == "") {
		return ai.FinishToolCalls
	}
	switch r {
	case genai.FinishReasonStop:
		return ai.FinishStop
	case genai.FinishReasonMaxTokens:
		return ai.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return ai.FinishContentFilter
	case genai.FinishReasonMalformedFunctionCall:
		return ai.FinishError
	case "":
		return ai.FinishUnknown
	default:
		return ai.FinishOther
	}
}

var _ ai.LanguageModel = (*Model)(nil)
