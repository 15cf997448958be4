package loom

import (
	"context"
	"time"
)

// LanguageModel is the capability every vendor adapter implements.
//
// Stream returns a channel of vendor-normalized raw events. The
// implementation closes the channel when the stream ends and stops sending
// once ctx is cancelled. Errors that occur after the stream started are
// delivered in-band as a RawError event.
type LanguageModel interface {
	Provider() string
	ModelID() string
	Generate(ctx context.Context, opts CallOptions) (*GenerateResponse, error)
	Stream(ctx context.Context, opts CallOptions) (<-chan RawEvent, error)
}

// Warning reports a call setting the provider ignored or adjusted.
type Warning struct {
	Type    string `json:"type"`
	Setting string `json:"setting,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResponseMetadata identifies the provider response.
type ResponseMetadata struct {
	ID        string    `json:"id,omitempty"`
	ModelID   string    `json:"modelId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// GenerateResponse is the complete output of a non-streaming model call.
type GenerateResponse struct {
	Content      []ContentPart    `json:"content"`
	FinishReason FinishReason     `json:"finishReason"`
	Usage        Usage            `json:"usage"`
	Warnings     []Warning        `json:"warnings,omitempty"`
	Response     ResponseMetadata `json:"response"`
}

// Text returns the concatenated text content.
func (r *GenerateResponse) Text() string {
	return joinParts(r.Content, ContentPartTypeText)
}

// ToolCalls returns the tool calls in declaration order.
func (r *GenerateResponse) ToolCalls() []ToolCall {
	return Message{Content: r.Content}.ToolCalls()
}

// StepResult is one full model round-trip within the tool loop.
type StepResult struct {
	// Step is the 1-based step number.
	Step         int              `json:"step"`
	Content      []ContentPart    `json:"content"`
	ToolResults  []ToolResult     `json:"toolResults,omitempty"`
	FinishReason FinishReason     `json:"finishReason"`
	Usage        Usage            `json:"usage"`
	Warnings     []Warning        `json:"warnings,omitempty"`
	Response     ResponseMetadata `json:"response"`
}

// Text returns the text the model produced during the step.
func (s StepResult) Text() string {
	return joinParts(s.Content, ContentPartTypeText)
}

// Reasoning returns the reasoning the model produced during the step.
func (s StepResult) Reasoning() string {
	return joinParts(s.Content, ContentPartTypeReasoning)
}

// ToolCalls returns the tool calls requested during the step.
func (s StepResult) ToolCalls() []ToolCall {
	return Message{Content: s.Content}.ToolCalls()
}
