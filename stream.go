package loom

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// RawEventType identifies a vendor-normalized stream event.
type RawEventType string

const (
	// RawTextDelta carries a text fragment for the block at Index.
	RawTextDelta RawEventType = "text-delta"
	// RawReasoningDelta carries a reasoning fragment for the block at Index.
	RawReasoningDelta RawEventType = "reasoning-delta"
	// RawToolCallDelta carries a fragment of tool input for the call at
	// Index. ID and ToolName are set on the first delta of a call.
	RawToolCallDelta RawEventType = "tool-call-delta"
	// RawToolCall carries a complete tool call in one event.
	RawToolCall RawEventType = "tool-call"
	// RawBlockEnd marks the block at Index as complete.
	RawBlockEnd RawEventType = "block-end"
	// RawToolResult carries a result of a provider-executed tool.
	RawToolResult RawEventType = "tool-result"
	// RawResponseMetadata carries response identification.
	RawResponseMetadata RawEventType = "response-metadata"
	// RawFinish ends the stream with a finish reason and usage.
	RawFinish RawEventType = "finish"
	// RawError reports an error from the provider.
	RawError RawEventType = "error"
	// RawChunk forwards an untouched vendor chunk.
	RawChunk RawEventType = "raw"
)

// RawEvent is one event of a vendor stream after the adapter normalized its
// framing. One RawEvent may decode to zero, one or many StreamParts.
type RawEvent struct {
	Type RawEventType
	// Index identifies the vendor content block or tool call slot.
	Index        int
	ID           string
	ToolName     string
	Delta        string
	Input        json.RawMessage
	ToolResult   *ToolResult
	Response     *ResponseMetadata
	FinishReason FinishReason
	Usage        Usage
	Err          error
	Raw          any
}

// PartType identifies a decoded stream part.
type PartType string

const (
	PartTextStart        PartType = "text-start"
	PartTextDelta        PartType = "text-delta"
	PartTextEnd          PartType = "text-end"
	PartReasoningStart   PartType = "reasoning-start"
	PartReasoningDelta   PartType = "reasoning-delta"
	PartReasoningEnd     PartType = "reasoning-end"
	PartToolCallStart    PartType = "tool-call-start"
	PartToolInputDelta   PartType = "tool-input-delta"
	PartToolCallEnd      PartType = "tool-call-end"
	PartToolResult       PartType = "tool-result"
	PartResponseMetadata PartType = "response-metadata"
	PartFinish           PartType = "finish"
	PartError            PartType = "error"
	PartRaw              PartType = "raw"
)

// StreamPart is one normalized unit of incremental output.
//
// Every delta for an id is preceded by its start part and followed by its
// end part before the stream ends or moves to another id. A part of type
// PartError is always the last part of a stream.
type StreamPart struct {
	Type     PartType `json:"type"`
	ID       string   `json:"id,omitempty"`
	ToolName string   `json:"toolName,omitempty"`
	Delta    string   `json:"delta,omitempty"`
	// Partial is the best-effort value of the tool input received so far.
	Partial *PartialObject `json:"partial,omitempty"`
	// Input is the strictly parsed tool input on PartToolCallEnd.
	Input        json.RawMessage   `json:"input,omitempty"`
	ToolResult   *ToolResult       `json:"toolResult,omitempty"`
	Response     *ResponseMetadata `json:"response,omitempty"`
	FinishReason FinishReason      `json:"finishReason,omitempty"`
	Usage        Usage             `json:"usage,omitzero"`
	Err          error             `json:"-"`
	Raw          any               `json:"raw,omitempty"`
}

// ToolCall returns the tool call described by a PartToolCallEnd part.
func (p StreamPart) ToolCall() ToolCall {
	return ToolCall{ID: p.ID, Name: p.ToolName, Input: p.Input}
}

// PartialObject is a syntactically valid reconstruction of an in-progress
// JSON value.
type PartialObject struct {
	// Raw is the repaired JSON text.
	Raw string `json:"raw"`
	// Value is Raw decoded into generic Go values.
	Value any `json:"value"`
}

// Get returns the value at a gjson path, e.g. "location.city".
func (p *PartialObject) Get(path string) gjson.Result {
	if p == nil {
		return gjson.Result{}
	}
	return gjson.Get(p.Raw, path)
}
