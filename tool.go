package loom

import "encoding/json"

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`
	// Description explains what the tool does (helps the model decide when to use it).
	Description string `json:"description,omitempty"`
	// InputSchema is a JSON Schema object describing the tool input.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCall represents a request from the model to invoke a tool.
type ToolCall struct {
	// ID is unique within a step and used to match results.
	ID string `json:"id"`
	// Name is the name of the tool to invoke.
	Name string `json:"name"`
	// Input is the JSON input for the tool.
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the outcome of executing a tool call.
type ToolResult struct {
	// ToolCallID matches the ID from the corresponding ToolCall.
	ToolCallID string `json:"toolCallId"`
	// ToolName is the name of the tool that produced the result.
	ToolName string `json:"toolName"`
	// Output is the JSON value returned by the tool. For failures it holds
	// a JSON string with the error text so the model can react to it.
	Output json.RawMessage `json:"output,omitempty"`
	// IsError marks a failed execution.
	IsError bool `json:"isError,omitempty"`
	// ErrorKind classifies the failure (not-found, invalid-input, ...).
	ErrorKind string `json:"errorKind,omitempty"`
}

// OutputText returns the output as text: the unquoted value for JSON
// strings, the raw JSON otherwise.
func (r ToolResult) OutputText() string {
	var s string
	if err := json.Unmarshal(r.Output, &s); err == nil {
		return s
	}
	return string(r.Output)
}

// ToolChoice controls how the model uses tools. Any value other than the
// predefined constants names a specific tool the model must call.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide when to use tools (default).
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone disables tool use for the request.
	ToolChoiceNone ToolChoice = "none"
	// ToolChoiceRequired forces the model to use some tool.
	ToolChoiceRequired ToolChoice = "required"
)

// ForceTool returns a ToolChoice requiring the named tool.
func ForceTool(name string) ToolChoice {
	return ToolChoice(name)
}

// IsSpecific reports whether the choice names a single tool.
func (c ToolChoice) IsSpecific() bool {
	switch c {
	case "", ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		return false
	}
	return true
}
