package loom

import (
	"strings"

	"github.com/google/uuid"
)

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPartType identifies the variant held by a ContentPart.
type ContentPartType string

const (
	ContentPartTypeText       ContentPartType = "text"
	ContentPartTypeReasoning  ContentPartType = "reasoning"
	ContentPartTypeFile       ContentPartType = "file"
	ContentPartTypeToolCall   ContentPartType = "tool-call"
	ContentPartTypeToolResult ContentPartType = "tool-result"
	ContentPartTypeSource     ContentPartType = "source"
)

// ContentPart is a single piece of message content. Exactly one of the
// variant fields is meaningful, selected by Type.
type ContentPart struct {
	Type ContentPartType `json:"type"`
	// Text holds the text for text and reasoning parts.
	Text string `json:"text,omitempty"`
	// File holds inline or referenced media.
	File *File `json:"file,omitempty"`
	// ToolCall is set for tool-call parts.
	ToolCall *ToolCall `json:"toolCall,omitempty"`
	// ToolResult is set for tool-result parts.
	ToolResult *ToolResult `json:"toolResult,omitempty"`
	// Source is set for source (citation) parts.
	Source *Source `json:"source,omitempty"`
}

// File is media content attached to a message. Either Data or URL is set.
type File struct {
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// Source is a citation the model referenced while answering.
type Source struct {
	ID    string `json:"id"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// NewTextPart creates a text content part.
func NewTextPart(text string) ContentPart {
	return ContentPart{Type: ContentPartTypeText, Text: text}
}

// NewReasoningPart creates a reasoning content part.
func NewReasoningPart(text string) ContentPart {
	return ContentPart{Type: ContentPartTypeReasoning, Text: text}
}

// NewFilePart creates a file content part.
func NewFilePart(f File) ContentPart {
	return ContentPart{Type: ContentPartTypeFile, File: &f}
}

// NewToolCallPart creates a tool-call content part.
func NewToolCallPart(call ToolCall) ContentPart {
	return ContentPart{Type: ContentPartTypeToolCall, ToolCall: &call}
}

// NewToolResultPart creates a tool-result content part.
func NewToolResultPart(result ToolResult) ContentPart {
	return ContentPart{Type: ContentPartTypeToolResult, ToolResult: &result}
}

// NewSourcePart creates a source content part.
func NewSourcePart(src Source) ContentPart {
	return ContentPart{Type: ContentPartTypeSource, Source: &src}
}

// Message represents a single turn in a conversation.
//
// Messages are treated as values: once appended to a conversation they are
// never modified.
type Message struct {
	// ID is an optional unique identifier used for correlation.
	ID      string        `json:"id,omitempty"`
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// GenerateMessageID creates a unique message identifier.
func GenerateMessageID() string {
	return "msg-" + uuid.New().String()
}

// NewSystemMessage creates a system message with the given instructions.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{NewTextPart(text)}}
}

// NewUserMessage creates a user message from content parts.
func NewUserMessage(parts ...ContentPart) Message {
	return Message{Role: RoleUser, Content: parts}
}

// NewUserText creates a user message holding a single text part.
func NewUserText(text string) Message {
	return NewUserMessage(NewTextPart(text))
}

// NewAssistantMessage creates an assistant message from content parts.
func NewAssistantMessage(parts ...ContentPart) Message {
	return Message{ID: GenerateMessageID(), Role: RoleAssistant, Content: parts}
}

// NewToolMessage creates a tool message carrying results in the given order.
func NewToolMessage(results ...ToolResult) Message {
	parts := make([]ContentPart, len(results))
	for i, r := range results {
		parts[i] = NewToolResultPart(r)
	}
	return Message{ID: GenerateMessageID(), Role: RoleTool, Content: parts}
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	return joinParts(m.Content, ContentPartTypeText)
}

// Reasoning returns the concatenated reasoning parts of the message.
func (m Message) Reasoning() string {
	return joinParts(m.Content, ContentPartTypeReasoning)
}

// ToolCalls returns the tool calls in declaration order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Content {
		if p.Type == ContentPartTypeToolCall && p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

// ToolResults returns the tool results in order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Content {
		if p.Type == ContentPartTypeToolResult && p.ToolResult != nil {
			results = append(results, *p.ToolResult)
		}
	}
	return results
}

func joinParts(parts []ContentPart, typ ContentPartType) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == typ {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
