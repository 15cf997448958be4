package agui

import (
	"encoding/json"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/loom"
)

// Role constants matching AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ToMessages converts AG-UI messages to loom messages. Tool messages get
// their tool name from the assistant message that requested the call.
func ToMessages(msgs []events.Message) []ai.Message {
	result := make([]ai.Message, 0, len(msgs))
	names := make(map[string]string)
	for _, msg := range msgs {
		m := toMessage(msg, names)
		for _, tc := range m.ToolCalls() {
			names[tc.ID] = tc.Name
		}
		result = append(result, m)
	}
	return result
}

func toMessage(msg events.Message, names map[string]string) ai.Message {
	content := ""
	if msg.Content != nil {
		content = *msg.Content
	}

	var m ai.Message
	switch msg.Role {
	case RoleSystem:
		m = ai.NewSystemMessage(content)
	case RoleAssistant:
		var parts []ai.ContentPart
		if content != "" {
			parts = append(parts, ai.NewTextPart(content))
		}
		for _, tc := range msg.ToolCalls {
			input := json.RawMessage(tc.Function.Arguments)
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			parts = append(parts, ai.NewToolCallPart(ai.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: input}))
		}
		m = ai.NewAssistantMessage(parts...)
	case RoleTool:
		id := ""
		if msg.ToolCallID != nil {
			id = *msg.ToolCallID
		}
		m = ai.NewToolMessage(ai.ToolResult{ToolCallID: id, ToolName: names[id], Output: toolOutput(content)})
	default:
		m = ai.NewUserText(content)
	}
	if msg.ID != "" {
		m.ID = msg.ID
	}
	return m
}

// toolOutput keeps JSON content as is and quotes plain text.
func toolOutput(content string) json.RawMessage {
	if content != "" && json.Valid([]byte(content)) {
		return json.RawMessage(content)
	}
	out, _ := json.Marshal(content)
	return out
}

// FromMessages converts loom messages to AG-UI messages, for example for a
// MESSAGES_SNAPSHOT event. A tool message becomes one AG-UI message per
// result. Reasoning and file content have no AG-UI form and are dropped.
func FromMessages(msgs []ai.Message) []events.Message {
	result := make([]events.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == ai.RoleTool {
			for _, tr := range msg.ToolResults() {
				id := tr.ToolCallID
				content := tr.OutputText()
				result = append(result, events.Message{
					ID:         events.GenerateMessageID(),
					Role:       RoleTool,
					Content:    &content,
					ToolCallID: &id,
				})
			}
			continue
		}
		result = append(result, fromMessage(msg))
	}
	return result
}

func fromMessage(msg ai.Message) events.Message {
	m := events.Message{
		ID:   msg.ID,
		Role: fromRole(msg.Role),
	}
	if m.ID == "" {
		m.ID = events.GenerateMessageID()
	}
	if text := msg.Text(); text != "" {
		m.Content = &text
	}
	for _, tc := range msg.ToolCalls() {
		m.ToolCalls = append(m.ToolCalls, events.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: events.Function{
				Name:      tc.Name,
				Arguments: string(tc.Input),
			},
		})
	}
	return m
}

func fromRole(role ai.Role) string {
	switch role {
	case ai.RoleAssistant:
		return RoleAssistant
	case ai.RoleSystem:
		return RoleSystem
	case ai.RoleTool:
		return RoleTool
	default:
		return RoleUser
	}
}
