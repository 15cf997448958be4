package ollama

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"

	ai "github.com/spetersoncode/loom"
)

func (m *Model) request(opts ai.CallOptions, stream bool) (*api.ChatRequest, []ai.Warning, error) {
	msgs, err := convertMessages(opts.Messages)
	if err != nil {
		return nil, nil, err
	}
	req := &api.ChatRequest{
		Model:    m.modelID,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{},
	}
	var warnings []ai.Warning

	if opts.MaxOutputTokens != nil {
		req.Options["num_predict"] = *opts.MaxOutputTokens
	}
	if opts.Temperature != nil {
		req.Options["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		req.Options["top_p"] = *opts.TopP
	}
	if opts.TopK != nil {
		req.Options["top_k"] = *opts.TopK
	}
	if opts.Seed != nil {
		req.Options["seed"] = *opts.Seed
	}
	if opts.PresencePenalty != nil {
		req.Options["presence_penalty"] = *opts.PresencePenalty
	}
	if opts.FrequencyPenalty != nil {
		req.Options["frequency_penalty"] = *opts.FrequencyPenalty
	}
	if len(opts.StopSequences) > 0 {
		req.Options["stop"] = opts.StopSequences
	}
	if think, ok := opts.ProviderOptions[Think].(bool); ok {
		req.Think = &api.ThinkValue{Value: think}
	}

	if len(opts.Tools) > 0 && opts.ToolChoice != ai.ToolChoiceNone {
		tools, err := convertTools(opts.Tools)
		if err != nil {
			return nil, nil, err
		}
		req.Tools = tools
		if opts.ToolChoice == ai.ToolChoiceRequired || opts.ToolChoice.IsSpecific() {
			warnings = append(warnings, ai.Warning{
				Type:    "unsupported-setting",
				Setting: "toolChoice",
				Message: "ollama always lets the model choose",
			})
		}
	}

	if rf := opts.ResponseFormat; rf != nil && rf.Type == ai.ResponseFormatJSON {
		if len(rf.Schema) > 0 {
			req.Format = rf.Schema
		} else {
			req.Format = json.RawMessage(`"json"`)
		}
	}
	if len(opts.Headers) > 0 {
		warnings = append(warnings, ai.Warning{Type: "unsupported-setting", Setting: "headers"})
	}
	return req, warnings, nil
}

func convertMessages(messages []ai.Message) ([]api.Message, error) {
	var result []api.Message
	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleSystem:
			result = append(result, api.Message{Role: "system", Content: msg.Text()})
		case ai.RoleUser:
			m := api.Message{Role: "user", Content: msg.Text()}
			for _, part := range msg.Content {
				if part.Type != ai.ContentPartTypeFile || part.File == nil {
					continue
				}
				if !strings.HasPrefix(part.File.MediaType, "image/") || len(part.File.Data) == 0 {
					return nil, &ai.ConfigError{Field: "messages", Reason: "ollama accepts inline images only"}
				}
				m.Images = append(m.Images, api.ImageData(part.File.Data))
			}
			result = append(result, m)
		case ai.RoleAssistant:
			m := api.Message{Role: "assistant", Content: msg.Text(), Thinking: msg.Reasoning()}
			for _, tc := range msg.ToolCalls() {
				var call api.ToolCall
				call.Function.Name = tc.Name
				if len(tc.Input) > 0 {
					if err := json.Unmarshal(tc.Input, &call.Function.Arguments); err != nil {
						return nil, &ai.ConfigError{Field: "messages", Reason: fmt.Sprintf("tool call %s: %v", tc.ID, err)}
					}
				}
				m.ToolCalls = append(m.ToolCalls, call)
			}
			result = append(result, m)
		case ai.RoleTool:
			for _, tr := range msg.ToolResults() {
				result = append(result, api.Message{Role: "tool", Content: tr.OutputText(), ToolName: tr.ToolName})
			}
		default:
			return nil, &ai.ConfigError{Field: "messages", Reason: fmt.Sprintf("unknown role %q", msg.Role)}
		}
	}
	return result, nil
}

// convertTools decodes each definition through the API's own JSON shape so
// schema details survive without field-by-field mapping.
func convertTools(tools []ai.ToolDefinition) (api.Tools, error) {
	result := make(api.Tools, 0, len(tools))
	for _, t := range tools {
		params := t.InputSchema
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		raw, err := json.Marshal(map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
		if err != nil {
			return nil, err
		}
		var tool api.Tool
		if err := json.Unmarshal(raw, &tool); err != nil {
			return nil, &ai.ConfigError{Field: "tools", Reason: fmt.Sprintf("%s: %v", t.Name, err)}
		}
		result = append(result, tool)
	}
	return result, nil
}
