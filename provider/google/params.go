package google

import (
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/internal/provider"
)

func (m *Model) request(opts ai.CallOptions) ([]*genai.Content, *genai.GenerateContentConfig, []ai.Warning, error) {
	contents, system, err := convertMessages(opts.Messages)
	if err != nil {
		return nil, nil, nil, err
	}

	config := &genai.GenerateContentConfig{SystemInstruction: system}
	var warnings []ai.Warning

	if opts.MaxOutputTokens != nil {
		config.MaxOutputTokens = int32(*opts.MaxOutputTokens)
	}
	config.Temperature = provider.Float32(opts.Temperature)
	config.TopP = provider.Float32(opts.TopP)
	if opts.TopK != nil {
		k := float32(*opts.TopK)
		config.TopK = &k
	}
	config.PresencePenalty = provider.Float32(opts.PresencePenalty)
	config.FrequencyPenalty = provider.Float32(opts.FrequencyPenalty)
	config.Seed = provider.Int32(opts.Seed)
	config.StopSequences = opts.StopSequences

	if budget, ok := opts.ProviderOptions[ThinkingBudget].(int); ok && budget > 0 {
		b := int32(budget)
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &b}
	}

	if len(opts.Tools) > 0 {
		config.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != "" {
			config.ToolConfig = convertToolChoice(opts.ToolChoice)
		}
	}

	if rf := opts.ResponseFormat; rf != nil && rf.Type == ai.ResponseFormatJSON {
		config.ResponseMIMEType = "application/json"
		if len(rf.Schema) > 0 {
			config.ResponseSchema = convertSchema(rf.Schema)
		}
		if len(config.Tools) > 0 {
			warnings = append(warnings, ai.Warning{
				Type:    "other",
				Message: "JSON output together with tools may be rejected by Gemini",
			})
		}
	}

	if len(opts.Headers) > 0 {
		h := http.Header{}
		for k, v := range opts.Headers {
			h.Set(k, v)
		}
		config.HTTPOptions = &genai.HTTPOptions{Headers: h}
	}
	return contents, config, warnings, nil
}

// convertMessages returns the conversation and the system instruction built
// from all system messages.
func convertMessages(messages []ai.Message) ([]*genai.Content, *genai.Content, error) {
	var contents []*genai.Content
	var system *genai.Content

	for _, msg := range messages {
		var role string
		var parts []*genai.Part

		switch msg.Role {
		case ai.RoleSystem:
			if text := msg.Text(); text != "" {
				if system == nil {
					system = &genai.Content{}
				}
				system.Parts = append(system.Parts, &genai.Part{Text: text})
			}
			continue
		case ai.RoleUser:
			role = "user"
			p, err := userParts(msg.Content)
			if err != nil {
				return nil, nil, err
			}
			parts = p
		case ai.RoleAssistant:
			role = "model"
			if text := msg.Text(); text != "" {
				parts = append(parts, &genai.Part{Text: text})
			}
			for _, tc := range msg.ToolCalls() {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: provider.Object(tc.Input),
				}})
			}
		case ai.RoleTool:
			role = "user"
			for _, tr := range msg.ToolResults() {
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       tr.ToolCallID,
					Name:     tr.ToolName,
					Response: provider.ResultValue(tr),
				}})
			}
		default:
			return nil, nil, &ai.ConfigError{Field: "messages", Reason: fmt.Sprintf("unknown role %q", msg.Role)}
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents, system, nil
}

func userParts(content []ai.ContentPart) ([]*genai.Part, error) {
	var parts []*genai.Part
	for _, part := range content {
		switch part.Type {
		case ai.ContentPartTypeText:
			if part.Text != "" {
				parts = append(parts, &genai.Part{Text: part.Text})
			}
		case ai.ContentPartTypeFile:
			f := part.File
			switch {
			case f == nil || (len(f.Data) == 0 && f.URL == ""):
				return nil, &ai.ConfigError{Field: "messages", Reason: "file part needs data or url"}
			case len(f.Data) > 0:
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: f.Data, MIMEType: f.MediaType}})
			default:
				parts = append(parts, &genai.Part{FileData: &genai.FileData{FileURI: f.URL, MIMEType: f.MediaType}})
			}
		}
	}
	return parts, nil
}

func convertTools(tools []ai.ToolDefinition) []*genai.Tool {
	funcs := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		funcs[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.InputSchema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: funcs}}
}

func convertToolChoice(choice ai.ToolChoice) *genai.ToolConfig {
	cfg := &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}
	switch {
	case choice == ai.ToolChoiceNone:
		cfg.Mode = genai.FunctionCallingConfigModeNone
	case choice == ai.ToolChoiceRequired:
		cfg.Mode = genai.FunctionCallingConfigModeAny
	case choice.IsSpecific():
		cfg.Mode = genai.FunctionCallingConfigModeAny
		cfg.AllowedFunctionNames = []string{string(choice)}
	}
	return &genai.ToolConfig{FunctionCallingConfig: cfg}
}

func toolCall(fc *genai.FunctionCall) ai.ToolCall {
	input, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		input = []byte("{}")
	}
	return ai.ToolCall{ID: fc.ID, Name: fc.Name, Input: input}
}

// convertSchema converts a JSON Schema document into the OpenAPI subset
// Gemini accepts. Unknown keywords are dropped.
func convertSchema(raw json.RawMessage) *genai.Schema {
	if len(raw) == 0 {
		return nil
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	return schemaObject(schema)
}

func schemaObject(schema map[string]any) *genai.Schema {
	result := &genai.Schema{}

	switch schema["type"] {
	case "string":
		result.Type = genai.TypeString
	case "number":
		result.Type = genai.TypeNumber
	case "integer":
		result.Type = genai.TypeInteger
	case "boolean":
		result.Type = genai.TypeBoolean
	case "array":
		result.Type = genai.TypeArray
	case "object":
		result.Type = genai.TypeObject
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				result.Enum = append(result.Enum, s)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				result.Properties[name] = schemaObject(pm)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		result.Items = schemaObject(items)
	}
	return result
}
