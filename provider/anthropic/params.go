package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/internal/provider"
)

// jsonToolName is the synthetic tool used for JSON output.
const jsonToolName = "json_response"

type request struct {
	params   anthropic.MessageNewParams
	warnings []ai.Warning
	jsonMode bool
}

func (m *Model) request(opts ai.CallOptions) (*request, error) {
	msgs, system, err := convertMessages(opts.Messages)
	if err != nil {
		return nil, err
	}

	maxTokens := int64(defaultMaxTokens)
	if opts.MaxOutputTokens != nil {
		maxTokens = int64(*opts.MaxOutputTokens)
	}
	r := &request{params: anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelID),
		MaxTokens: maxTokens,
		Messages:  msgs,
		System:    system,
	}}
	p := &r.params

	if opts.Temperature != nil {
		p.Temperature = anthropic.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		p.TopP = anthropic.Float(*opts.TopP)
	}
	if opts.TopK != nil {
		p.TopK = anthropic.Int(int64(*opts.TopK))
	}
	if len(opts.StopSequences) > 0 {
		p.StopSequences = opts.StopSequences
	}
	if opts.Seed != nil {
		r.warnings = append(r.warnings, provider.Unsupported("seed"))
	}
	if opts.PresencePenalty != nil {
		r.warnings = append(r.warnings, provider.Unsupported("presencePenalty"))
	}
	if opts.FrequencyPenalty != nil {
		r.warnings = append(r.warnings, provider.Unsupported("frequencyPenalty"))
	}
	if budget, ok := opts.ProviderOptions[ThinkingBudget].(int); ok && budget > 0 {
		p.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	}

	if opts.ToolChoice != ai.ToolChoiceNone {
		p.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != "" && len(p.Tools) > 0 {
			p.ToolChoice = convertToolChoice(opts.ToolChoice)
		}
	}

	if rf := opts.ResponseFormat; rf != nil && rf.Type == ai.ResponseFormatJSON {
		r.jsonMode = true
		p.Tools = append(p.Tools, jsonTool(rf))
		if len(opts.Tools) == 0 || opts.ToolChoice == ai.ToolChoiceNone {
			p.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: jsonToolName},
			}
		}
	}
	return r, nil
}

func convertMessages(messages []ai.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam, error) {
	var result []anthropic.MessageParam
	var system []anthropic.TextBlockParam

	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleSystem:
			// The API rejects empty text blocks.
			if text := msg.Text(); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case ai.RoleUser:
			blocks, err := userBlocks(msg.Content)
			if err != nil {
				return nil, nil, err
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}
		case ai.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := msg.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range msg.ToolCalls() {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, provider.Object(tc.Input), tc.Name))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}
		case ai.RoleTool:
			// Tool results travel as a user turn of tool_result blocks.
			var blocks []anthropic.ContentBlockParamUnion
			for _, tr := range msg.ToolResults() {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.OutputText(), tr.IsError))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}
		default:
			return nil, nil, &ai.ConfigError{Field: "messages", Reason: fmt.Sprintf("unknown role %q", msg.Role)}
		}
	}
	return result, system, nil
}

func userBlocks(content []ai.ContentPart) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range content {
		switch part.Type {
		case ai.ContentPartTypeText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case ai.ContentPartTypeFile:
			block, err := fileBlock(part.File)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
	}
	return blocks, nil
}

func fileBlock(f *ai.File) (anthropic.ContentBlockParamUnion, error) {
	if f == nil || (f.URL == "" && len(f.Data) == 0) {
		return anthropic.ContentBlockParamUnion{}, &ai.ConfigError{Field: "messages", Reason: "file part needs data or url"}
	}
	switch {
	case f.MediaType == "application/pdf" && f.URL != "":
		return anthropic.NewDocumentBlock(anthropic.URLPDFSourceParam{URL: f.URL}), nil
	case f.MediaType == "application/pdf":
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(f.Data),
		}), nil
	case f.URL != "":
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: f.URL}), nil
	case strings.HasPrefix(f.MediaType, "image/"):
		return anthropic.NewImageBlockBase64(f.MediaType, base64.StdEncoding.EncodeToString(f.Data)), nil
	default:
		return anthropic.ContentBlockParamUnion{}, &ai.ConfigError{
			Field:  "messages",
			Reason: fmt.Sprintf("unsupported media type %q", f.MediaType),
		}
	}
}

func convertTools(tools []ai.ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: inputSchema(t.InputSchema),
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &tool}
	}
	return result
}

func inputSchema(raw json.RawMessage) anthropic.ToolInputSchemaParam {
	schema := provider.Object(raw)
	var required []string
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	return anthropic.ToolInputSchemaParam{
		Properties: schema["properties"],
		Required:   required,
	}
}

func convertToolChoice(choice ai.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch {
	case choice.IsSpecific():
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: string(choice)}}
	case choice == ai.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func jsonTool(rf *ai.ResponseFormat) anthropic.ToolUnionParam {
	schema := json.RawMessage(`{"type":"object","additionalProperties":true}`)
	if len(rf.Schema) > 0 {
		schema = rf.Schema
	}
	description := "Respond with JSON matching the input schema."
	if rf.Description != "" {
		description = rf.Description
	}
	return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
		Name:        jsonToolName,
		Description: anthropic.String(description),
		InputSchema: inputSchema(schema),
	}}
}
