package openai

import (
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/internal/provider"
)

func (m *Model) params(opts ai.CallOptions) (openai.ChatCompletionNewParams, []ai.Warning, error) {
	msgs, err := convertMessages(opts.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    m.modelID,
		Messages: msgs,
	}
	var warnings []ai.Warning

	if opts.MaxOutputTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*opts.MaxOutputTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if opts.TopK != nil {
		warnings = append(warnings, provider.Unsupported("topK"))
	}
	if opts.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*opts.PresencePenalty)
	}
	if opts.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*opts.FrequencyPenalty)
	}
	if opts.Seed != nil {
		params.Seed = openai.Int(int64(*opts.Seed))
	}
	if len(opts.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopSequences}
	}

	if len(opts.Tools) > 0 && opts.ToolChoice != ai.ToolChoiceNone {
		params.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != "" {
			params.ToolChoice = convertToolChoice(opts.ToolChoice)
		}
	}

	if rf := opts.ResponseFormat; rf != nil && rf.Type == ai.ResponseFormatJSON {
		if len(rf.Schema) > 0 {
			params.ResponseFormat = schemaFormat(rf)
		} else {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{Type: "json_object"},
			}
		}
	}
	return params, warnings, nil
}

func convertMessages(messages []ai.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var result []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleSystem:
			if text := msg.Text(); text != "" {
				result = append(result, openai.SystemMessage(text))
			}
		case ai.RoleUser:
			parts, err := userParts(msg.Content)
			if err != nil {
				return nil, err
			}
			if len(parts) > 0 {
				result = append(result, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
					},
				})
			}
		case ai.RoleAssistant:
			if p := assistantMessage(msg); p != nil {
				result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: p})
			}
		case ai.RoleTool:
			for _, tr := range msg.ToolResults() {
				result = append(result, openai.ToolMessage(tr.OutputText(), tr.ToolCallID))
			}
		default:
			return nil, &ai.ConfigError{Field: "messages", Reason: fmt.Sprintf("unknown role %q", msg.Role)}
		}
	}
	return result, nil
}

func userParts(content []ai.ContentPart) ([]openai.ChatCompletionContentPartUnionParam, error) {
	var parts []openai.ChatCompletionContentPartUnionParam
	for _, part := range content {
		switch part.Type {
		case ai.ContentPartTypeText:
			if part.Text != "" {
				parts = append(parts, openai.TextContentPart(part.Text))
			}
		case ai.ContentPartTypeFile:
			url, err := provider.FileURL(part.File)
			if err != nil {
				return nil, err
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
		}
	}
	return parts, nil
}

func assistantMessage(msg ai.Message) *openai.ChatCompletionAssistantMessageParam {
	text := msg.Text()
	calls := msg.ToolCalls()
	if text == "" && len(calls) == 0 {
		return nil
	}

	p := &openai.ChatCompletionAssistantMessageParam{}
	if text != "" {
		p.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
	}
	for _, tc := range calls {
		p.ToolCalls = append(p.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(provider.ToolInput(string(tc.Input))),
			},
		})
	}
	return p
}

func convertTools(tools []ai.ToolDefinition) []openai.ChatCompletionToolParam {
	result := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		var params shared.FunctionParameters
		if len(t.InputSchema) > 0 {
			_ = json.Unmarshal(t.InputSchema, &params)
		}
		result[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  params,
			},
		}
	}
	return result
}

func convertToolChoice(choice ai.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch {
	case choice.IsSpecific():
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: string(choice)},
			},
		}
	case choice == ai.ToolChoiceRequired:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
}

func schemaFormat(rf *ai.ResponseFormat) openai.ChatCompletionNewParamsResponseFormatUnion {
	var schema map[string]any
	_ = json.Unmarshal(rf.Schema, &schema)
	closeObjects(schema)

	name := rf.Name
	if name == "" {
		name = "response"
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(rf.Description),
				Schema:      schema,
				Strict:      openai.Bool(true),
			},
		},
	}
}

// closeObjects sets additionalProperties: false on every object schema,
// which strict mode requires.
func closeObjects(schema map[string]any) {
	if schema == nil {
		return
	}
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				closeObjects(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		closeObjects(items)
	}
}

func finishReason(r string) ai.FinishReason {
	switch r {
	case "stop":
		return ai.FinishStop
	case "length":
		return ai.FinishLength
	case "tool_calls", "function_call":
		return ai.FinishToolCalls
	case "content_filter":
		return ai.FinishContentFilter
	case "":
		return ai.FinishUnknown
	default:
		return ai.FinishOther
	}
}

func usage(u openai.CompletionUsage) ai.Usage {
	out := ai.Usage{
		InputTokens:  provider.Tokens(u.PromptTokens),
		OutputTokens: provider.Tokens(u.CompletionTokens),
		TotalTokens:  provider.Tokens(u.TotalTokens),
	}
	if n := u.CompletionTokensDetails.ReasoningTokens; n > 0 {
		out.ReasoningTokens = provider.Tokens(n)
	}
	if n := u.PromptTokensDetails.CachedTokens; n > 0 {
		out.CachedInputTokens = provider.Tokens(n)
	}
	return out
}
