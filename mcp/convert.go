// Package mcp bridges loom tools and the Model Context Protocol.
//
// The bridge works both ways:
//
//   - Client: Connect to an MCP server and use its tools as [tool.Tool]
//     values, registered like any local tool and executed through CallTool.
//   - Server: Expose a [tool.Registry] as an MCP server so MCP clients can
//     discover and call the tools.
//
// # Consuming MCP Servers
//
//	remote, err := mcp.Connect(ctx, mcp.Transport{Command: "./weather-server"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer remote.Close()
//
//	registry := tool.NewRegistry()
//	if err := remote.RegisterAll(registry); err != nil {
//	    log.Fatal(err)
//	}
//
// # Exposing Tools as an MCP Server
//
//	registry := tool.NewRegistry().Add(
//	    tool.Func("weather", "Get weather", weatherHandler),
//	)
//	if err := mcp.ServeStdio(registry); err != nil {
//	    log.Fatal(err)
//	}
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	ai "github.com/spetersoncode/loom"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// ToMCPTool converts a tool definition to an MCP tool. The input schema is
// passed through unchanged.
func ToMCPTool(def ai.ToolDefinition) mcp.Tool {
	schema := def.InputSchema
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}
	return mcp.NewToolWithRawSchema(def.Name, def.Description, schema)
}

// FromMCPTool converts an MCP tool to a tool definition, preferring the raw
// schema when the server sent one.
func FromMCPTool(t mcp.Tool) ai.ToolDefinition {
	schema := t.RawInputSchema
	if len(schema) == 0 {
		if data, err := json.Marshal(t.InputSchema); err == nil {
			schema = data
		}
	}
	return ai.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// resultText joins the text content of a call result. Non-text content is
// included as JSON.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch content := c.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		default:
			if data, err := json.Marshal(content); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// resultOutput turns a call result into a tool output: structured content
// when present, the joined text as a JSON string otherwise.
func resultOutput(result *mcp.CallToolResult) (json.RawMessage, error) {
	if result.StructuredContent != nil {
		return json.Marshal(result.StructuredContent)
	}
	return json.Marshal(resultText(result))
}

// toCallResult converts a tool result to an MCP call result.
func toCallResult(result ai.ToolResult) *mcp.CallToolResult {
	if result.IsError {
		return mcp.NewToolResultError(result.OutputText())
	}
	return mcp.NewToolResultText(result.OutputText())
}
