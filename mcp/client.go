package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/tool"
)

// Transport selects how to reach an MCP server. Exactly one of Command and
// URL must be set.
type Transport struct {
	// Command starts a server subprocess speaking MCP over stdio.
	Command string
	Args    []string
	Env     []string

	// URL connects to a server over SSE.
	URL string
}

// Client is a connection to an MCP server. Its tools are cached and can be
// refreshed with [Client.Refresh]. It is safe for concurrent use.
type Client struct {
	client *client.Client
	logger *slog.Logger

	mu    sync.RWMutex
	tools []ai.ToolDefinition
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger of a Client.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Connect opens a connection, initializes the MCP session and lists the
// server's tools.
func Connect(ctx context.Context, tr Transport, opts ...ClientOption) (*Client, error) {
	switch {
	case tr.Command != "" && tr.URL != "":
		return nil, &ai.ConfigError{Field: "transport", Reason: "set either command or url, not both"}
	case tr.Command != "":
		// The stdio client is running once constructed.
		c, err := client.NewStdioMCPClient(tr.Command, tr.Env, tr.Args...)
		if err != nil {
			return nil, fmt.Errorf("mcp: start %s: %w", tr.Command, err)
		}
		return open(ctx, c, false, opts)
	case tr.URL != "":
		c, err := client.NewSSEMCPClient(tr.URL)
		if err != nil {
			return nil, fmt.Errorf("mcp: connect %s: %w", tr.URL, err)
		}
		return open(ctx, c, true, opts)
	default:
		return nil, &ai.ConfigError{Field: "transport", Reason: "command or url is required"}
	}
}

// NewClient wraps an existing, not yet started client such as an in-process
// one. It starts and initializes the session.
func NewClient(ctx context.Context, c *client.Client, opts ...ClientOption) (*Client, error) {
	return open(ctx, c, true, opts)
}

func open(ctx context.Context, c *client.Client, start bool, opts []ClientOption) (*Client, error) {
	if start {
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("mcp: start client: %w", err)
		}
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "loom",
				Version: Version,
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize session: %w", err)
	}

	mc := &Client{client: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(mc)
	}
	if err := mc.Refresh(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return mc, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Refresh fetches the tool list again.
func (c *Client) Refresh(ctx context.Context) error {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcp: list tools: %w", err)
	}

	defs := make([]ai.ToolDefinition, len(result.Tools))
	for i, t := range result.Tools {
		defs[i] = FromMCPTool(t)
	}

	c.mu.Lock()
	c.tools = defs
	c.mu.Unlock()

	c.logger.Debug("mcp tools listed", "count", len(defs))
	return nil
}

// Definitions returns the cached tool definitions in server order.
func (c *Client) Definitions() []ai.ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ai.ToolDefinition(nil), c.tools...)
}

// Tools returns every remote tool as a tool.Tool.
func (c *Client) Tools() []tool.Tool {
	defs := c.Definitions()
	tools := make([]tool.Tool, len(defs))
	for i, def := range defs {
		tools[i] = &remoteTool{client: c, def: def}
	}
	return tools
}

// RegisterAll adds every remote tool to registry.
func (c *Client) RegisterAll(registry *tool.Registry) error {
	for _, t := range c.Tools() {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// remoteTool executes a tool on the server through CallTool.
type remoteTool struct {
	client *Client
	def    ai.ToolDefinition
}

func (t *remoteTool) Definition() ai.ToolDefinition {
	return t.def
}

func (t *remoteTool) Execute(ctx context.Context, input json.RawMessage, _ tool.Context) (json.RawMessage, error) {
	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, &tool.Error{Kind: tool.KindInvalidInput, Tool: t.def.Name, Err: err}
		}
	}

	result, err := t.client.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: t.def.Name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s: %w", t.def.Name, err)
	}
	if result.IsError {
		return nil, &tool.Error{Kind: tool.KindExecutionFailed, Tool: t.def.Name, Reason: resultText(result)}
	}
	return resultOutput(result)
}
