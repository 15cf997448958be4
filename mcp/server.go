package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/tool"
)

// Version is reported to MCP peers.
const Version = "0.1.0"

// ServerOption configures a server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name     string
	version  string
	logger   *slog.Logger
	executor []tool.ExecutorOption
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
	}
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) {
		c.version = version
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithExecutorOptions configures the executor that runs incoming calls, for
// example to set a timeout or an approver.
func WithExecutorOptions(opts ...tool.ExecutorOption) ServerOption {
	return func(c *serverConfig) {
		c.executor = append(c.executor, opts...)
	}
}

// NewServer creates an MCP server exposing every tool of registry. Calls are
// validated and run by a tool.Executor, so they behave exactly as in a loop.
func NewServer(registry *tool.Registry, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{
		name:    "loom",
		version: Version,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(cfg.name, cfg.version, server.WithToolCapabilities(true))
	exec := tool.NewExecutor(registry, append([]tool.ExecutorOption{tool.WithLogger(cfg.logger)}, cfg.executor...)...)
	for _, def := range registry.Definitions() {
		s.AddTool(ToMCPTool(def), handler(exec, def.Name, cfg.logger))
	}
	return s
}

func handler(exec *tool.Executor, name string, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input := json.RawMessage("{}")
		if req.Params.Arguments != nil {
			data, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			input = data
		}

		// MCP requests carry no call id of their own.
		call := ai.ToolCall{ID: uuid.NewString(), Name: name, Input: input}
		result, err := exec.Execute(ctx, call, tool.Context{})
		if err != nil {
			logger.Warn("mcp tool call failed", "tool", name, "error", err)
		}
		return toCallResult(result), nil
	}
}

// ServeStdio serves registry over stdin/stdout until the peer disconnects.
func ServeStdio(registry *tool.Registry, opts ...ServerOption) error {
	return server.ServeStdio(NewServer(registry, opts...))
}
