package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spetersoncode/loom/mcp"
	"github.com/spetersoncode/loom/tool"
	"github.com/spetersoncode/loom/tool/builtin"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"the text to echo back"`
}

func echo(_ context.Context, args echoArgs) (string, error) {
	return args.Text, nil
}

type timeArgs struct {
	Format string `json:"format,omitempty" jsonschema:"rfc3339, unix or human (default)"`
}

type clock func() time.Time

func (now clock) current(_ context.Context, args timeArgs) (string, error) {
	t := now()
	switch strings.ToLower(args.Format) {
	case "rfc3339":
		return t.Format(time.RFC3339), nil
	case "unix":
		return fmt.Sprintf("%d", t.Unix()), nil
	default:
		return t.Format("Monday, January 2, 2006 at 3:04 PM MST"), nil
	}
}

type calculateArgs struct {
	Operation string  `json:"operation" jsonschema:"add, subtract, multiply or divide"`
	A         float64 `json:"a" jsonschema:"first operand"`
	B         float64 `json:"b" jsonschema:"second operand"`
}

func calculate(_ context.Context, args calculateArgs) (string, error) {
	var result float64
	switch args.Operation {
	case "add":
		result = args.A + args.B
	case "subtract":
		result = args.A - args.B
	case "multiply":
		result = args.A * args.B
	case "divide":
		if args.B == 0 {
			return "", fmt.Errorf("cannot divide by zero")
		}
		result = args.A / args.B
	default:
		return "", fmt.Errorf("unknown operation: %s", args.Operation)
	}
	return fmt.Sprintf("%.6g", result), nil
}

// demoTools returns echo, current_time and calculate.
func demoTools(now func() time.Time) []tool.Tool {
	return []tool.Tool{
		tool.Func("echo", "Echo back the input text", echo),
		tool.Func("current_time", "Get the current time", clock(now).current),
		tool.Func("calculate", "Perform basic arithmetic", calculate),
	}
}

// newRegistry returns the demo tools plus the built-in workspace tools.
func newRegistry(cfg *Config) *tool.Registry {
	return tool.NewRegistry().
		Add(demoTools(time.Now)...).
		Add(builtin.Standard(builtin.WithRoot(cfg.Workspace))...)
}

// connectMCP adds the tools of every configured MCP server to registry. The
// returned function closes the connections.
func connectMCP(ctx context.Context, cfg *Config, registry *tool.Registry, logger *slog.Logger) (func(), error) {
	var clients []*mcp.Client
	closeAll := func() {
		for _, c := range clients {
			if err := c.Close(); err != nil {
				logger.Warn("closing mcp client", "error", err)
			}
		}
	}

	for _, s := range cfg.MCP {
		c, err := mcp.Connect(ctx, mcp.Transport{Command: s.Command, Args: s.Args, Env: s.Env, URL: s.URL},
			mcp.WithClientLogger(logger))
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("mcp server %s: %w", s.Name, err)
		}
		clients = append(clients, c)
		if err := c.RegisterAll(registry); err != nil {
			closeAll()
			return nil, fmt.Errorf("mcp server %s: %w", s.Name, err)
		}
		logger.Info("connected mcp server", "name", s.Name, "tools", len(c.Definitions()))
	}
	return closeAll, nil
}
