package agent

import (
	"context"
	"fmt"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/tool"
)

// ToolArgs is the input of an agent exposed as a tool.
type ToolArgs struct {
	Query string `json:"query" jsonschema:"the query or task for the agent"`
}

// ToolOption configures an agent tool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description  string
	maxSteps     int
	agentOptions []Option
}

// WithToolDescription sets the description shown to the calling model.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) {
		c.description = desc
	}
}

// WithToolMaxSteps bounds the sub-agent run. Default is 5.
func WithToolMaxSteps(n int) ToolOption {
	return func(c *toolConfig) {
		c.maxSteps = n
	}
}

// WithToolAgentOptions passes options to every sub-agent run.
func WithToolAgentOptions(opts ...Option) ToolOption {
	return func(c *toolConfig) {
		c.agentOptions = append(c.agentOptions, opts...)
	}
}

func newToolConfig(description string, opts []ToolOption) *toolConfig {
	cfg := &toolConfig{description: description, maxSteps: 5}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *toolConfig) runOptions() []Option {
	return append([]Option{WithMaxSteps(c.maxSteps)}, c.agentOptions...)
}

// NewTool exposes an agent as a tool so one loop can delegate to another.
// The query becomes a user message and the sub-agent's final text is the
// tool output. A sub-agent that hits its step limit is a tool failure.
//
// Example:
//
//	researcher := agent.New(model, researchTools)
//	registry.Add(agent.NewTool("research", researcher,
//	    agent.WithToolDescription("Delegate research to a specialist"),
//	))
func NewTool(name string, a *Agent, opts ...ToolOption) tool.Tool {
	return NewToolFunc(name, a, "", func(args ToolArgs) []ai.Message {
		return []ai.Message{ai.NewUserText(args.Query)}
	}, opts...)
}

// NewToolFunc is like NewTool with a typed input converted to the sub-agent
// conversation by toMessages.
func NewToolFunc[T any](name string, a *Agent, description string, toMessages func(args T) []ai.Message, opts ...ToolOption) tool.Tool {
	if description == "" {
		description = fmt.Sprintf("Invoke the %s agent", name)
	}
	cfg := newToolConfig(description, opts)

	return tool.Func(name, cfg.description, func(ctx context.Context, args T) (string, error) {
		res, err := a.Run(ctx, toMessages(args), cfg.runOptions()...)
		if err != nil {
			return "", fmt.Errorf("agent %s: %w", name, err)
		}
		return res.Text, nil
	})
}
