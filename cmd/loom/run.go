package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/agent"
	"github.com/spetersoncode/loom/event"
	"github.com/spetersoncode/loom/store"
)

func newRunCmd() *cobra.Command {
	var (
		session      string
		instructions string
	)
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run the agent on a prompt, read from stdin when omitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(true)
			if err != nil {
				return err
			}
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := buildAgent(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := []agent.Option{}
			if instructions != "" {
				opts = append(opts, agent.WithInstructions(instructions))
			}
			if session != "" {
				db, err := store.OpenSQLite(ctx, cfg.DB)
				if err != nil {
					return err
				}
				defer db.Close()
				opts = append(opts, agent.WithSession(db, session))
			}

			events := a.RunStream(ctx, []ai.Message{ai.NewUserText(prompt)}, opts...)
			return printRun(cmd.OutOrStdout(), cmd.ErrOrStderr(), events)
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "continue and store the conversation under this key")
	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "system instructions for the agent")
	return cmd
}

// buildAgent resolves the configured model and tools. The cleanup function
// closes MCP connections.
func buildAgent(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...agent.Option) (*agent.Agent, func(), error) {
	model, err := cfg.Providers().LanguageModel(ctx, cfg.ModelID())
	if err != nil {
		return nil, nil, err
	}
	registry := newRegistry(cfg)
	closeMCP, err := connectMCP(ctx, cfg, registry, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("agent ready", "model", cfg.ModelID(), "tools", registry.Names())

	opts = append([]agent.Option{
		agent.WithMaxSteps(cfg.MaxSteps),
		agent.WithTimeout(cfg.Timeout),
		agent.WithToolTimeout(cfg.ToolTimeout),
		agent.WithLogger(logger),
	}, opts...)
	return agent.New(model, registry, opts...), closeMCP, nil
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	prompt := strings.Join(args, " ")
	if prompt == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading prompt: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

// printRun writes streamed text to out and tool activity to log until the
// run ends, and returns the run error if any.
func printRun(out, log io.Writer, events <-chan event.Event) error {
	var (
		runErr error
		usage  ai.Usage
		steps  int
	)
	for e := range events {
		switch e.Type {
		case event.MessageDelta:
			fmt.Fprint(out, e.Delta)
		case event.MessageEnd:
			fmt.Fprintln(out)
		case event.ToolCallExecuting:
			fmt.Fprintf(log, "[tool] %s %s\n", e.ToolCall.Name, e.ToolCall.Input)
		case event.ToolCallRejected:
			fmt.Fprintf(log, "[tool] %s rejected: %s\n", e.ToolCall.Name, e.Message)
		case event.ToolCallResult:
			if e.ToolResult.IsError {
				fmt.Fprintf(log, "[tool] %s failed: %s\n", e.ToolResult.ToolName, e.ToolResult.OutputText())
			}
		case event.Retrying:
			fmt.Fprintf(log, "[retry] attempt %d failed, retrying in %s: %v\n", e.Attempt, e.Delay, e.Error)
		case event.StepEnd:
			steps = e.Step
			if e.StepResult != nil {
				usage = usage.Add(e.StepResult.Usage)
			}
		case event.RunError:
			runErr = e.Error
		case event.RunEnd:
			fmt.Fprintf(log, "[done] %d steps, %d tokens\n", steps, usage.Total())
		}
	}
	return runErr
}
