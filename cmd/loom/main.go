// Command loom runs tool-using agents from the terminal.
//
// Configuration is read from loom.toml (see --config), a .env file and the
// environment:
//
//	LOOM_PROVIDER     - openai, anthropic, google or ollama (default: openai)
//	LOOM_MODEL        - model id (default depends on the provider)
//	LOOM_MAX_STEPS    - max agent steps (default: 10)
//	LOOM_TIMEOUT      - run timeout (default: 2m)
//	LOOM_DB           - SQLite file for sessions (default: loom.db)
//	LOOM_WORKSPACE    - root directory of the file tools (default: .)
//	OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, OLLAMA_HOST
//
// Usage:
//
//	loom run "What is 17 times 23?"
//	loom run --session notes "Summarize README.md"
//	echo '{"city":"Par' | loom repair
//	loom mcp
//	loom serve
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "loom",
	Short:         "Run tool-using language model agents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "loom.toml", "path to the TOML config file")
	rootCmd.AddCommand(newRunCmd(), newRepairCmd(), newMCPCmd(), newServeCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger. Without a model only
// the tool settings are validated. Logs go to stderr so stdout stays free
// for output and the MCP protocol.
func setup(needModel bool) (*Config, *slog.Logger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	validate := cfg.ValidateTools
	if needModel {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	lvl, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	return cfg, logger, nil
}
