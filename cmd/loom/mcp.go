package main

import (
	"github.com/spf13/cobra"

	"github.com/spetersoncode/loom/mcp"
	"github.com/spetersoncode/loom/tool"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the demo and workspace tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(false)
			if err != nil {
				return err
			}
			registry := newRegistry(cfg)
			logger.Info("serving tools over mcp", "tools", registry.Names())
			return mcp.ServeStdio(registry,
				mcp.WithName("loom"),
				mcp.WithVersion(mcp.Version),
				mcp.WithLogger(logger),
				mcp.WithExecutorOptions(tool.WithTimeout(cfg.ToolTimeout), tool.WithLogger(logger)),
			)
		},
	}
}
