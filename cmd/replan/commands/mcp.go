package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/replan/internal/mcp"
	"github.com/Sumatoshi-tech/replan/pkg/config"
	"github.com/Sumatoshi-tech/replan/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes replan's planning capabilities as tools that AI
agents can discover and invoke:
  - replan_plan: plan a verified history rewrite for a commit range
  - replan_verify: check a policy against a range without auto-repair`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if debug {
				cfg.Logging.Level = "debug"
			}

			// Logs share stderr with nothing else here; stdout carries
			// the MCP framing and must stay clean.
			cfg.Logging.Format = "json"

			providers, err := initObservability(cfg, observability.ModeMCP)
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			red, redErr := observability.NewREDMetrics(providers.Meter)
			if redErr != nil {
				return redErr
			}

			deps := mcp.ServerDeps{Logger: providers.Logger, Metrics: red, Tracer: providers.Tracer}

			srv := mcp.NewServer(deps)

			providers.Logger.LogAttrs(cobraCmd.Context(), slog.LevelInfo, "mcp server starting",
				slog.Any("tools", srv.ListToolNames()))

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging to stderr")

	return cmd
}
