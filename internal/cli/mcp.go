package cli

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/mcpserver"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the capability graph to development tools over MCP",
		Long: `Start a Model Context Protocol server on stdio exposing the graph
export as a resource, and lineage and resolve as tools.

Refused when introspection is disabled for the configured environment.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(rootOpts, cmd)
		},
	}

	return cmd
}

func runMCP(opts *RootOptions, cmd *cobra.Command) error {
	// Diagnostics go to stderr; stdout belongs to the protocol.
	formatter := newFormatter(opts, cmd)
	formatter.Writer = cmd.ErrOrStderr()

	cfg, err := loadConfig(opts, formatter)
	if err != nil {
		return err
	}
	if err := checkIntrospection(cfg, formatter); err != nil {
		return err
	}

	g, err := loadGraph(formatter, registryPaths(opts, cfg, nil))
	if err != nil {
		return err
	}

	logger := cfg.Logger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	e := newEngine(cfg, g, logger, nil)
	slog.Info("capibara MCP server starting", "capabilities", g.Len())

	if err := server.ServeStdio(mcpserver.New(e, Version)); err != nil {
		return WrapExitError(ExitFailure, "mcp server error", err)
	}
	return nil
}
