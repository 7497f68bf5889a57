package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// Version is the build version reported by the MCP server. Set with
// -ldflags "-X github.com/mordonez-me/capibara/internal/cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string   // "json" | "text"
	Config   string   // path to capibara.yaml, optional
	Registry []string // declaration paths, overrides registry.paths
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the capibara CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "capibara",
		Short: "Capibara - capability graph and negotiation",
		Long: `Validate capability declarations, compute capability fingerprints and
resolve what a peer's advertisement means against the local graph.`,
		SilenceErrors: true, // main prints errors commands did not report
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringSliceVarP(&opts.Registry, "registry", "r", nil, "capability declaration paths (overrides registry.paths)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHashCommand(opts))
	cmd.AddCommand(NewLineageCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMCPCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
