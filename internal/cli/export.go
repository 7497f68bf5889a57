package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/config"
	"github.com/mordonez-me/capibara/internal/graph"
	"github.com/mordonez-me/capibara/internal/introspect"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string // output file path
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the capability graph for tooling",
		Long: `Export every declared capability, its feature and the registry
fingerprint. Text output lists capabilities in introduction order;
--output writes the JSON export consumed by capability viewers.

Refused when introspection is disabled for the configured environment.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the JSON export to this file")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	if err := checkIntrospection(cfg, formatter); err != nil {
		return err
	}

	g, err := loadGraph(formatter, registryPaths(opts.RootOptions, cfg, nil))
	if err != nil {
		return err
	}
	snapshot := introspect.Export(g)

	if opts.Output != "" {
		body, err := snapshot.JSON()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
		if err := os.WriteFile(opts.Output, body, 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(snapshot)
	}

	outputTimeline(formatter, g, snapshot.Fingerprint)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote export to %s\n", opts.Output)
	}
	return nil
}

func outputTimeline(formatter *OutputFormatter, g *graph.Graph, fp string) {
	w := formatter.Writer
	fmt.Fprintf(w, "%s (%d capabilities, %d features)\n", fp, g.Len(), len(g.Features()))
	for _, r := range g.Timeline() {
		version := r.IntroducedIn
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "  %-10s %s", version, r.Name)
		if r.Replaces != "" {
			fmt.Fprintf(w, "  replaces %s", r.Replaces)
		}
		if r.Deprecated {
			fmt.Fprint(w, "  (deprecated)")
		}
		fmt.Fprintln(w)
	}
}

func checkIntrospection(cfg config.Config, formatter *OutputFormatter) error {
	if cfg.IntrospectionAllowed() {
		return nil
	}
	return formatter.Fail(ExitCommandError, ErrCodeIntrospectionDenied,
		fmt.Sprintf("introspection is disabled in %s", cfg.Environment), nil)
}
