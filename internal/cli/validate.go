package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/fingerprint"
	"github.com/mordonez-me/capibara/internal/graph"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid        bool                   `json:"valid"`
	Capabilities int                    `json:"capabilities,omitempty"`
	Features     int                    `json:"features,omitempty"`
	Fingerprint  string                 `json:"fingerprint,omitempty"`
	Warnings     []graph.Warning        `json:"warnings,omitempty"`
	Errors       []capability.Violation `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [paths...]",
		Short: "Validate capability declarations",
		Long: `Load capability declarations and check them as a whole.

Reports every malformed record, duplicate name, dangling replaces edge,
replaces cycle and unordered branch in one pass, plus non-fatal warnings.
Paths default to --registry, then registry.paths from the config file.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, formatter)
	if err != nil {
		return err
	}

	g, err := loadGraph(formatter, registryPaths(opts, cfg, args))
	if err != nil {
		return err
	}

	return outputValidateSuccess(formatter, g)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, g *graph.Graph) error {
	result := ValidationResult{
		Valid:        true,
		Capabilities: g.Len(),
		Features:     len(g.Features()),
		Fingerprint:  fingerprint.Of(g.Names()).String(),
		Warnings:     g.Warnings(),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d capabilities valid (%d features)\n", result.Capabilities, result.Features)
	fmt.Fprintf(formatter.Writer, "  fingerprint %s\n", result.Fingerprint)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning %s\n", w)
	}
	return nil
}
