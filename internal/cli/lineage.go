package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/capability"
)

// LineageResult is the JSON payload of the lineage command.
type LineageResult struct {
	Record     capability.Record `json:"record"`
	Feature    string            `json:"feature"`
	Lineage    []string          `json:"lineage"`
	Successors []string          `json:"successors"`
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage <name>",
		Short: "Show the replaces chain of a capability",
		Long: `Show the chain from the root of a capability's feature down to the
capability, and the capabilities that directly replace it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runLineage(opts *RootOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, formatter)
	if err != nil {
		return err
	}
	g, err := loadGraph(formatter, registryPaths(opts, cfg, nil))
	if err != nil {
		return err
	}

	name = capability.CanonicalName(name)
	lineage, ok := g.Lineage(name)
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeUnknownCapability,
			fmt.Sprintf("capability %q is not declared", name), nil)
	}
	record, _ := g.Record(name)

	result := LineageResult{
		Record:     record,
		Feature:    lineage[0],
		Lineage:    lineage,
		Successors: nonNil(g.Successors(name)),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, strings.Join(result.Lineage, " → "))
	if record.Deprecated {
		fmt.Fprintf(formatter.Writer, "  %s is deprecated\n", name)
	}
	if len(result.Successors) > 0 {
		fmt.Fprintf(formatter.Writer, "  replaced by %s\n", strings.Join(result.Successors, ", "))
	}
	return nil
}
