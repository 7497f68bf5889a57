package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/negotiate"
	"github.com/mordonez-me/capibara/internal/resolve"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Hash   string
	List   string
	Strict bool
}

// ResolveResult is the JSON payload of the resolve command.
type ResolveResult struct {
	Outcome     string              `json:"outcome,omitempty"`
	Error       string              `json:"error,omitempty"`
	Fingerprint string              `json:"fingerprint"`
	Effective   []string            `json:"effective"`
	Ignored     []string            `json:"ignored"`
	Selections  []resolve.Selection `json:"selections"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve an advertisement against the local graph",
		Long: `Resolve the negotiation headers a peer would send against the declared
capability graph and show the effective set and the selected capability
per feature.

--hash and --list are the values of the x-capability-hash and
x-capabilities headers. A hash without a list is looked up in the catalog
of known sets. Negotiation never fails: undecodable or unknown values
resolve to baseline. Use --strict to exit non-zero unless the
advertisement resolved.

Example:
  capibara resolve --registry ./capabilities --list feed.page.v1,feed.cursor.v3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Hash, "hash", "", "x-capability-hash value")
	cmd.Flags().StringVar(&opts.List, "list", "", "x-capabilities value (comma separated)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 unless the advertisement resolved")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	g, err := loadGraph(formatter, registryPaths(opts.RootOptions, cfg, nil))
	if err != nil {
		return err
	}

	e := newEngine(cfg, g, commandLogger(opts.RootOptions, cmd), nil)

	headers := negotiate.MapCarrier{}
	if opts.Hash != "" {
		headers.Set(negotiate.HeaderHash, opts.Hash)
	}
	if opts.List != "" {
		headers.Set(negotiate.HeaderCapabilities, opts.List)
	}

	n := e.Negotiate(headers)
	result := ResolveResult{
		Outcome:     string(n.Outcome),
		Fingerprint: n.Result.Fingerprint().String(),
		Effective:   nonNil(n.Result.Effective().Names()),
		Ignored:     nonNil(n.Result.Ignored().Names()),
		Selections:  n.Result.Selections(),
	}
	if n.Err != nil {
		result.Error = n.Err.Error()
	}
	if result.Selections == nil {
		result.Selections = []resolve.Selection{}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputResolveText(formatter, result)
	}

	if opts.Strict && n.Outcome != negotiate.OutcomeResolved {
		return NewExitError(ExitFailure, fmt.Sprintf("advertisement did not resolve: %s", n.Outcome))
	}
	return nil
}

func outputResolveText(formatter *OutputFormatter, r ResolveResult) {
	w := formatter.Writer
	fmt.Fprintf(w, "outcome      %s\n", r.Outcome)
	if r.Error != "" {
		fmt.Fprintf(w, "error        %s\n", r.Error)
	}
	fmt.Fprintf(w, "fingerprint  %s\n", r.Fingerprint)
	fmt.Fprintf(w, "effective    %s\n", orNone(r.Effective))
	fmt.Fprintf(w, "ignored      %s\n", orNone(r.Ignored))
	for _, sel := range r.Selections {
		selected := sel.Capability
		if sel.Baseline {
			selected = "baseline"
		}
		fmt.Fprintf(w, "  %s → %s\n", sel.Feature, selected)
	}
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
