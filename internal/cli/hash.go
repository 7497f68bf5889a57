package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/fingerprint"
	"github.com/mordonez-me/capibara/internal/negotiate"
)

// HashOptions holds flags for the hash command.
type HashOptions struct {
	*RootOptions
	Headers bool
}

// HashResult is the JSON payload of the hash command.
type HashResult struct {
	Fingerprint  string   `json:"fingerprint"`
	Capabilities []string `json:"capabilities"`
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash [names...]",
		Short: "Compute the fingerprint of a capability set",
		Long: `Compute the fingerprint of the named capabilities, or of every declared
capability when no names are given.

The fingerprint does not depend on argument order or duplicates.

Example:
  capibara hash feed.page.v1 feed.cursor.v2
  capibara hash --registry ./capabilities --headers`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Headers, "headers", false, "print the negotiation headers instead of the bare fingerprint")

	return cmd
}

func runHash(opts *HashOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var set capability.Set
	if len(args) > 0 {
		for _, arg := range args {
			if err := capability.CheckName(capability.CanonicalName(arg)); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeInvalidArgument, err.Error(), nil)
			}
		}
		set = capability.NewSet(args...)
	} else {
		cfg, err := loadConfig(opts.RootOptions, formatter)
		if err != nil {
			return err
		}
		g, err := loadGraph(formatter, registryPaths(opts.RootOptions, cfg, nil))
		if err != nil {
			return err
		}
		set = g.Names()
	}

	fp := fingerprint.Of(set)

	if formatter.Format == "json" {
		return formatter.Success(HashResult{
			Fingerprint:  fp.String(),
			Capabilities: nonNil(set.Names()),
		})
	}

	if !opts.Headers {
		fmt.Fprintln(formatter.Writer, fp)
		return nil
	}

	headers := negotiate.MapCarrier{}
	negotiate.NewAdvertiser(set).Inject(headers)
	for _, key := range []string{negotiate.HeaderHash, negotiate.HeaderCapabilities} {
		if v := headers.Get(key); v != "" {
			fmt.Fprintf(formatter.Writer, "%s: %s\n", key, v)
		}
	}
	return nil
}
