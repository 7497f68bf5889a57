package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/introspect"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of declaration files",
		Long: `Print the JSON schema of YAML and JSON capability declaration files,
for editor completion and CI checks.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			body, err := introspect.DeclarationSchema()
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
			}
			body = append(body, '\n')

			if output == "" {
				_, err := formatter.Writer.Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			}
			formatter.VerboseLog("Wrote schema to %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")

	return cmd
}
