package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/config"
	"github.com/mordonez-me/capibara/internal/graph"
	"github.com/mordonez-me/capibara/internal/loader"
	"github.com/mordonez-me/capibara/internal/metrics"
	"github.com/mordonez-me/capibara/internal/negotiate"
	"github.com/mordonez-me/capibara/internal/registry"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// commandLogger is the logger for one-shot commands: warnings only, unless
// --verbose.
func commandLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func loadConfig(opts *RootOptions, f *OutputFormatter) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	if opts.Config != "" {
		f.VerboseLog("Using config %s (environment %s)", opts.Config, cfg.Environment)
	}
	return cfg, nil
}

// registryPaths picks declaration paths: positional arguments, then
// --registry, then registry.paths from the config file.
func registryPaths(opts *RootOptions, cfg config.Config, args []string) []string {
	switch {
	case len(args) > 0:
		return args
	case len(opts.Registry) > 0:
		return opts.Registry
	default:
		return cfg.Registry.Paths
	}
}

// loadGraph loads, registers and validates the declarations at paths.
// Failures are reported through f; the returned error carries the exit
// code.
func loadGraph(f *OutputFormatter, paths []string) (*graph.Graph, error) {
	if len(paths) == 0 {
		return nil, f.Fail(ExitCommandError, ErrCodeNoRegistry,
			"no declaration paths: pass them as arguments, with --registry or in registry.paths", nil)
	}

	res, err := loader.Load(paths...)
	if err != nil {
		return nil, reportLoadErrors(f, err)
	}
	f.VerboseLog("Loaded %d declaration(s) from %d file(s)", len(res.Records), len(res.Files))

	store := registry.New()
	if err := store.RegisterAll(res.Records); err != nil {
		return nil, reportDeclarationError(f, err)
	}

	g, err := graph.Build(store.All())
	if err != nil {
		return nil, reportDeclarationError(f, err)
	}

	return g, nil
}

// reportLoadErrors outputs every loader error. Load errors are command
// errors (exit code 2).
func reportLoadErrors(f *OutputFormatter, err error) error {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	code := loader.ErrCodeGeneric
	var first *loader.LoadError
	if errors.As(errs[0], &first) {
		code = first.Code
	}

	if f.Format == "json" {
		messages := make([]string, 0, len(errs))
		for _, e := range errs {
			messages = append(messages, e.Error())
		}
		_ = f.Error(code, loadErrorMessage(errs[0]), messages)
	} else {
		for _, e := range errs {
			c := loader.ErrCodeGeneric
			var le *loader.LoadError
			if errors.As(e, &le) {
				c = le.Code
			}
			fmt.Fprintf(f.Writer, "Error [%s]: %s\n", c, loadErrorMessage(e))
		}
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("%s: failed to load declarations (%d error(s))", code, len(errs)))
}

func loadErrorMessage(err error) string {
	var le *loader.LoadError
	if !errors.As(err, &le) {
		return err.Error()
	}
	switch {
	case le.Pos.IsValid():
		return fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), le.Message)
	case le.Path != "":
		return fmt.Sprintf("%s: %s", le.Path, le.Message)
	default:
		return le.Message
	}
}

// reportDeclarationError outputs every violation of a rejected declaration
// set. Rejected declarations are validation failures (exit code 1).
func reportDeclarationError(f *OutputFormatter, err error) error {
	de, ok := capability.AsDeclarationError(err)
	if !ok || len(de.Violations()) == 0 {
		return f.Fail(ExitCommandError, loader.ErrCodeGeneric, err.Error(), nil)
	}
	vs := de.Violations()

	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: vs},
			Error: &CLIError{
				Code:    vs[0].Code,
				Message: string(de.Kind()),
			},
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(f.Writer, "✗ Validation failed: %s\n\n", de.Kind())
		for _, v := range vs {
			fmt.Fprintf(f.Writer, "  %s\n", v)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(vs)))
}

// newEngine builds a negotiation engine over g whose catalog holds the
// configured client manifests.
func newEngine(cfg config.Config, g *graph.Graph, logger *slog.Logger, m *metrics.Metrics) *negotiate.Engine {
	sets := make([]capability.Set, 0, len(cfg.Catalog))
	for _, names := range cfg.Catalog {
		sets = append(sets, capability.NewSet(names...))
	}
	return negotiate.NewEngine(g,
		negotiate.WithLogger(logger),
		negotiate.WithMetrics(m),
		negotiate.WithCatalog(negotiate.NewCatalog(sets...)),
	)
}

// nonNil keeps empty lists as [] in JSON output.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
