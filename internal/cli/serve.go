package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mordonez-me/capibara/internal/config"
	"github.com/mordonez-me/capibara/internal/introspect"
	"github.com/mordonez-me/capibara/internal/loader"
	"github.com/mordonez-me/capibara/internal/metrics"
	"github.com/mordonez-me/capibara/internal/negotiate"
	"github.com/mordonez-me/capibara/internal/transport/httpcap"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// IDGenerator allows overriding request ids (for testing).
	// If nil, defaults to httpcap.UUIDv7Generator.
	IDGenerator httpcap.IDGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve capability negotiation over HTTP",
		Long: `Serve capability negotiation over HTTP for development and staging.

Endpoints:
  /negotiate      echoes what the request's capability headers resolve to
  /capabilities   graph export (withheld unless introspection is allowed)
  /metrics        Prometheus metrics
  /health         liveness

SIGHUP reloads the declarations; a rejected reload keeps the active graph.

Example:
  capibara serve --registry ./capabilities --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	logger := cfg.Logger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	paths := registryPaths(opts.RootOptions, cfg, nil)
	g, err := loadGraph(formatter, paths)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeServe, err.Error(), nil)
	}
	e := newEngine(cfg, g, logger, m)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newServeHandler(e, cfg, reg, logger, opts.IDGenerator),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		for {
			select {
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					slog.Info("received SIGHUP, reloading declarations", "paths", paths)
					_ = reloadGraph(e, paths)
					continue
				}
				slog.Info("received signal, shutting down", "signal", sig)
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("capibara serving",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"introspection", cfg.IntrospectionAllowed(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", cfg.Server.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return formatter.Fail(ExitCommandError, ErrCodeServe, err.Error(), nil)
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "server shutdown failed", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newServeHandler wires the serve endpoints around e.
func newServeHandler(e *negotiate.Engine, cfg config.Config, reg *prometheus.Registry, logger *slog.Logger, ids httpcap.IDGenerator) http.Handler {
	mwOpts := []httpcap.Option{
		httpcap.WithLogger(logger),
		httpcap.WithEffectiveHeader(cfg.Environment != config.EnvProduction),
	}
	if ids != nil {
		mwOpts = append(mwOpts, httpcap.WithIDGenerator(ids))
	}
	negotiated := httpcap.Middleware(e, mwOpts...)

	access := introspect.Access{
		Allowed: cfg.IntrospectionAllowed(),
		Token:   cfg.Introspection.Token,
	}

	mux := http.NewServeMux()
	mux.Handle("/negotiate", negotiated(http.HandlerFunc(negotiationHandler)))
	mux.Handle("/capabilities", introspect.Handler(e, access, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// negotiationHandler reports the result the middleware attached.
func negotiationHandler(w http.ResponseWriter, r *http.Request) {
	res := negotiate.FromContext(r.Context())

	body := ResolveResult{
		Fingerprint: res.Fingerprint().String(),
		Effective:   nonNil(res.Effective().Names()),
		Ignored:     nonNil(res.Ignored().Names()),
		Selections:  res.Selections(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// reloadGraph re-reads paths and swaps the engine's graph. Any failure
// keeps the active graph and is counted as a failed reload.
func reloadGraph(e *negotiate.Engine, paths []string) error {
	res, err := loader.Load(paths...)
	if err != nil {
		e.ReloadFailed(err)
		return err
	}
	return e.Reload(res.Records)
}
