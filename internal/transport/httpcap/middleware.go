// Package httpcap carries capability negotiation over net/http: a server
// middleware that resolves every inbound request and a client RoundTripper
// that advertises the local capability set.
package httpcap

import (
	"log/slog"
	"net/http"

	"github.com/mordonez-me/capibara/internal/negotiate"
)

// Option configures the middleware.
type Option func(*middleware)

type middleware struct {
	engine        *negotiate.Engine
	logger        *slog.Logger
	ids           IDGenerator
	echoEffective bool
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *middleware) { m.logger = l }
}

// WithIDGenerator sets the generator used when a request carries no
// X-Request-Id. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *middleware) { m.ids = g }
}

// WithEffectiveHeader controls whether the fingerprint of the effective set
// is echoed in the x-capability-effective response header. Default: true.
func WithEffectiveHeader(on bool) Option {
	return func(m *middleware) { m.echoEffective = on }
}

// Middleware negotiates every request against e and attaches the result to
// the request context, where negotiate.HasCapability reads it. It never
// rejects a request.
func Middleware(e *negotiate.Engine, opts ...Option) func(http.Handler) http.Handler {
	m := &middleware{
		engine:        e,
		logger:        slog.Default(),
		ids:           UUIDv7Generator{},
		echoEffective: true,
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(HeaderRequestID)
			if reqID == "" {
				reqID = m.ids.Generate()
			}

			n := m.engine.Negotiate(r.Header)

			m.logger.Debug("capability negotiation",
				"request_id", reqID,
				"outcome", string(n.Outcome),
				"effective", n.Result.Fingerprint().String(),
				"ignored", n.Result.Ignored().Len(),
			)

			w.Header().Set(HeaderRequestID, reqID)
			if m.echoEffective {
				w.Header().Set(negotiate.HeaderEffective, n.Result.Fingerprint().String())
			}

			next.ServeHTTP(w, r.WithContext(negotiate.WithResult(r.Context(), n.Result)))
		})
	}
}
