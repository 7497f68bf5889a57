package introspect

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mordonez-me/capibara/internal/graph"
)

// GraphSource yields the graph to export. *negotiate.Engine satisfies it.
type GraphSource interface {
	Graph() *graph.Graph
}

// Access controls who may read the export.
type Access struct {
	// Allowed must be true for the handler to serve anything.
	Allowed bool

	// Token, when set, must be presented as "Authorization: Bearer <token>".
	Token string
}

// Handler serves the export of src as JSON. Disallowed requests get 404 so
// production deployments do not reveal that the endpoint exists.
func Handler(src GraphSource, access Access, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !access.Allowed {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if access.Token != "" && !authorized(r, access.Token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="capibara"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		g := src.Graph()
		if g == nil {
			http.Error(w, "no capability graph loaded", http.StatusServiceUnavailable)
			return
		}

		body, err := Export(g).JSON()
		if err != nil {
			logger.Error("capability export failed", "error", err)
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(body)
	})
}

func authorized(r *http.Request, token string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
