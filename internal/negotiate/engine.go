package negotiate

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/graph"
	"github.com/mordonez-me/capibara/internal/metrics"
	"github.com/mordonez-me/capibara/internal/registry"
	"github.com/mordonez-me/capibara/internal/resolve"
)

// Outcome classifies a negotiation event.
type Outcome string

const (
	// OutcomeResolved means an advertised set was resolved.
	OutcomeResolved Outcome = metrics.OutcomeResolved

	// OutcomeAbsent means no negotiation header was presented.
	OutcomeAbsent Outcome = metrics.OutcomeAbsent

	// OutcomeUnknownFingerprint means only a hash was presented and the
	// catalog does not know it.
	OutcomeUnknownFingerprint Outcome = metrics.OutcomeUnknownFingerprint

	// OutcomeDecodeError means a header was present but undecodable.
	OutcomeDecodeError Outcome = metrics.OutcomeDecodeError
)

// Negotiation is the outcome of one inbound negotiation event. Result is
// never nil; Err holds the absorbed decode error, if any.
type Negotiation struct {
	Result  *resolve.Result
	Outcome Outcome
	Err     error
}

// Engine resolves inbound carriers against the active graph.
//
// CONCURRENCY:
//   - Negotiate and Graph are lock-free; the graph is read from an atomic
//     pointer and never mutated
//   - Reload and Publish are serialized; each builds a complete new graph
//     and publishes it with a single atomic store
//
// In-flight negotiations keep the graph they loaded, so none ever observes
// a partially updated graph.
type Engine struct {
	graph   atomic.Pointer[graph.Graph]
	writeMu sync.Mutex

	catalog *Catalog
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics sink. Default: none.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithCatalog sets the fingerprint catalog used for hash-only requests.
// The active local capability set is always held in it.
func WithCatalog(c *Catalog) EngineOption {
	return func(e *Engine) {
		e.catalog = c
	}
}

// NewEngine creates an Engine serving g.
func NewEngine(g *graph.Graph, opts ...EngineOption) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalog == nil {
		e.catalog = NewCatalog()
	}
	e.swap(g)
	return e
}

// Graph returns the active graph.
func (e *Engine) Graph() *graph.Graph {
	return e.graph.Load()
}

// Catalog returns the engine's fingerprint catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Advertiser returns an advertiser for every capability in the active graph.
func (e *Engine) Advertiser() *Advertiser {
	return AdvertiserFromGraph(e.Graph())
}

func (e *Engine) size() int {
	if g := e.Graph(); g != nil {
		return g.Len()
	}
	return 0
}

func (e *Engine) swap(g *graph.Graph) {
	e.graph.Store(g)
	if g != nil {
		fp := e.catalog.SetLocal(g.Names())
		e.logger.Info("capability graph active",
			"capabilities", g.Len(),
			"features", len(g.Features()),
			"fingerprint", fp.String(),
		)
		for _, w := range g.Warnings() {
			e.logger.Warn("capability declaration warning", "code", w.Code, "name", w.Name, "message", w.Message)
		}
	}
}

// rebuild builds a graph from records and checks that it still declares
// every name of the active graph. Callers hold writeMu.
func (e *Engine) rebuild(records []capability.Record) (*graph.Graph, error) {
	g, err := graph.Build(records)
	if err != nil {
		return nil, err
	}
	if active := e.Graph(); active != nil {
		var removed []string
		for _, name := range active.Names().Names() {
			if !g.Has(name) {
				removed = append(removed, name)
			}
		}
		if len(removed) > 0 {
			return nil, &capability.RemovedNameError{Names: removed}
		}
	}
	return g, nil
}

// Reload rebuilds the graph from records and publishes it. records must
// declare every name of the active graph. On failure the active graph is
// kept and the declaration error is returned.
func (e *Engine) Reload(records []capability.Record) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	g, err := e.rebuild(records)
	if err != nil {
		e.reloadFailed(err)
		return err
	}

	e.swap(g)
	e.metrics.ObserveReload(true, g.Len())
	return nil
}

// ReloadFailed records a reload that never reached Reload, such as
// declarations that could not be read. The active graph is kept.
func (e *Engine) ReloadFailed(err error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.reloadFailed(err)
}

func (e *Engine) reloadFailed(err error) {
	e.logger.Error("capability graph rebuild failed, keeping active graph", "error", err)
	e.metrics.ObserveReload(false, e.size())
}

// Publish adds r to the active graph at runtime. The candidate graph is
// the active graph's records plus r; it is swapped in only if valid.
func (e *Engine) Publish(r capability.Record) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	store := registry.New()
	if active := e.Graph(); active != nil {
		if err := store.RegisterAll(active.Records()); err != nil {
			e.reloadFailed(err)
			return err
		}
	}
	if err := store.Register(r); err != nil {
		e.reloadFailed(err)
		return err
	}

	g, err := e.rebuild(store.All())
	if err != nil {
		e.reloadFailed(err)
		return err
	}

	e.logger.Info("capability published", "name", r.Name, "replaces", r.Replaces)
	e.swap(g)
	e.metrics.ObserveReload(true, g.Len())
	return nil
}

// Negotiate decodes c and resolves it against the active graph. It never
// fails: every problem degrades to a baseline result.
func (e *Engine) Negotiate(c Carrier) Negotiation {
	start := time.Now()
	g := e.Graph()

	n := e.negotiate(c, g)

	e.metrics.ObserveNegotiation(string(n.Outcome), n.Result.Ignored().Len(), time.Since(start))
	return n
}

func (e *Engine) negotiate(c Carrier, g *graph.Graph) Negotiation {
	ad, err := Decode(c)
	if err != nil {
		return e.absorb(g, err)
	}
	if !ad.Present() {
		return Negotiation{Result: resolve.Baseline(g), Outcome: OutcomeAbsent}
	}

	if len(ad.Malformed) > 0 {
		e.logger.Debug("ill-formed capability names ignored", "code", ErrCodeMalformedList, "count", len(ad.Malformed))
		e.metrics.ObserveDecodeError(ErrCodeMalformedList)
	}

	in := resolve.Incoming{Fingerprint: ad.Fingerprint, Set: ad.Set}
	if !ad.HasList {
		set, ok := e.catalog.Lookup(ad.Fingerprint)
		if !ok {
			e.logger.Debug("capability fingerprint not in catalog", "fingerprint", ad.Fingerprint.String())
			return Negotiation{Result: resolve.Baseline(g), Outcome: OutcomeUnknownFingerprint}
		}
		in.Set = set
	}
	if in.Set.IsEmpty() {
		// An advertised empty set carries nothing beyond absence.
		return Negotiation{Result: resolve.Baseline(g), Outcome: OutcomeAbsent}
	}

	r, err := resolve.Resolve(in, g)
	if err != nil {
		if errors.Is(err, resolve.ErrFingerprintMismatch) {
			err = newDecodeError(ErrCodeFingerprintMismatch, HeaderHash, ad.Fingerprint.String(), err)
		}
		return e.absorb(g, err)
	}
	return Negotiation{Result: r, Outcome: OutcomeResolved}
}

func (e *Engine) absorb(g *graph.Graph, err error) Negotiation {
	code := "unknown"
	var de *NegotiationDecodeError
	if errors.As(err, &de) {
		code = de.Code
	}
	e.logger.Debug("capability negotiation degraded to baseline", "code", code, "error", err)
	e.metrics.ObserveDecodeError(code)
	return Negotiation{Result: resolve.Baseline(g), Outcome: OutcomeDecodeError, Err: err}
}
