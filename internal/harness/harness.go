package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/fingerprint"
	"github.com/mordonez-me/capibara/internal/graph"
	"github.com/mordonez-me/capibara/internal/loader"
	"github.com/mordonez-me/capibara/internal/negotiate"
	"github.com/mordonez-me/capibara/internal/registry"
	"github.com/mordonez-me/capibara/internal/resolve"
)

// Harness drives scenario requests through a negotiation engine.
// Sequence numbers come from a counter, so traces never depend on time.
type Harness struct {
	engine *negotiate.Engine
	logger *slog.Logger
	seq    int64
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes engine logs to l. By default they are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run builds the scenario's graph and negotiates every request in order.
//
// An error is returned only when the scenario cannot run at all (its
// declarations do not load or do not form a valid graph). Expectation and
// assertion failures are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	g, err := buildGraph(scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	sets := make([]capability.Set, 0, len(scenario.Catalog))
	for _, names := range scenario.Catalog {
		sets = append(sets, capability.NewSet(names...))
	}

	h := &Harness{
		engine: negotiate.NewEngine(g,
			negotiate.WithLogger(o.logger),
			negotiate.WithCatalog(negotiate.NewCatalog(sets...)),
		),
		logger: o.logger,
	}

	result := NewResult()
	result.GraphFingerprint = fingerprint.Of(g.Names()).String()

	for _, step := range scenario.Requests {
		event := h.negotiate(step)
		result.Trace = append(result.Trace, event)
		if step.Expect != nil {
			for _, msg := range checkExpect(event, *step.Expect) {
				result.AddError(fmt.Sprintf("request %s: %s", step.Name, msg))
			}
		}
	}

	for _, err := range evaluateAssertions(result.Trace, scenario.Assertions) {
		result.AddError(err.Error())
	}

	return result, nil
}

func buildGraph(scenario *Scenario) (*graph.Graph, error) {
	var records []capability.Record
	if len(scenario.Registry) > 0 {
		res, err := loader.Load(scenario.Registry...)
		if err != nil {
			return nil, err
		}
		records = res.Records
	}
	records = append(records, scenario.Declarations...)

	store := registry.New()
	if err := store.RegisterAll(records); err != nil {
		return nil, err
	}
	return graph.Build(store.All())
}

func (h *Harness) negotiate(step RequestStep) TraceEvent {
	carrier := negotiate.MapCarrier{}
	for k, v := range step.Headers {
		carrier.Set(k, v)
	}

	n := h.engine.Negotiate(carrier)
	h.seq++

	event := TraceEvent{
		Seq:         h.seq,
		Request:     step.Name,
		Outcome:     string(n.Outcome),
		Fingerprint: n.Result.Fingerprint().String(),
		Effective:   nonNil(n.Result.Effective().Names()),
		Ignored:     nonNil(n.Result.Ignored().Names()),
		Selections:  n.Result.Selections(),
	}
	if event.Selections == nil {
		event.Selections = []resolve.Selection{}
	}

	var de *negotiate.NegotiationDecodeError
	if errors.As(n.Err, &de) {
		event.ErrorCode = de.Code
	}

	h.logger.Debug("scenario request negotiated",
		"request", step.Name,
		"outcome", event.Outcome,
		"fingerprint", event.Fingerprint,
	)
	return event
}

// checkExpect compares an event against its expect clause and returns one
// message per mismatch.
func checkExpect(e TraceEvent, want ExpectClause) []string {
	var msgs []string

	if want.Outcome != "" && want.Outcome != e.Outcome {
		msgs = append(msgs, fmt.Sprintf("outcome: expected %s, got %s", want.Outcome, e.Outcome))
	}
	if want.ErrorCode != "" && want.ErrorCode != e.ErrorCode {
		msgs = append(msgs, fmt.Sprintf("error_code: expected %s, got %q", want.ErrorCode, e.ErrorCode))
	}
	if want.Effective != nil {
		if expected := capability.NewSet(want.Effective...).Names(); !slices.Equal(expected, e.Effective) {
			msgs = append(msgs, fmt.Sprintf("effective: expected %v, got %v", expected, e.Effective))
		}
	}
	if want.Ignored != nil {
		if expected := capability.NewSet(want.Ignored...).Names(); !slices.Equal(expected, e.Ignored) {
			msgs = append(msgs, fmt.Sprintf("ignored: expected %v, got %v", expected, e.Ignored))
		}
	}

	features := make([]string, 0, len(want.Selections))
	for f := range want.Selections {
		features = append(features, f)
	}
	sort.Strings(features)
	for _, f := range features {
		got, ok := selected(e, f)
		if !ok {
			msgs = append(msgs, fmt.Sprintf("selections: feature %s is not declared", f))
			continue
		}
		if expected := capability.CanonicalName(want.Selections[f]); got != expected {
			msgs = append(msgs, fmt.Sprintf("selections: %s expected %s, got %s", f, expected, got))
		}
	}

	return msgs
}

// selected returns the capability the event selected for feature, or
// Baseline.
func selected(e TraceEvent, feature string) (string, bool) {
	feature = capability.CanonicalName(feature)
	for _, sel := range e.Selections {
		if sel.Feature != feature {
			continue
		}
		if sel.Baseline {
			return Baseline, true
		}
		return sel.Capability, true
	}
	return "", false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
