package resolve

import (
	"errors"
	"fmt"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/fingerprint"
	"github.com/mordonez-me/capibara/internal/graph"
)

// ErrFingerprintMismatch is returned when an advertisement carries both a
// fingerprint and a capability list that disagree.
var ErrFingerprintMismatch = errors.New("fingerprint does not match advertised capabilities")

// Incoming is what the remote party advertised.
//
// Set is always the carrier of the capabilities. Fingerprint is optional; a
// fingerprint on its own is not invertible and must be expanded into a Set
// (for example through a catalog) before resolution.
type Incoming struct {
	Fingerprint fingerprint.Fingerprint
	Set         capability.Set
}

// FromSet advertises s without a fingerprint.
func FromSet(s capability.Set) Incoming {
	return Incoming{Set: s}
}

// FromNames advertises the given names without a fingerprint.
func FromNames(names ...string) Incoming {
	return Incoming{Set: capability.NewSet(names...)}
}

// WithFingerprint returns a copy of in carrying fp.
func (in Incoming) WithFingerprint(fp fingerprint.Fingerprint) Incoming {
	in.Fingerprint = fp
	return in
}

// Selection is the outcome of version selection for one feature.
type Selection struct {
	// Feature is the root capability of the lineage.
	Feature string `json:"feature"`

	// Capability is the selected capability, or "" for baseline.
	Capability string `json:"capability,omitempty"`

	// Baseline is true when no capability of the lineage is present.
	Baseline bool `json:"baseline"`
}

// Result is the immutable outcome of one negotiation event.
//
// A nil *Result behaves as a baseline result against an empty graph:
// HasCapability is always false and Select reports nothing.
type Result struct {
	graph       *graph.Graph
	effective   capability.Set
	ignored     capability.Set
	fingerprint fingerprint.Fingerprint
	selections  map[string]Selection // feature → selection
}

// Resolve computes the effective set of in against g and selects a
// capability per feature.
func Resolve(in Incoming, g *graph.Graph) (*Result, error) {
	if !in.Fingerprint.IsZero() {
		if want := fingerprint.Of(in.Set); !in.Fingerprint.Equal(want) {
			return nil, fmt.Errorf("%w: got %s, list hashes to %s", ErrFingerprintMismatch, in.Fingerprint, want)
		}
	}
	return newResult(g, in.Set), nil
}

// Baseline returns the result used when nothing was advertised or the
// advertisement could not be decoded.
func Baseline(g *graph.Graph) *Result {
	return newResult(g, capability.Set{})
}

func newResult(g *graph.Graph, advertised capability.Set) *Result {
	r := &Result{graph: g}

	if g == nil {
		r.ignored = advertised
		r.fingerprint = fingerprint.Of(r.effective)
		return r
	}

	r.effective = advertised.Filter(g.Has)
	r.ignored = advertised.Filter(func(name string) bool { return !g.Has(name) })
	r.fingerprint = fingerprint.Of(r.effective)
	r.selections = selectAll(g, r.effective)
	return r
}

// HasCapability reports whether name is in the effective set. This is the
// single decision point feature code consults.
func (r *Result) HasCapability(name string) bool {
	if r == nil {
		return false
	}
	return r.effective.Has(name)
}

// Effective returns the intersection of the advertised set with the graph.
func (r *Result) Effective() capability.Set {
	if r == nil {
		return capability.Set{}
	}
	return r.effective
}

// Ignored returns advertised names the local graph does not know.
func (r *Result) Ignored() capability.Set {
	if r == nil {
		return capability.Set{}
	}
	return r.ignored
}

// Fingerprint returns the fingerprint of the effective set.
func (r *Result) Fingerprint() fingerprint.Fingerprint {
	if r == nil {
		return fingerprint.Of(capability.Set{})
	}
	return r.fingerprint
}

// Select returns the selection for the feature that name belongs to. name
// may be the feature root or any capability in its lineage. ok is false when
// name is not declared in the graph.
func (r *Result) Select(name string) (Selection, bool) {
	if r == nil || r.graph == nil {
		return Selection{}, false
	}
	feature, ok := r.graph.Feature(capability.CanonicalName(name))
	if !ok {
		return Selection{}, false
	}
	return r.selections[feature], true
}

// Selections returns the selection for every feature, ordered by feature.
func (r *Result) Selections() []Selection {
	if r == nil || r.graph == nil {
		return nil
	}
	features := r.graph.Features()
	out := make([]Selection, 0, len(features))
	for _, f := range features {
		out = append(out, r.selections[f])
	}
	return out
}

// Graph returns the graph the result was resolved against.
func (r *Result) Graph() *graph.Graph {
	if r == nil {
		return nil
	}
	return r.graph
}
