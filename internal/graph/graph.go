package graph

import (
	"cmp"
	"slices"
	"strings"

	"github.com/mordonez-me/capibara/internal/capability"
)

// Graph is a validated, immutable capability graph.
//
// INVARIANTS (established by Build, never violated afterwards):
//   - every replaces target exists
//   - following replaces from any node reaches a root without revisiting
//   - siblings under one predecessor carry distinct positive priorities
//   - all slices handed out are copies
type Graph struct {
	records    map[string]capability.Record
	names      capability.Set
	successors map[string][]string // predecessor → direct replacements, priority desc then name
	lineage    map[string][]string // name → chain from root (oldest first) to name
	roots      []string
	warnings   []Warning
}

// Build validates records and constructs a Graph.
//
// Build is deterministic: the same records in any order produce graphs with
// identical Lineage, Successors and Features results. Records are copied;
// later mutation of the input slice does not affect the graph.
func Build(records []capability.Record) (*Graph, error) {
	if err := validate(records); err != nil {
		return nil, err
	}

	g := &Graph{
		records:    make(map[string]capability.Record, len(records)),
		successors: make(map[string][]string),
		lineage:    make(map[string][]string, len(records)),
	}

	names := make([]string, 0, len(records))
	for _, r := range records {
		g.records[r.Name] = r
		names = append(names, r.Name)
	}
	slices.Sort(names)
	g.names = capability.NewSet(names...)

	for _, name := range names {
		r := g.records[name]
		if r.IsRoot() {
			g.roots = append(g.roots, name)
			continue
		}
		g.successors[r.Replaces] = append(g.successors[r.Replaces], name)
	}
	for pred, kids := range g.successors {
		slices.SortFunc(kids, func(a, b string) int {
			if c := cmp.Compare(g.records[b].Priority, g.records[a].Priority); c != 0 {
				return c
			}
			return strings.Compare(a, b)
		})
		g.successors[pred] = kids
	}

	for _, name := range names {
		g.lineage[name] = g.walkToRoot(name)
	}

	g.warnings = collectWarnings(g)
	return g, nil
}

// walkToRoot follows replaces edges from name and returns the chain oldest
// first. Termination is guaranteed by cycle validation.
func (g *Graph) walkToRoot(name string) []string {
	var chain []string
	for cur := name; cur != ""; cur = g.records[cur].Replaces {
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain
}

// Len returns the number of capabilities.
func (g *Graph) Len() int {
	return g.names.Len()
}

// Has reports whether name is declared in the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.records[name]
	return ok
}

// Names returns the set of every declared name.
func (g *Graph) Names() capability.Set {
	return g.names
}

// Record returns the declaration for name.
func (g *Graph) Record(name string) (capability.Record, bool) {
	r, ok := g.records[name]
	return r, ok
}

// Records returns every declaration ordered by name.
func (g *Graph) Records() []capability.Record {
	out := make([]capability.Record, 0, len(g.records))
	for _, n := range g.names.Names() {
		out = append(out, g.records[n])
	}
	return out
}

// Lineage returns the chain from the root of name's feature down to name,
// oldest first. ok is false when name is not declared.
func (g *Graph) Lineage(name string) (chain []string, ok bool) {
	l, ok := g.lineage[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(l), true
}

// Depth returns the number of replaces edges between name and its root,
// or -1 when name is not declared.
func (g *Graph) Depth(name string) int {
	l, ok := g.lineage[name]
	if !ok {
		return -1
	}
	return len(l) - 1
}

// Successors returns the capabilities whose replaces points at name, i.e.
// its direct replacements, highest priority first. Empty when name has none
// or is not declared.
func (g *Graph) Successors(name string) []string {
	return slices.Clone(g.successors[name])
}

// Feature returns the root capability of name's lineage.
func (g *Graph) Feature(name string) (string, bool) {
	l, ok := g.lineage[name]
	if !ok {
		return "", false
	}
	return l[0], true
}

// Features returns every root capability ordered by name. Each root names
// one feature.
func (g *Graph) Features() []string {
	return slices.Clone(g.roots)
}

// Members returns every capability belonging to feature (its root and all
// descendants), ordered by name.
func (g *Graph) Members(feature string) []string {
	var out []string
	for _, n := range g.names.Names() {
		if l := g.lineage[n]; l[0] == feature {
			out = append(out, n)
		}
	}
	return out
}

// Timeline returns every declaration ordered by introducedIn (semantic
// version order), then by name. Records without a version sort first.
// For display only.
func (g *Graph) Timeline() []capability.Record {
	out := g.Records()
	slices.SortStableFunc(out, func(a, b capability.Record) int {
		va, okA, _ := a.Version()
		vb, okB, _ := b.Version()
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return -1
		case !okB:
			return 1
		}
		return va.Compare(vb)
	})
	return out
}

// Warnings returns non-fatal findings collected during Build.
func (g *Graph) Warnings() []Warning {
	return slices.Clone(g.warnings)
}
