package resolve

import (
	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/graph"
)

// selectAll picks one capability per feature.
func selectAll(g *graph.Graph, present capability.Set) map[string]Selection {
	// leads holds every node that is present or has a present descendant.
	leads := make(map[string]bool, present.Len()*2)
	for _, name := range present.Names() {
		lineage, _ := g.Lineage(name)
		for _, n := range lineage {
			leads[n] = true
		}
	}

	out := make(map[string]Selection, len(g.Features()))
	for _, root := range g.Features() {
		out[root] = selectFeature(g, root, present, leads)
	}
	return out
}

// selectFeature walks from root toward the leaves. At every node it follows
// the first successor (highest priority) that leads to a present
// capability, and keeps the last present node seen on that path.
func selectFeature(g *graph.Graph, root string, present capability.Set, leads map[string]bool) Selection {
	sel := Selection{Feature: root, Baseline: true}
	if !leads[root] {
		return sel
	}

	for cur := root; cur != ""; {
		if present.Has(cur) {
			sel.Capability = cur
			sel.Baseline = false
		}
		next := ""
		for _, child := range g.Successors(cur) {
			if leads[child] {
				next = child
				break
			}
		}
		cur = next
	}
	return sel
}
