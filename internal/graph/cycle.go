package graph

import (
	"slices"
	"strings"
)

// node marking for the depth-first walk.
const (
	unvisited = iota
	visiting
	visited
)

// findCycles performs a depth-first traversal from every node following
// replaces edges and returns every cycle found.
//
// Each node has at most one outgoing edge, so the traversal from a start node
// is a single path. A node marked visiting is on the active path; reaching
// one again closes a cycle made of the path suffix starting at that node.
// Nodes marked visited were fully explored from an earlier start and cannot
// lead to a new cycle.
//
// Cycles are ordered along the edges and rotated to start at their smallest
// name, so the same cycle is always reported the same way.
func findCycles(names []string, replaces map[string]string) [][]string {
	state := make(map[string]int, len(names))
	var cycles [][]string

	for _, start := range names {
		if state[start] != unvisited {
			continue
		}

		var path []string
		current := start
		for {
			if state[current] == visiting {
				idx := slices.Index(path, current)
				cycles = append(cycles, rotateToMin(path[idx:]))
				break
			}
			if state[current] == visited {
				break
			}

			state[current] = visiting
			path = append(path, current)

			next, ok := replaces[current]
			if !ok || next == "" {
				break
			}
			current = next
		}

		for _, n := range path {
			state[n] = visited
		}
	}

	slices.SortFunc(cycles, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})
	return cycles
}

// rotateToMin returns a copy of cycle starting at its smallest element.
func rotateToMin(cycle []string) []string {
	minIdx := 0
	for i, n := range cycle {
		if n < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[minIdx:]...)
	out = append(out, cycle[:minIdx]...)
	return out
}
