package graph

import (
	"slices"
	"strings"

	"github.com/mordonez-me/capibara/internal/capability"
)

// validate runs every validation class in order and returns the first class
// that has violations, with all of its violations.
func validate(records []capability.Record) error {
	// Class 0: malformed fields.
	if err := capability.CheckRecords(records); err != nil {
		return err
	}

	// Class 1: duplicate names.
	if err := checkDuplicates(records); err != nil {
		return err
	}

	byName := make(map[string]capability.Record, len(records))
	replaces := make(map[string]string, len(records))
	names := make([]string, 0, len(records))
	for _, r := range records {
		byName[r.Name] = r
		replaces[r.Name] = r.Replaces
		names = append(names, r.Name)
	}
	slices.Sort(names)

	// Class 2: dangling references.
	if err := checkDangling(names, byName); err != nil {
		return err
	}

	// Class 3: cycles.
	if cycles := findCycles(names, replaces); len(cycles) > 0 {
		return &capability.CycleError{Cycles: cycles}
	}

	// Class 4: branch points without explicit priorities.
	return checkBranches(names, byName)
}

func checkDuplicates(records []capability.Record) error {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		counts[r.Name]++
	}

	var dups []string
	for name, n := range counts {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	if len(dups) == 0 {
		return nil
	}
	slices.Sort(dups)
	return &capability.DuplicateNameError{Names: dups}
}

func checkDangling(names []string, byName map[string]capability.Record) error {
	var refs []capability.DanglingReference
	for _, name := range names {
		target := byName[name].Replaces
		if target == "" {
			continue
		}
		if _, ok := byName[target]; !ok {
			refs = append(refs, capability.DanglingReference{Name: name, Missing: target})
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return &capability.DanglingReferenceError{References: refs}
}

func checkBranches(names []string, byName map[string]capability.Record) error {
	children := make(map[string][]string)
	for _, name := range names {
		if p := byName[name].Replaces; p != "" {
			children[p] = append(children[p], name)
		}
	}

	var branches []capability.Branch
	for _, pred := range names {
		kids := children[pred]
		if len(kids) < 2 {
			continue
		}
		if distinctPriorities(kids, byName) {
			continue
		}
		branches = append(branches, capability.Branch{Predecessor: pred, Successors: kids})
	}
	if len(branches) == 0 {
		return nil
	}
	slices.SortFunc(branches, func(a, b capability.Branch) int {
		return strings.Compare(a.Predecessor, b.Predecessor)
	})
	return &capability.AmbiguousSuccessorError{Branches: branches}
}

func distinctPriorities(kids []string, byName map[string]capability.Record) bool {
	seen := make(map[int]bool, len(kids))
	for _, k := range kids {
		p := byName[k].Priority
		if p <= 0 || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
