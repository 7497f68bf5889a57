package capability

import (
	"slices"
	"strings"
)

// Set is an immutable set of canonical capability names.
//
// Members are kept sorted byte-wise (not locale-aware), which is the order
// fingerprint digests are computed in. The zero value is the empty set.
type Set struct {
	names []string
	index map[string]struct{}
}

// NewSet builds a Set from names in any order. Names are canonicalized and
// duplicates collapse. Empty names are dropped.
func NewSet(names ...string) Set {
	if len(names) == 0 {
		return Set{}
	}

	index := make(map[string]struct{}, len(names))
	sorted := make([]string, 0, len(names))
	for _, n := range names {
		n = CanonicalName(n)
		if n == "" {
			continue
		}
		if _, dup := index[n]; dup {
			continue
		}
		index[n] = struct{}{}
		sorted = append(sorted, n)
	}
	slices.Sort(sorted)

	return Set{names: sorted, index: index}
}

// Has reports whether name is a member. name is canonicalized first.
func (s Set) Has(name string) bool {
	if len(s.index) == 0 {
		return false
	}
	_, ok := s.index[CanonicalName(name)]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.names)
}

// IsEmpty reports whether the set has no members.
func (s Set) IsEmpty() bool {
	return len(s.names) == 0
}

// Names returns the members in byte-wise order. The slice is a copy.
func (s Set) Names() []string {
	return slices.Clone(s.names)
}

// Equal reports whether s and o have identical membership.
func (s Set) Equal(o Set) bool {
	return slices.Equal(s.names, o.names)
}

// Filter returns the subset of members for which keep returns true.
func (s Set) Filter(keep func(name string) bool) Set {
	kept := make([]string, 0, len(s.names))
	for _, n := range s.names {
		if keep(n) {
			kept = append(kept, n)
		}
	}
	return NewSet(kept...)
}

// String renders the set as a comma-separated list, the same form used on
// the wire.
func (s Set) String() string {
	return strings.Join(s.names, ",")
}
