// Package registry holds the process's declared capability records.
//
// A Store is an explicit object owned by the process bootstrap and passed by
// reference to whoever builds graphs from it. There is no package-level
// registry. Writers are serialized; every insert is all-or-nothing.
package registry

import (
	"slices"
	"strings"
	"sync"

	"github.com/mordonez-me/capibara/internal/capability"
)

// Store is the capability record store.
//
// Records are only ever added. Names are never removed or renamed, which
// keeps fingerprints computed against older snapshots interpretable.
//
// Thread-safety: all methods are safe for concurrent use. Registration is
// expected at startup; runtime registration must be followed by a full
// graph rebuild (see negotiate.Engine.Publish).
type Store struct {
	mu      sync.RWMutex
	records map[string]capability.Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[string]capability.Record)}
}

// Register adds one record.
//
// Returns *capability.InvalidRecordError when fields are malformed and
// *capability.DuplicateNameError when the name is already present. On error
// the store is unchanged.
func (s *Store) Register(r capability.Record) error {
	return s.RegisterAll([]capability.Record{r})
}

// RegisterAll adds records atomically: either every record is inserted or
// none is. Every collision is reported, both against existing records and
// within the batch.
func (s *Store) RegisterAll(records []capability.Record) error {
	if err := capability.CheckRecords(records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(records))
	var dups []string
	for _, r := range records {
		_, exists := s.records[r.Name]
		if (exists || seen[r.Name]) && !slices.Contains(dups, r.Name) {
			dups = append(dups, r.Name)
		}
		seen[r.Name] = true
	}
	if len(dups) > 0 {
		slices.Sort(dups)
		return &capability.DuplicateNameError{Names: dups}
	}

	for _, r := range records {
		s.records[r.Name] = normalize(r)
	}
	return nil
}

// Get returns the record called name.
func (s *Store) Get(name string) (capability.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[name]
	return r, ok
}

// All returns a snapshot of every record ordered by name (byte-wise).
// The ordering is stable so graph construction and fingerprinting see the
// same sequence on every call.
func (s *Store) All() []capability.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]capability.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b capability.Record) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Names returns the set of registered names.
func (s *Store) Names() capability.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.records))
	for n := range s.records {
		names = append(names, n)
	}
	return capability.NewSet(names...)
}

// Len returns the number of registered records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func normalize(r capability.Record) capability.Record {
	r.Owner = strings.TrimSpace(r.Owner)
	r.IntroducedIn = strings.TrimSpace(r.IntroducedIn)
	return r
}
