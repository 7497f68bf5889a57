package negotiate

import (
	"sync"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/fingerprint"
)

// Catalog maps fingerprints to the capability sets that produced them.
//
// A fingerprint alone is not invertible. The catalog lets a hash-only
// request resolve when its set is known in advance: the empty set, the
// configured client manifests and the engine's active local set. Only the
// latest local set is kept, so the catalog is bounded by configuration.
type Catalog struct {
	mu    sync.RWMutex
	sets  map[string]capability.Set
	local string // fingerprint of the active local set
	set   capability.Set
}

// NewCatalog returns a catalog holding the empty set and sets.
func NewCatalog(sets ...capability.Set) *Catalog {
	c := &Catalog{sets: make(map[string]capability.Set, len(sets)+1)}
	c.Add(capability.Set{})
	for _, s := range sets {
		c.Add(s)
	}
	return c
}

// Add records s and returns its fingerprint.
func (c *Catalog) Add(s capability.Set) fingerprint.Fingerprint {
	fp := fingerprint.Of(s)
	c.mu.Lock()
	c.sets[fp.String()] = s
	c.mu.Unlock()
	return fp
}

// SetLocal replaces the local set and returns its fingerprint.
func (c *Catalog) SetLocal(s capability.Set) fingerprint.Fingerprint {
	fp := fingerprint.Of(s)
	c.mu.Lock()
	c.local = fp.String()
	c.set = s
	c.mu.Unlock()
	return fp
}

// Lookup returns the set whose fingerprint is fp.
func (c *Catalog) Lookup(fp fingerprint.Fingerprint) (capability.Set, bool) {
	if c == nil {
		return capability.Set{}, false
	}
	key := fp.String()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.sets[key]; ok {
		return s, true
	}
	if c.local != "" && c.local == key {
		return c.set, true
	}
	return capability.Set{}, false
}

// Len returns the number of known sets.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.sets)
	if _, dup := c.sets[c.local]; c.local != "" && !dup {
		n++
	}
	return n
}
