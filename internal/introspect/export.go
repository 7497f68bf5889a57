// Package introspect exports the capability graph for tooling.
//
// The export is read-only and intended for development and staging. The
// HTTP handler withholds it unless explicitly allowed, and can require a
// bearer token.
package introspect

import (
	"encoding/json"

	"github.com/mordonez-me/capibara/internal/fingerprint"
	"github.com/mordonez-me/capibara/internal/graph"
)

// Snapshot is the serialized form of a graph.
type Snapshot struct {
	Fingerprint  string          `json:"fingerprint"`
	Capabilities []Entry         `json:"capabilities"`
	Features     []Feature       `json:"features"`
	Warnings     []graph.Warning `json:"warnings"`
}

// Entry is one exported capability.
type Entry struct {
	Name         string `json:"name"`
	Owner        string `json:"owner,omitempty"`
	IntroducedIn string `json:"introducedIn,omitempty"`
	Replaces     string `json:"replaces,omitempty"`
	Deprecated   bool   `json:"deprecated,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

// Feature is one lineage root and its members.
type Feature struct {
	Root    string   `json:"root"`
	Members []string `json:"members"`
}

// Export serializes g. Capabilities and features are ordered by name and
// the fingerprint covers every declared capability.
func Export(g *graph.Graph) Snapshot {
	s := Snapshot{
		Fingerprint:  fingerprint.Of(g.Names()).String(),
		Capabilities: []Entry{},
		Features:     []Feature{},
		Warnings:     g.Warnings(),
	}
	if s.Warnings == nil {
		s.Warnings = []graph.Warning{}
	}

	for _, r := range g.Records() {
		s.Capabilities = append(s.Capabilities, Entry{
			Name:         r.Name,
			Owner:        r.Owner,
			IntroducedIn: r.IntroducedIn,
			Replaces:     r.Replaces,
			Deprecated:   r.Deprecated,
			Priority:     r.Priority,
		})
	}
	for _, root := range g.Features() {
		s.Features = append(s.Features, Feature{Root: root, Members: g.Members(root)})
	}
	return s
}

// JSON renders s as indented JSON with a trailing newline.
func (s Snapshot) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
