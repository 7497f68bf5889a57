package capability

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Record is one declared capability: a named structural contract that may
// supersede exactly one older capability.
//
// Records are immutable once published. Deprecation is a flag, never a
// removal, so fingerprints computed against an older registry snapshot stay
// interpretable.
type Record struct {
	// Name is the globally unique dotted identifier (e.g. "feed.cursor.v2").
	Name string `json:"name" yaml:"name" jsonschema:"required,description=Globally unique dotted capability name"`

	// Owner is informational only.
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty" jsonschema:"description=Owning team or person"`

	// IntroducedIn is a semantic version used for ordering and display.
	IntroducedIn string `json:"introducedIn,omitempty" yaml:"introducedIn,omitempty" jsonschema:"description=Semantic version that introduced the capability"`

	// Replaces names the single older capability this one supersedes.
	// Empty for a root capability.
	Replaces string `json:"replaces,omitempty" yaml:"replaces,omitempty" jsonschema:"description=Name of the capability this one supersedes"`

	// Deprecated marks the capability as retired. It stays resolvable.
	Deprecated bool `json:"deprecated,omitempty" yaml:"deprecated,omitempty" jsonschema:"description=Retired but still resolvable"`

	// Priority orders sibling replacements of the same predecessor.
	// Only meaningful, and then required, when a predecessor has more than
	// one direct replacement. Higher wins.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty" jsonschema:"minimum=0,description=Tie-break among sibling replacements (higher wins)"`
}

// IsRoot reports whether r starts a lineage.
func (r Record) IsRoot() bool {
	return r.Replaces == ""
}

// Version parses IntroducedIn. ok is false when the field is empty.
func (r Record) Version() (v *semver.Version, ok bool, err error) {
	raw := strings.TrimSpace(r.IntroducedIn)
	if raw == "" {
		return nil, false, nil
	}
	v, err = semver.NewVersion(raw)
	if err != nil {
		return nil, false, fmt.Errorf("introducedIn %q: %w", raw, err)
	}
	return v, true, nil
}

// CheckRecord validates the fields of a single record in isolation.
// Cross-record rules (duplicates, references, cycles) belong to the graph.
// Returns all problems found (does not fail-fast).
func CheckRecord(r Record) []Violation {
	var problems []Violation

	if err := CheckName(r.Name); err != nil {
		problems = append(problems, Violation{
			Code:    ErrCodeInvalidRecord,
			Name:    r.Name,
			Field:   "name",
			Message: err.Error(),
		})
	}

	if r.Replaces != "" {
		if err := CheckName(r.Replaces); err != nil {
			problems = append(problems, Violation{
				Code:    ErrCodeInvalidRecord,
				Name:    r.Name,
				Field:   "replaces",
				Message: err.Error(),
			})
		}
	}

	if _, _, err := r.Version(); err != nil {
		problems = append(problems, Violation{
			Code:    ErrCodeInvalidRecord,
			Name:    r.Name,
			Field:   "introducedIn",
			Message: err.Error(),
		})
	}

	if r.Priority < 0 {
		problems = append(problems, Violation{
			Code:    ErrCodeInvalidRecord,
			Name:    r.Name,
			Field:   "priority",
			Message: fmt.Sprintf("priority must not be negative, got %d", r.Priority),
		})
	}

	return problems
}

// CheckRecords validates every record and returns an *InvalidRecordError
// listing all problems, or nil.
func CheckRecords(records []Record) error {
	var problems []Violation
	for _, r := range records {
		problems = append(problems, CheckRecord(r)...)
	}
	if len(problems) == 0 {
		return nil
	}
	return &InvalidRecordError{Problems: problems}
}
