package capability

import (
	"errors"
	"fmt"
	"strings"
)

// Declaration error codes (C100-C199). Raised only while building a graph
// or registering records; fatal to process startup.
const (
	ErrCodeInvalidRecord      = "C100" // malformed field on a single record
	ErrCodeDuplicateName      = "C101" // two records share a name
	ErrCodeDanglingReference  = "C102" // replaces points at an undeclared name
	ErrCodeCycle              = "C103" // replaces chain revisits a node
	ErrCodeAmbiguousSuccessor = "C104" // sibling replacements without distinct priorities
	ErrCodeRemovedName        = "C105" // a rebuild drops a name the active graph declares
)

// Kind classifies a declaration error.
type Kind string

const (
	KindInvalidRecord      Kind = "invalid_record"
	KindDuplicateName      Kind = "duplicate_name"
	KindDanglingReference  Kind = "dangling_reference"
	KindCycle              Kind = "cycle"
	KindAmbiguousSuccessor Kind = "ambiguous_successor"
	KindRemovedName        Kind = "removed_name"
)

// Violation is one offending node within a declaration error.
type Violation struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Field   string   `json:"field,omitempty"`
	Target  string   `json:"target,omitempty"`
	Path    []string `json:"path,omitempty"`
	Message string   `json:"message"`
}

// String implements fmt.Stringer.
func (v Violation) String() string {
	if v.Field != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", v.Code, v.Name, v.Field, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Code, v.Name, v.Message)
}

// DeclarationError is implemented by every error that rejects a set of
// capability declarations. Violations enumerates every offending node,
// not just the first one.
type DeclarationError interface {
	error
	Kind() Kind
	Violations() []Violation
}

// AsDeclarationError unwraps err into a DeclarationError.
func AsDeclarationError(err error) (DeclarationError, bool) {
	var de DeclarationError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// InvalidRecordError lists records whose fields are malformed.
type InvalidRecordError struct {
	Problems []Violation
}

func (e *InvalidRecordError) Kind() Kind { return KindInvalidRecord }
func (e *InvalidRecordError) Violations() []Violation { return e.Problems }

func (e *InvalidRecordError) Error() string {
	return summarize(KindInvalidRecord, e.Problems)
}

// DuplicateNameError lists every name declared more than once.
type DuplicateNameError struct {
	Names []string
}

func (e *DuplicateNameError) Kind() Kind { return KindDuplicateName }

func (e *DuplicateNameError) Violations() []Violation {
	out := make([]Violation, 0, len(e.Names))
	for _, n := range e.Names {
		out = append(out, Violation{
			Code:    ErrCodeDuplicateName,
			Name:    n,
			Message: fmt.Sprintf("capability %q is declared more than once", n),
		})
	}
	return out
}

func (e *DuplicateNameError) Error() string {
	return summarize(KindDuplicateName, e.Violations())
}

// DanglingReference is a replaces edge whose target was never declared.
type DanglingReference struct {
	Name    string `json:"name"`
	Missing string `json:"missing"`
}

// DanglingReferenceError lists every replaces edge to an undeclared name.
type DanglingReferenceError struct {
	References []DanglingReference
}

func (e *DanglingReferenceError) Kind() Kind { return KindDanglingReference }

func (e *DanglingReferenceError) Violations() []Violation {
	out := make([]Violation, 0, len(e.References))
	for _, ref := range e.References {
		out = append(out, Violation{
			Code:    ErrCodeDanglingReference,
			Name:    ref.Name,
			Field:   "replaces",
			Target:  ref.Missing,
			Message: fmt.Sprintf("replaces undeclared capability %q", ref.Missing),
		})
	}
	return out
}

func (e *DanglingReferenceError) Error() string {
	return summarize(KindDanglingReference, e.Violations())
}

// CycleError lists every cycle found along replaces edges. Each cycle is
// ordered along the edges and rotated to start at its smallest name.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Kind() Kind { return KindCycle }

func (e *CycleError) Violations() []Violation {
	out := make([]Violation, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		if len(c) == 0 {
			continue
		}
		path := append(append([]string{}, c...), c[0])
		out = append(out, Violation{
			Code:    ErrCodeCycle,
			Name:    c[0],
			Path:    c,
			Message: "replaces cycle: " + strings.Join(path, " → "),
		})
	}
	return out
}

func (e *CycleError) Error() string {
	return summarize(KindCycle, e.Violations())
}

// Branch is a predecessor with more than one direct replacement.
type Branch struct {
	Predecessor string   `json:"predecessor"`
	Successors  []string `json:"successors"`
}

// AmbiguousSuccessorError lists predecessors replaced by several records
// that do not all declare distinct positive priorities. Without explicit
// priorities the most-derived capability of a lineage is not well defined.
type AmbiguousSuccessorError struct {
	Branches []Branch
}

func (e *AmbiguousSuccessorError) Kind() Kind { return KindAmbiguousSuccessor }

func (e *AmbiguousSuccessorError) Violations() []Violation {
	out := make([]Violation, 0, len(e.Branches))
	for _, b := range e.Branches {
		out = append(out, Violation{
			Code:    ErrCodeAmbiguousSuccessor,
			Name:    b.Predecessor,
			Path:    b.Successors,
			Message: fmt.Sprintf("replaced by %s without distinct priorities", strings.Join(b.Successors, ", ")),
		})
	}
	return out
}

func (e *AmbiguousSuccessorError) Error() string {
	return summarize(KindAmbiguousSuccessor, e.Violations())
}

// RemovedNameError lists names declared in the active graph that a
// replacement record set no longer declares. Names are never removed or
// renamed; retire them with deprecated instead.
type RemovedNameError struct {
	Names []string
}

func (e *RemovedNameError) Kind() Kind { return KindRemovedName }

func (e *RemovedNameError) Violations() []Violation {
	out := make([]Violation, 0, len(e.Names))
	for _, n := range e.Names {
		out = append(out, Violation{
			Code:    ErrCodeRemovedName,
			Name:    n,
			Message: "declared capability is missing from the new declarations; mark it deprecated instead",
		})
	}
	return out
}

func (e *RemovedNameError) Error() string {
	return summarize(KindRemovedName, e.Violations())
}

func summarize(kind Kind, vs []Violation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d violation(s)", kind, len(vs))
	for _, v := range vs {
		b.WriteString("\n  ")
		b.WriteString(v.String())
	}
	return b.String()
}
