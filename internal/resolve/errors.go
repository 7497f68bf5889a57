package resolve

import (
	"fmt"
	"strings"
)

// ErrCodeResolutionAmbiguity is reserved for lineages whose selection cannot
// be decided. Graph validation rejects unordered branches, so the current
// selection walk never produces it.
const ErrCodeResolutionAmbiguity = "C300"

// ResolutionAmbiguityError reports a feature with more than one equally
// eligible capability.
type ResolutionAmbiguityError struct {
	Feature    string
	Candidates []string
}

func (e *ResolutionAmbiguityError) Error() string {
	return fmt.Sprintf("%s: feature %q has no single selection among %s",
		ErrCodeResolutionAmbiguity, e.Feature, strings.Join(e.Candidates, ", "))
}
