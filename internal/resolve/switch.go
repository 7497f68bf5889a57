package resolve

// Switch dispatches a feature to the handler for its selected capability.
// It is the boundary interrupt: code below the chosen handler never checks
// capabilities itself.
//
//	pager := resolve.NewSwitch("feed.page.v1", pageHandler).
//		On("feed.cursor.v2", cursorHandler)
//	h := pager.Pick(result)
//
// When the selected capability has no handler, Pick falls back along the
// lineage toward the root, then to the baseline.
type Switch[T any] struct {
	feature  string
	baseline T
	handlers map[string]T
}

// NewSwitch creates a switch for the feature rooted at feature (any member
// of the lineage also works) with the given baseline handler.
func NewSwitch[T any](feature string, baseline T) *Switch[T] {
	return &Switch[T]{
		feature:  feature,
		baseline: baseline,
		handlers: make(map[string]T),
	}
}

// On registers h for capability. Returns s for chaining.
func (s *Switch[T]) On(capability string, h T) *Switch[T] {
	s.handlers[capability] = h
	return s
}

// Pick returns the handler for the capability r selected for the feature.
func (s *Switch[T]) Pick(r *Result) T {
	sel, ok := r.Select(s.feature)
	if !ok || sel.Baseline {
		return s.baseline
	}

	lineage, _ := r.Graph().Lineage(sel.Capability)
	for i := len(lineage) - 1; i >= 0; i-- {
		if h, ok := s.handlers[lineage[i]]; ok {
			return h
		}
	}
	return s.baseline
}
