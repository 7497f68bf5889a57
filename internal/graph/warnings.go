package graph

import "fmt"

// Warning codes (W100-W199). Warnings never block a build.
const (
	WarnVersionRegression = "W100" // successor introduced before its predecessor
	WarnDeprecatedNewest  = "W101" // newest capability of a lineage is deprecated
)

// Warning is a non-fatal finding about the declarations.
//
// Warnings are reported, not rejected: backports can legitimately carry an
// older introducedIn.
type Warning struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// String implements fmt.Stringer.
func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Code, w.Name, w.Message)
}

func collectWarnings(g *Graph) []Warning {
	var warnings []Warning

	for _, name := range g.names.Names() {
		r := g.records[name]

		if !r.IsRoot() {
			pred := g.records[r.Replaces]
			vs, okS, _ := r.Version()
			vp, okP, _ := pred.Version()
			if okS && okP && vs.LessThan(vp) {
				warnings = append(warnings, Warning{
					Code:    WarnVersionRegression,
					Name:    name,
					Message: fmt.Sprintf("introduced in %s, before the %s it replaces (%s)", vs, pred.Name, vp),
				})
			}
		}

		if r.Deprecated && len(g.successors[name]) == 0 {
			warnings = append(warnings, Warning{
				Code:    WarnDeprecatedNewest,
				Name:    name,
				Message: "deprecated but nothing replaces it",
			})
		}
	}

	return warnings
}
