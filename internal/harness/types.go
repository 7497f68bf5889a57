package harness

import "github.com/mordonez-me/capibara/internal/resolve"

// TraceEvent records what one request resolved to.
type TraceEvent struct {
	Seq         int64               `json:"seq"`
	Request     string              `json:"request"`
	Outcome     string              `json:"outcome"`
	ErrorCode   string              `json:"error_code,omitempty"`
	Fingerprint string              `json:"fingerprint"`
	Effective   []string            `json:"effective"`
	Ignored     []string            `json:"ignored"`
	Selections  []resolve.Selection `json:"selections"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// GraphFingerprint identifies the full declared set the scenario
	// negotiated against.
	GraphFingerprint string `json:"graph_fingerprint"`

	// Trace has one event per request, in request order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Event returns the trace event for the named request.
func (r *Result) Event(request string) (TraceEvent, bool) {
	return findEvent(r.Trace, request)
}
