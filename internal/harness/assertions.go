package harness

import (
	"fmt"
	"strings"

	"github.com/mordonez-me/capibara/internal/capability"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s effective=%v\n", event.Seq, event.Request, event.Outcome, event.Effective)
	}

	return buf.String()
}

// evaluateAssertions runs every assertion and returns the failures.
func evaluateAssertions(trace []TraceEvent, assertions []Assertion) []error {
	var errs []error
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertHasCapability:
			err = assertHasCapability(trace, a)
		case AssertSelects:
			err = assertSelects(trace, a)
		case AssertOutcomeCount:
			err = assertOutcomeCount(trace, a)
		case AssertSameFingerprint:
			err = assertSameFingerprint(trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func findEvent(trace []TraceEvent, request string) (TraceEvent, bool) {
	for _, e := range trace {
		if e.Request == request {
			return e, true
		}
	}
	return TraceEvent{}, false
}

func assertHasCapability(trace []TraceEvent, a Assertion) error {
	event, ok := findEvent(trace, a.Request)
	if !ok {
		return missingRequest(trace, a)
	}
	want := capability.CanonicalName(a.Capability)
	if capability.NewSet(event.Effective...).Has(want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertHasCapability,
		Expected: fmt.Sprintf("request %s has %s", a.Request, want),
		Actual:   fmt.Sprintf("effective set %v", event.Effective),
		Trace:    trace,
	}
}

func assertSelects(trace []TraceEvent, a Assertion) error {
	event, ok := findEvent(trace, a.Request)
	if !ok {
		return missingRequest(trace, a)
	}
	want := capability.CanonicalName(a.Capability)
	got, ok := selected(event, a.Feature)
	if !ok {
		got = "feature not declared"
	}
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertSelects,
		Expected: fmt.Sprintf("request %s selects %s for %s", a.Request, want, a.Feature),
		Actual:   got,
		Trace:    trace,
	}
}

func assertOutcomeCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range trace {
		if e.Outcome == a.Outcome {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutcomeCount,
		Expected: fmt.Sprintf("%d request(s) with outcome %s", a.Count, a.Outcome),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    trace,
	}
}

func assertSameFingerprint(trace []TraceEvent, a Assertion) error {
	var first TraceEvent
	for i, name := range a.Requests {
		event, ok := findEvent(trace, name)
		if !ok {
			return missingRequest(trace, Assertion{Type: a.Type, Request: name})
		}
		if i == 0 {
			first = event
			continue
		}
		if event.Fingerprint != first.Fingerprint {
			return &AssertionError{
				Type:     AssertSameFingerprint,
				Expected: fmt.Sprintf("%s and %s share a fingerprint", first.Request, name),
				Actual:   fmt.Sprintf("%s vs %s", first.Fingerprint, event.Fingerprint),
				Trace:    trace,
			}
		}
	}
	return nil
}

func missingRequest(trace []TraceEvent, a Assertion) error {
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("request %s in trace", a.Request),
		Actual:   "not found",
		Trace:    trace,
	}
}
