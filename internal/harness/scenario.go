package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mordonez-me/capibara/internal/capability"
)

// Scenario defines a negotiation conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Registry lists declaration paths handed to the loader. Relative
	// paths are resolved against the scenario file's directory.
	Registry []string `yaml:"registry,omitempty"`

	// Declarations are inline records added to those loaded from Registry.
	Declarations []capability.Record `yaml:"declarations,omitempty"`

	// Catalog lists the capability sets a hash-only request may name.
	Catalog [][]string `yaml:"catalog,omitempty"`

	// Requests are negotiated in order.
	Requests []RequestStep `yaml:"requests"`

	// Assertions are evaluated against the finished trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RequestStep is one inbound negotiation event.
type RequestStep struct {
	// Name identifies the request in assertions and the trace.
	Name string `yaml:"name"`

	// Headers are the inbound negotiation headers. Keys are matched
	// case-insensitively.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Expect, when set, is checked right after the request resolves.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause is what a request must resolve to. Empty fields are not
// checked.
type ExpectClause struct {
	// Outcome is one of resolved, absent, unknown_fingerprint, decode_error.
	Outcome string `yaml:"outcome,omitempty"`

	// ErrorCode is the decode error code (C200-C204).
	ErrorCode string `yaml:"error_code,omitempty"`

	// Effective is the exact expected effective set.
	Effective []string `yaml:"effective,omitempty"`

	// Ignored is the exact expected set of unknown advertised names.
	Ignored []string `yaml:"ignored,omitempty"`

	// Selections maps feature → selected capability, or "baseline".
	// Features not listed are not checked.
	Selections map[string]string `yaml:"selections,omitempty"`
}

// Assertion validates the finished trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Request names the request (has_capability, selects).
	Request string `yaml:"request,omitempty"`

	// Requests lists request names (same_fingerprint).
	Requests []string `yaml:"requests,omitempty"`

	// Feature is the feature root (selects).
	Feature string `yaml:"feature,omitempty"`

	// Capability is the capability expected (has_capability, selects).
	Capability string `yaml:"capability,omitempty"`

	// Outcome and Count are used by outcome_count.
	Outcome string `yaml:"outcome,omitempty"`
	Count   int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertHasCapability   = "has_capability"
	AssertSelects         = "selects"
	AssertOutcomeCount    = "outcome_count"
	AssertSameFingerprint = "same_fingerprint"
)

// Baseline is the selection value meaning no capability was selected.
const Baseline = "baseline"

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so that typos fail loudly. Relative registry paths are made
// relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Registry {
		if !filepath.IsAbs(p) {
			scenario.Registry[i] = filepath.Join(base, p)
		}
	}

	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// Validate checks required fields and assertion shapes. All problems are
// returned joined.
func (s *Scenario) Validate() error {
	var errs []error

	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Registry) == 0 && len(s.Declarations) == 0 {
		errs = append(errs, errors.New("registry or declarations is required"))
	}
	if len(s.Requests) == 0 {
		errs = append(errs, errors.New("at least one request is required"))
	}

	seen := make(map[string]bool, len(s.Requests))
	for i, r := range s.Requests {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("requests[%d]: name is required", i))
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("requests[%d]: duplicate name %q", i, r.Name))
		}
		seen[r.Name] = true
	}

	for i, a := range s.Assertions {
		if err := a.validate(seen); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

func (a Assertion) validate(requests map[string]bool) error {
	switch a.Type {
	case AssertHasCapability:
		if a.Capability == "" {
			return errors.New("has_capability requires capability")
		}
		return checkRequest(a.Request, requests)
	case AssertSelects:
		if a.Feature == "" || a.Capability == "" {
			return errors.New("selects requires feature and capability")
		}
		return checkRequest(a.Request, requests)
	case AssertOutcomeCount:
		if a.Outcome == "" {
			return errors.New("outcome_count requires outcome")
		}
		if a.Count < 0 {
			return errors.New("outcome_count requires a non-negative count")
		}
		return nil
	case AssertSameFingerprint:
		if len(a.Requests) < 2 {
			return errors.New("same_fingerprint requires at least two requests")
		}
		for _, r := range a.Requests {
			if err := checkRequest(r, requests); err != nil {
				return err
			}
		}
		return nil
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func checkRequest(name string, requests map[string]bool) error {
	if name == "" {
		return errors.New("request is required")
	}
	if !requests[name] {
		return fmt.Errorf("unknown request %q", name)
	}
	return nil
}
