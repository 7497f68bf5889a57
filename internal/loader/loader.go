// Package loader reads capability declarations from CUE packages and YAML
// files.
//
// CUE declarations are a struct keyed by capability name:
//
//	capabilities: {
//		"feed.page.v1": {owner: "feed", introducedIn: "1.0.0"}
//		"feed.cursor.v2": {owner: "feed", introducedIn: "1.4.0", replaces: "feed.page.v1"}
//	}
//
// YAML declarations are a list:
//
//	capabilities:
//	  - name: feed.page.v1
//	    owner: feed
//	    introducedIn: 1.0.0
//
// The loader only parses. Cross-record validation belongs to the registry
// and the graph.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/mordonez-me/capibara/internal/capability"
)

// Error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No declaration files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build or schema check failed
	ErrCodeDecode      = "E007" // Declaration could not be decoded
)

// schema constrains the shape of CUE declarations. #Capability is closed,
// so misspelled fields are rejected.
const schema = `
#Capability: {
	name?:         string
	owner?:        string
	introducedIn?: string
	replaces?:     string
	deprecated?:   bool
	priority?:     int & >=0
}
capabilities?: [string]: #Capability
`

// Result contains the records loaded from a set of paths.
type Result struct {
	Records []capability.Record
	Files   []string // every file read, in load order
}

// LoadError represents an error that occurred while loading declarations.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads every path. A directory contributes its CUE package and its
// .yaml/.yml files; a file is read according to its extension. All errors
// are collected and returned joined; each is a *LoadError.
func Load(paths ...string) (*Result, error) {
	result := &Result{}
	var errs []error

	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			errs = append(errs, &LoadError{Code: ErrCodeNotFound, Path: p, Message: "path not found"})
			continue
		}
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeNotFound, Path: p, Message: err.Error()})
			continue
		}

		if info.IsDir() {
			errs = append(errs, loadDir(p, result)...)
			continue
		}

		switch filepath.Ext(p) {
		case ".cue":
			errs = append(errs, loadCUE(filepath.Dir(p), []string{filepath.Base(p)}, result)...)
		case ".yaml", ".yml":
			errs = append(errs, loadYAML(p, result)...)
		default:
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Path: p, Message: "unsupported file type, want .cue, .yaml or .yml"})
		}
	}

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

func loadDir(dir string, result *Result) []error {
	cueFiles, yamlFiles, err := FindFiles(dir)
	if err != nil {
		return []error{&LoadError{Code: ErrCodeScanError, Path: dir, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 && len(yamlFiles) == 0 {
		return []error{&LoadError{Code: ErrCodeNoFiles, Path: dir, Message: "no .cue, .yaml or .yml files found"}}
	}

	var errs []error
	if len(cueFiles) > 0 {
		errs = append(errs, loadCUE(dir, []string{"."}, result)...)
	}
	for _, f := range yamlFiles {
		errs = append(errs, loadYAML(f, result)...)
	}
	return errs
}

// FindFiles returns the CUE and YAML files directly inside dir, sorted.
func FindFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch filepath.Ext(e.Name()) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, path)
		}
	}
	slices.Sort(cueFiles)
	slices.Sort(yamlFiles)
	return cueFiles, yamlFiles, nil
}

func loadCUE(dir string, args []string, result *Result) []error {
	ctx := cuecontext.New()
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return []error{&LoadError{Code: ErrCodeLoadFailed, Path: dir, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return []error{&LoadError{Code: ErrCodeLoadFailed, Path: dir, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return convertCUEError(ErrCodeBuildFailed, err)
	}

	value = value.Unify(ctx.CompileString(schema))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return convertCUEError(ErrCodeBuildFailed, err)
	}

	for _, f := range inst.BuildFiles {
		result.Files = append(result.Files, f.Filename)
	}

	capsVal := value.LookupPath(cue.ParsePath("capabilities"))
	if !capsVal.Exists() {
		return nil
	}

	iter, err := capsVal.Fields()
	if err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Path: dir, Message: fmt.Sprintf("iterating capabilities: %v", err)}}
	}

	var errs []error
	for iter.Next() {
		var r capability.Record
		if err := iter.Value().Decode(&r); err != nil {
			errs = append(errs, &LoadError{
				Code:    ErrCodeDecode,
				Message: fmt.Sprintf("capabilities.%q: %v", iter.Label(), err),
				Pos:     iter.Value().Pos(),
			})
			continue
		}

		label := iter.Label()
		if r.Name != "" && r.Name != label {
			errs = append(errs, &LoadError{
				Code:    ErrCodeDecode,
				Message: fmt.Sprintf("capabilities.%q: name field %q does not match its key", label, r.Name),
				Pos:     iter.Value().Pos(),
			})
			continue
		}
		r.Name = label
		result.Records = append(result.Records, canonical(r))
	}
	return errs
}

type yamlFile struct {
	Capabilities []capability.Record `yaml:"capabilities"`
}

func loadYAML(path string, result *Result) []error {
	data, err := os.ReadFile(path)
	if err != nil {
		return []error{&LoadError{Code: ErrCodeNotFound, Path: path, Message: err.Error()}}
	}
	result.Files = append(result.Files, path)

	var f yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return []error{&LoadError{Code: ErrCodeDecode, Path: path, Message: err.Error()}}
	}

	for _, r := range f.Capabilities {
		result.Records = append(result.Records, canonical(r))
	}
	return nil
}

func canonical(r capability.Record) capability.Record {
	r.Name = capability.CanonicalName(r.Name)
	r.Replaces = capability.CanonicalName(r.Replaces)
	return r
}

// convertCUEError flattens a CUE error list into LoadErrors with positions.
func convertCUEError(code string, err error) []error {
	var out []error
	for _, e := range cueerrors.Errors(err) {
		out = append(out, &LoadError{
			Code:    code,
			Message: e.Error(),
			Pos:     e.Position(),
		})
	}
	if len(out) == 0 {
		out = append(out, &LoadError{Code: code, Message: err.Error()})
	}
	return out
}
