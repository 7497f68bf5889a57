package capability

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds a single capability name in bytes.
const MaxNameLength = 200

// namePattern matches dotted identifiers: one or more segments of letters,
// digits, underscores or hyphens separated by single dots.
var namePattern = regexp.MustCompile(`^[\p{L}\p{N}_-]+(\.[\p{L}\p{N}_-]+)*$`)

// CanonicalName trims surrounding whitespace and NFC-normalizes name.
//
// Clients on different platforms may hand us the same visible name in
// different Unicode forms; digests are computed over canonical names only.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// CheckName reports why name is not a valid capability name, or nil.
// The name must already be canonical.
func CheckName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("name is required")
	case len(name) > MaxNameLength:
		return fmt.Errorf("name exceeds %d bytes", MaxNameLength)
	case !norm.NFC.IsNormalString(name):
		return fmt.Errorf("name %q is not in Unicode NFC form", name)
	case !namePattern.MatchString(name):
		return fmt.Errorf("name %q must be dot-separated segments of letters, digits, '_' or '-'", name)
	}
	return nil
}

// ValidName reports whether name is a valid canonical capability name.
func ValidName(name string) bool {
	return CheckName(name) == nil
}
