// Package fingerprint computes the compact, versioned digest a client sends
// to identify its capability set.
//
// Format: "v1:" + lowercase hex of
//
//	SHA256(Domain + 0x00 + join(sorted canonical names, 0x00))
//
// The version tag on the wire and the version suffix in the domain string
// allow a future algorithm to coexist with v1 during migration.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mordonez-me/capibara/internal/capability"
)

// Algorithm identity.
const (
	Version = "v1"
	Domain  = "capibara/capability-set/v1"
)

// Sentinel parse errors.
var (
	ErrMalformed          = errors.New("malformed capability fingerprint")
	ErrUnsupportedVersion = errors.New("unsupported capability fingerprint version")
)

// Fingerprint is a parsed or computed capability set digest.
// The zero value is not a valid fingerprint; see IsZero.
type Fingerprint struct {
	version string
	digest  [sha256.Size]byte
}

// Of computes the fingerprint of s. Sets with equal membership always hash
// equally regardless of how they were built.
func Of(s capability.Set) Fingerprint {
	h := sha256.New()
	h.Write([]byte(Domain))
	h.Write([]byte{0x00})
	for i, n := range s.Names() {
		if i > 0 {
			h.Write([]byte{0x00})
		}
		h.Write([]byte(n))
	}

	fp := Fingerprint{version: Version}
	copy(fp.digest[:], h.Sum(nil))
	return fp
}

// Compute is shorthand for Of(capability.NewSet(names...)).
func Compute(names ...string) Fingerprint {
	return Of(capability.NewSet(names...))
}

// Parse decodes the wire form "<version>:<hex>". Only v1 is understood.
func Parse(s string) (Fingerprint, error) {
	version, hexDigest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || version == "" {
		return Fingerprint{}, fmt.Errorf("%w: missing version tag in %q", ErrMalformed, s)
	}
	if version != Version {
		return Fingerprint{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	if len(hexDigest) != hex.EncodedLen(sha256.Size) {
		return Fingerprint{}, fmt.Errorf("%w: digest must be %d hex characters", ErrMalformed, hex.EncodedLen(sha256.Size))
	}
	if strings.ToLower(hexDigest) != hexDigest {
		return Fingerprint{}, fmt.Errorf("%w: digest must be lowercase hex", ErrMalformed)
	}

	fp := Fingerprint{version: version}
	if _, err := hex.Decode(fp.digest[:], []byte(hexDigest)); err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fp, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(s string) Fingerprint {
	fp, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return fp
}

// String returns the wire form, or "" for the zero value.
func (f Fingerprint) String() string {
	if f.IsZero() {
		return ""
	}
	return f.version + ":" + hex.EncodeToString(f.digest[:])
}

// IsZero reports whether f was never computed or parsed.
func (f Fingerprint) IsZero() bool {
	return f.version == ""
}

// Equal compares version and digest.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.version == o.version && bytes.Equal(f.digest[:], o.digest[:])
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the zero value.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*f = Fingerprint{}
		return nil
	}
	fp, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}
