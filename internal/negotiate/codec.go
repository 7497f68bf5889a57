package negotiate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/fingerprint"
)

// Limits on inbound headers.
const (
	MaxListEntries = 512
	MaxHeaderBytes = 8192
)

// Advertisement is a decoded carrier.
type Advertisement struct {
	// Fingerprint is set when the hash header was present.
	Fingerprint fingerprint.Fingerprint

	// Set holds the enumerated capabilities when HasList is true.
	Set capability.Set

	// HasList is true when the capabilities header was present.
	HasList bool

	// Malformed lists entries of the list that are not valid capability
	// names. They stay in Set, so the hash check covers them and they
	// resolve as ignored.
	Malformed []string
}

// Present reports whether any negotiation header was found.
func (a Advertisement) Present() bool {
	return a.HasList || !a.Fingerprint.IsZero()
}

// Decode reads the negotiation headers from c.
//
// A present-but-empty header counts as absent. When both headers are
// present the hash must match the list.
func Decode(c Carrier) (Advertisement, error) {
	var ad Advertisement

	if raw := strings.TrimSpace(c.Get(HeaderHash)); raw != "" {
		if len(raw) > MaxHeaderBytes {
			return Advertisement{}, newDecodeError(ErrCodeTooLarge, HeaderHash, raw, nil)
		}
		fp, err := fingerprint.Parse(raw)
		if err != nil {
			code := ErrCodeMalformedFingerprint
			if errors.Is(err, fingerprint.ErrUnsupportedVersion) {
				code = ErrCodeUnsupportedVersion
			}
			return Advertisement{}, newDecodeError(code, HeaderHash, raw, err)
		}
		ad.Fingerprint = fp
	}

	if raw := strings.TrimSpace(c.Get(HeaderCapabilities)); raw != "" {
		set, malformed, err := decodeList(raw)
		if err != nil {
			return Advertisement{}, err
		}
		ad.Set = set
		ad.Malformed = malformed
		ad.HasList = true
	}

	if ad.HasList && !ad.Fingerprint.IsZero() {
		if want := fingerprint.Of(ad.Set); !want.Equal(ad.Fingerprint) {
			return Advertisement{}, newDecodeError(ErrCodeFingerprintMismatch, HeaderHash, ad.Fingerprint.String(),
				fmt.Errorf("list hashes to %s", want))
		}
	}

	return ad, nil
}

func decodeList(raw string) (set capability.Set, malformed []string, err error) {
	if len(raw) > MaxHeaderBytes {
		return capability.Set{}, nil, newDecodeError(ErrCodeTooLarge, HeaderCapabilities, raw, nil)
	}

	parts := strings.Split(raw, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		name := capability.CanonicalName(p)
		if name == "" {
			continue
		}
		if capability.CheckName(name) != nil {
			malformed = append(malformed, name)
		}
		names = append(names, name)
	}
	if len(names) > MaxListEntries {
		return capability.Set{}, nil, newDecodeError(ErrCodeTooLarge, HeaderCapabilities, raw,
			fmt.Errorf("%d entries exceeds limit of %d", len(names), MaxListEntries))
	}

	return capability.NewSet(names...), malformed, nil
}

// Inject writes s and its fingerprint onto c.
func Inject(c Carrier, s capability.Set) {
	writeHeaders(c, fingerprint.Of(s), s)
}

func writeHeaders(c Carrier, fp fingerprint.Fingerprint, s capability.Set) {
	c.Set(HeaderHash, fp.String())
	if !s.IsEmpty() {
		c.Set(HeaderCapabilities, s.String())
	}
}
