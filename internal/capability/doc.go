// Package capability provides the foundational types for capability negotiation.
//
// This package contains the declaration record, the immutable capability set,
// name canonicalization and the declaration error taxonomy. Every other
// internal package imports capability; capability imports nothing internal.
//
// Key constraints:
//   - Names are dotted identifiers in Unicode NFC form. The NUL byte and the
//     comma are never valid inside a name, so both can serve as separators
//     on the wire and inside fingerprint digests.
//   - A Set is immutable and always sorted byte-wise. Two sets built from the
//     same members in any order are indistinguishable.
//   - introducedIn is display metadata. Resolution never reads it.
package capability
