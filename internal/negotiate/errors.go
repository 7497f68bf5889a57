package negotiate

import "fmt"

// Decode error codes (C200-C299). These are absorbed by the Engine and
// surface only through logs and metrics.
const (
	ErrCodeMalformedFingerprint = "C200"
	ErrCodeUnsupportedVersion   = "C201"
	ErrCodeMalformedList        = "C202"
	ErrCodeFingerprintMismatch  = "C203"
	ErrCodeTooLarge             = "C204"
)

// maxLoggedValue bounds how much of an offending header is kept.
const maxLoggedValue = 128

// NegotiationDecodeError reports a negotiation header that could not be
// decoded.
type NegotiationDecodeError struct {
	// Code identifies the error category.
	Code string

	// Header is the offending header name.
	Header string

	// Value is the offending value, truncated.
	Value string

	// Reason is the underlying error, if any.
	Reason error
}

func newDecodeError(code, header, value string, reason error) *NegotiationDecodeError {
	if len(value) > maxLoggedValue {
		value = value[:maxLoggedValue] + "..."
	}
	return &NegotiationDecodeError{Code: code, Header: header, Value: value, Reason: reason}
}

// Error implements the error interface.
func (e *NegotiationDecodeError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Header, e.Reason)
	}
	return fmt.Sprintf("%s: %s: undecodable value %q", e.Code, e.Header, e.Value)
}

// Unwrap returns the underlying reason.
func (e *NegotiationDecodeError) Unwrap() error {
	return e.Reason
}
