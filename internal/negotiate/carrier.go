package negotiate

import "strings"

// Header names.
const (
	HeaderHash         = "x-capability-hash"
	HeaderCapabilities = "x-capabilities"
	HeaderEffective    = "x-capability-effective"
)

// Carrier is a string-keyed header bag. http.Header satisfies it directly;
// transports with other shapes wrap themselves.
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// MapCarrier is a Carrier over a plain map. Keys are case-insensitive.
type MapCarrier map[string]string

// Get implements Carrier.
func (m MapCarrier) Get(key string) string {
	return m[strings.ToLower(key)]
}

// Set implements Carrier.
func (m MapCarrier) Set(key, value string) {
	m[strings.ToLower(key)] = value
}
