package httpcap

import (
	"net/http"

	"github.com/mordonez-me/capibara/internal/negotiate"
)

// Transport is an http.RoundTripper that advertises capabilities on every
// outbound request.
type Transport struct {
	// Base is the underlying transport. Default: http.DefaultTransport.
	Base http.RoundTripper

	// Advertiser supplies the headers. Required.
	Advertiser *negotiate.Advertiser
}

// RoundTrip implements http.RoundTripper. The request is cloned; the
// caller's headers are not modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	out := req.Clone(req.Context())
	t.Advertiser.Inject(out.Header)
	return base.RoundTrip(out)
}

// NewClient returns an *http.Client whose requests advertise a.
func NewClient(a *negotiate.Advertiser) *http.Client {
	return &http.Client{Transport: &Transport{Advertiser: a}}
}
