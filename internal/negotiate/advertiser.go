package negotiate

import (
	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/fingerprint"
	"github.com/mordonez-me/capibara/internal/graph"
)

// Advertiser is the outbound side: it attaches the locally active capability
// set to calls a client makes.
type Advertiser struct {
	set capability.Set
	fp  fingerprint.Fingerprint
}

// NewAdvertiser advertises s.
func NewAdvertiser(s capability.Set) *Advertiser {
	return &Advertiser{set: s, fp: fingerprint.Of(s)}
}

// AdvertiserFromGraph advertises every capability declared in g.
func AdvertiserFromGraph(g *graph.Graph) *Advertiser {
	if g == nil {
		return NewAdvertiser(capability.Set{})
	}
	return NewAdvertiser(g.Names())
}

// CapabilityHash returns the wire form of the local fingerprint.
func (a *Advertiser) CapabilityHash() string {
	return a.fp.String()
}

// Capabilities returns the advertised set.
func (a *Advertiser) Capabilities() capability.Set {
	return a.set
}

// Inject writes the negotiation headers onto c.
func (a *Advertiser) Inject(c Carrier) {
	writeHeaders(c, a.fp, a.set)
}
