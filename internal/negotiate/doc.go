// Package negotiate implements the capability negotiation contract: the
// header encoding exchanged between parties, the engine that turns an
// inbound carrier into a resolve.Result, and the outbound advertiser.
//
// Wire format:
//
//	x-capability-hash: v1:<64 lowercase hex>
//	x-capabilities:    feed.page.v1,feed.cursor.v2
//
// Negotiation never fails. Absent, unknown or undecodable values resolve
// to baseline behavior and are counted, not returned.
package negotiate
