// Package resolve maps what a caller advertises onto the local capability
// graph.
//
// Resolution is a pure function of an Incoming advertisement and an
// immutable *graph.Graph. It never fails on empty or unknown capabilities:
// those are valid negotiation states that select baseline behavior. The only
// failure is an advertisement whose fingerprint does not match its own
// capability list.
//
// Per feature (a lineage rooted at a capability with no replaces), the
// selected capability is the most-derived one present in the effective set.
// Where the graph branches, the walk from the root descends into the
// highest-priority child that leads to a present capability.
package resolve
