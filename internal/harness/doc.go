// Package harness runs negotiation conformance scenarios.
//
// A scenario declares a capability graph, a sequence of inbound requests
// described by their negotiation headers, and what each request must
// resolve to. The harness builds the graph, drives every request through a
// real negotiate.Engine and records one trace event per request. The trace
// is deterministic: the same scenario always yields byte-identical golden
// output, which is how two implementations of the wire contract are
// compared.
//
// # Scenario Format
//
//	name: feed_rollout
//	description: "Old and new clients against the feed lineage"
//	registry:
//	  - ../capabilities            # relative to the scenario file
//	declarations:                  # inline records, merged with registry
//	  - name: search.basic.v1
//	catalog:                       # sets a hash-only request may name
//	  - [feed.page.v1, feed.cursor.v2]
//	requests:
//	  - name: modern_client
//	    headers:
//	      x-capabilities: feed.page.v1,feed.cursor.v3
//	    expect:
//	      outcome: resolved
//	      selections:
//	        feed.page.v1: feed.cursor.v3
//	assertions:
//	  - type: selects
//	    request: modern_client
//	    feature: feed.page.v1
//	    capability: feed.cursor.v3
//
// # Assertion Types
//
//   - has_capability: the request's effective set contains capability
//   - selects: the request selected capability (or "baseline") for feature
//   - outcome_count: exactly count requests ended with outcome
//   - same_fingerprint: every listed request has the same effective fingerprint
//
// Golden files hold the JSON trace and live in testdata/golden. Regenerate
// them with:
//
//	go test ./internal/harness -update
package harness
