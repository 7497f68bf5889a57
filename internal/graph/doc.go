// Package graph builds the validated capability graph.
//
// A Graph is built once from a snapshot of declared records and is
// read-only afterwards. Concurrent readers never coordinate. Reloading means
// calling Build again on the full record set and publishing the new Graph;
// there is no incremental patching.
//
// Build validates in a fixed order and stops at the first class with
// violations, reporting every violation of that class:
//
//  0. invalid record       (capability.InvalidRecordError)
//  1. duplicate name       (capability.DuplicateNameError)
//  2. dangling reference   (capability.DanglingReferenceError)
//  3. cycle                (capability.CycleError)
//  4. ambiguous successor  (capability.AmbiguousSuccessorError)
//
// Each record has at most one direct ancestor (the replaces field is
// singular), so every capability has exactly one lineage back to its root.
// A root names a feature. Several records may replace the same predecessor
// only if each declares a distinct positive priority.
package graph
