// Package harness runs scenario files against a real engine.
//
// A scenario names a CUE schema, seeds an in-memory SQLite store, then
// replays a list of steps (new, set, link, add, remove, replace, delete,
// commit, rollback, sub, discard) through one transaction tree. Every event
// of the tree is captured by an engine.TraceRecorder; assertions check the
// trace (trace_contains, trace_order, trace_count) and the final records
// (final_state). Golden files pin whole traces:
//
//	go test ./internal/harness -update
//
// Steps run in an engine.Scope: "sub" enters a new sub-transaction and
// every later step targets it until a commit, rollback or discard ends it.
package harness
