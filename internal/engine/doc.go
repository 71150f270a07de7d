// Package engine implements the txgraph transactional object-graph engine.
//
// A Transaction holds a lazily loaded, change-tracked view of typed records
// and the relation end-points between them. Transactions nest: a sub
// transaction reads through its parent and commits into it, and the parent
// is read-only while the sub is active.
//
// ARCHITECTURE:
//
// Identity map: each transaction owns an arena of *Record keyed by
// ir.EntityID plus a separate map of ir.EndPointID to end-point state.
// Records reference each other only by id.
//
// Relation changes: every mutation computes the full list of affected
// end-points, emits RelationChanging for each in order, applies all changes
// at once, then emits RelationChanged in reverse order. No observer sees a
// half-updated relation.
//
// Notification bus: one tagged Event stream per transaction. Listeners,
// extensions, transaction handlers and record handlers are filtered
// projections of that stream.
//
// Commit: Committing rounds run to a fixpoint (observers may register more
// records through the Registrar), then CommitValidate and the built-in
// validator run on a PersistableData snapshot, then records are persisted to
// Storage (root) or copied into the parent (sub), then Committed fires.
//
// CONCURRENCY:
//
// The engine is single-threaded per transaction tree. Lazy loads are
// synchronous calls up the parent chain or to Storage. context.Context is
// only passed through to Storage and QueryExecutor. Every event is stamped
// with a sequence number from the engine Clock.
package engine
