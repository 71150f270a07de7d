// Package store provides SQLite-backed durable storage for txgraph records.
//
// One row per entity in the records table, keyed by (class, key). Scalar
// properties are stored as canonical JSON so unchanged records compare byte
// for byte; single real relations live in refs and ordered real
// collections in lists. Virtual end-points are never stored: they are
// answered by LoadRelated from the opposite side's refs and lists.
//
// # Optimistic revisions
//
// Every row carries a revision. Persist applies a whole batch in one SQL
// transaction and fails with an error wrapping ir.ErrConcurrency, leaving
// nothing written, when any row's revision moved since it was loaded.
//
// # Deterministic results
//
// All reads end with ORDER BY key ASC COLLATE BINARY.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection: SQLite serializes writers
package store
