// Package queryir provides the query descriptors handed to a QueryExecutor.
//
// The IR is a small fixed fragment, not a query language:
//
//	Select{Class, Filter, OrderBy, Limit}   collection query, rows are records
//	Project{Source, Fields}                 custom query, rows are IRObjects
//
// Predicates: Equals (property = literal), RefEquals (single real relation
// points at an entity) and And. Query and Predicate are sealed interfaces;
// backends switch exhaustively over the concrete types.
//
// Validate checks a query against a schema before execution. Match evaluates
// a predicate against a stored record for in-memory backends.
package queryir
