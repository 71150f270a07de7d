package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/queryir"
)

// Storage loads and persists records by identity.
//
// Load returns the records that exist; missing ids are simply absent from
// the result. LoadRelated returns the records of def.Class whose real
// end-point def.Opposite points at ep.Entity, in storage order. Persist
// applies a batch atomically and returns the new revision of every written
// record; a moved revision fails the whole batch with an error wrapping
// ir.ErrConcurrency.
type Storage interface {
	Load(ctx context.Context, ids []ir.EntityID) ([]ir.StoredRecord, error)
	LoadRelated(ctx context.Context, ep ir.EndPointID, def ir.RelationDef) ([]ir.StoredRecord, error)
	Persist(ctx context.Context, batch []ir.PersistRecord) (map[ir.EntityID]int64, error)
}

// QueryExecutor runs query descriptors against storage.
type QueryExecutor interface {
	ExecuteCollection(ctx context.Context, q queryir.Query) ([]ir.StoredRecord, error)
	ExecuteCustom(ctx context.Context, q queryir.Query) ([]ir.IRObject, error)
}

// Schema is the static class metadata the engine works from.
// schema.Model implements it.
type Schema interface {
	Class(name string) (ir.ClassDef, error)
	RelationEndPoints(class string) ([]ir.RelationDef, error)
	Relation(class, name string) (ir.RelationDef, error)
	IsMandatory(class, relation string) bool
	MaxLength(class, property string) (int, bool)
}

// Engine creates transaction trees over one Storage and Schema.
//
// Each tree is single-threaded; independent trees may run on different
// goroutines.
type Engine struct {
	storage   Storage
	schema    Schema
	query     QueryExecutor
	logger    *slog.Logger
	clock     *Clock
	keys      KeyGenerator
	maxRounds int
	txSeq     atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithQueryExecutor enables Execute and ExecuteCustom.
func WithQueryExecutor(q QueryExecutor) Option {
	return func(e *Engine) { e.query = q }
}

// WithMaxCommitRounds bounds the Committing and RollingBack loops.
// Default: DefaultMaxCommitRounds.
func WithMaxCommitRounds(n int) Option {
	return func(e *Engine) { e.maxRounds = n }
}

// WithKeyGenerator sets the key source for NewEntity. Default: UUIDv7Generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(e *Engine) { e.keys = g }
}

// WithClock sets the event clock. Default: NewClock().
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine.
func New(storage Storage, schema Schema, opts ...Option) *Engine {
	e := &Engine{
		storage:   storage,
		schema:    schema,
		logger:    slog.Default(),
		clock:     NewClock(),
		keys:      UUIDv7Generator{},
		maxRounds: DefaultMaxCommitRounds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the engine's schema.
func (e *Engine) Schema() Schema { return e.schema }

// Clock returns the engine's event clock.
func (e *Engine) Clock() *Clock { return e.clock }

// CreateRoot starts a new transaction tree.
func (e *Engine) CreateRoot() *Transaction {
	tx := newTransaction(e, nil)
	e.logger.Debug("root transaction created", "tx", tx.id)
	return tx
}

// CreateSub creates a sub-transaction of parent. The parent is read-only
// until the sub is committed, rolled back or discarded. On error no sub
// exists and parent stays writable.
func (e *Engine) CreateSub(parent *Transaction) (*Transaction, error) {
	return parent.CreateSub()
}

// Discard discards tx and its active sub, if any. Idempotent.
func (e *Engine) Discard(tx *Transaction) {
	tx.Discard()
}
