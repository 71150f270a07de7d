package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/txgraph/internal/ir"
)

type txPhase int

const (
	phaseIdle txPhase = iota
	phaseCommitting
	phaseValidating
	phasePersisting
	phaseRollingBack
)

func (p txPhase) String() string {
	return [...]string{"idle", "committing", "validating", "persisting", "rolling back"}[p]
}

// Transaction is a unit of work over a set of records.
//
// A root transaction reads from and persists to Storage. A sub-transaction
// reads through its parent and commits into the parent's in-memory state.
// While a sub is active, its parent is read-only.
type Transaction struct {
	id        int64
	engine    *Engine
	parent    *Transaction
	sub       *Transaction
	discarded bool
	phase     txPhase
	logger    *slog.Logger
	bus       *bus

	records   map[ir.EntityID]*Record
	order     []ir.EntityID
	endPoints map[ir.EndPointID]*endPoint
}

func newTransaction(e *Engine, parent *Transaction) *Transaction {
	id := e.txSeq.Add(1)
	return &Transaction{
		id:        id,
		engine:    e,
		parent:    parent,
		logger:    e.logger.With("tx", id),
		bus:       newBus(e.clock),
		records:   make(map[ir.EntityID]*Record),
		endPoints: make(map[ir.EndPointID]*endPoint),
	}
}

// ID returns the transaction's process-unique number.
func (tx *Transaction) ID() int64 { return tx.id }

// Parent returns the parent transaction, or nil for a root.
func (tx *Transaction) Parent() *Transaction { return tx.parent }

// Sub returns the active sub-transaction, or nil.
func (tx *Transaction) Sub() *Transaction { return tx.sub }

// IsRoot reports whether tx has no parent.
func (tx *Transaction) IsRoot() bool { return tx.parent == nil }

// Depth is 0 for a root and parent depth + 1 otherwise.
func (tx *Transaction) Depth() int {
	d := 0
	for p := tx.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// IsReadOnly reports whether tx has an active sub-transaction.
func (tx *Transaction) IsReadOnly() bool { return tx.sub != nil }

// IsDiscarded reports whether tx was discarded.
func (tx *Transaction) IsDiscarded() bool { return tx.discarded }

// Engine returns the engine that created tx.
func (tx *Transaction) Engine() *Engine { return tx.engine }

// AddListener attaches a listener to this transaction only.
func (tx *Transaction) AddListener(l Listener) { tx.bus.addListener(l) }

// AddExtension attaches an extension to this transaction only.
func (tx *Transaction) AddExtension(e Extension) { tx.bus.addExtension(e) }

// Handle registers a transaction-level handler for one event kind.
func (tx *Transaction) Handle(kind EventKind, fn Handler) { tx.bus.handle(kind, fn) }

// HandleRecord registers a handler for one event kind concerning one record.
func (tx *Transaction) HandleRecord(id ir.EntityID, kind EventKind, fn Handler) {
	tx.bus.handleRecord(id, kind, fn)
}

// CreateSub creates a sub-transaction. Observers of SubTransactionInitialize
// receive the new sub in Event.Sub and may attach themselves to it. When
// any of the three creation events fails, no sub is returned and tx stays
// writable; a sub already built is discarded.
func (tx *Transaction) CreateSub() (*Transaction, error) {
	if err := tx.checkWritable(); err != nil {
		return nil, err
	}
	if tx.phase != phaseIdle {
		return nil, newError(ErrCodeInvalidOperation, ir.EntityID{}, "cannot create a sub-transaction while %s", tx.phase)
	}
	if err := tx.emit(Event{Kind: EventSubTransactionCreating}); err != nil {
		return nil, err
	}
	sub := newTransaction(tx.engine, tx)
	tx.sub = sub
	if err := tx.emit(Event{Kind: EventSubTransactionInitialize, Sub: sub}); err != nil {
		tx.sub = nil
		sub.discarded = true
		return nil, err
	}
	if err := tx.emit(Event{Kind: EventSubTransactionCreated, Sub: sub}); err != nil {
		sub.Discard()
		return nil, err
	}
	sub.logger.Debug("sub-transaction created", "parent", tx.id)
	return sub, nil
}

// Discard abandons tx and its active sub. Its records become invalid and the
// parent, if any, becomes writable again. Calling Discard twice is a no-op.
func (tx *Transaction) Discard() {
	if tx.discarded {
		return
	}
	if tx.sub != nil {
		tx.sub.Discard()
	}
	tx.discarded = true
	if err := tx.bus.emit(Event{Kind: EventTransactionDiscard, Tx: tx}); err != nil {
		tx.logger.Warn("discard observer failed", "error", err)
	}
	if tx.parent != nil && tx.parent.sub == tx {
		tx.parent.sub = nil
	}
	tx.logger.Debug("transaction discarded", "records", len(tx.records))
}

// State returns the state of id in this transaction. Unknown ids are
// NotLoadedYet.
func (tx *Transaction) State(id ir.EntityID) ir.State {
	rec, ok := tx.records[id]
	if !ok {
		if tx.discarded {
			return ir.StateInvalid
		}
		return ir.StateNotLoadedYet
	}
	return rec.State()
}

// Records returns every registered record in registration order.
func (tx *Transaction) Records() []*Record {
	out := make([]*Record, 0, len(tx.order))
	for _, id := range tx.order {
		out = append(out, tx.records[id])
	}
	return out
}

// ChangedRecords returns the records in state New, Changed or Deleted, in
// registration order.
func (tx *Transaction) ChangedRecords() []*Record {
	var out []*Record
	for _, id := range tx.changedIDs() {
		out = append(out, tx.records[id])
	}
	return out
}

func (tx *Transaction) changedIDs() []ir.EntityID {
	var out []ir.EntityID
	for _, id := range tx.order {
		switch tx.records[id].State() {
		case ir.StateNew, ir.StateChanged, ir.StateDeleted:
			out = append(out, id)
		}
	}
	return out
}

// RegisterForCommit forces id into the next commit even if unchanged.
func (tx *Transaction) RegisterForCommit(ctx context.Context, id ir.EntityID) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	rec, err := tx.getOne(ctx, id, loadOptions{})
	if err != nil {
		return err
	}
	if rec.isNew || rec.forced {
		return nil
	}
	before := rec.State()
	rec.forced = true
	tx.stateUpdated(rec, before)
	return nil
}

func (tx *Transaction) emit(ev Event) error {
	ev.Tx = tx
	return tx.bus.emit(ev)
}

// stateUpdated emits StateUpdated when rec's state differs from before.
func (tx *Transaction) stateUpdated(rec *Record, before ir.State) {
	if after := rec.State(); after != before {
		_ = tx.emit(Event{Kind: EventStateUpdated, Entity: rec.id, State: after})
	}
}

func (tx *Transaction) checkUsable() error {
	if tx.discarded {
		return &Error{Code: ErrCodeDiscarded, Message: "transaction was discarded"}
	}
	return nil
}

func (tx *Transaction) checkWritable() error {
	if err := tx.checkUsable(); err != nil {
		return err
	}
	if tx.sub != nil {
		return &Error{Code: ErrCodeReadOnly, Message: "transaction has an active sub-transaction"}
	}
	switch tx.phase {
	case phaseValidating, phasePersisting:
		return newError(ErrCodeInvalidOperation, ir.EntityID{}, "cannot modify while %s", tx.phase)
	}
	return nil
}
