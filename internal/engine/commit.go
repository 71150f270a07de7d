package engine

import (
	"context"
	"time"

	"github.com/roach88/txgraph/internal/ir"
)

// Registrar lets Committing and RollingBack observers ask for another
// notification round. It is only valid while its round is being delivered.
type Registrar struct {
	tx      *Transaction
	open    bool
	pending *workQueue
}

// RegisterForAdditionalCommittingEvents schedules ids for the next round,
// even if they were already announced.
func (r *Registrar) RegisterForAdditionalCommittingEvents(ids ...ir.EntityID) error {
	if !r.open {
		return &Error{Code: ErrCodeInvalidOperation, Message: "registrar used outside its round"}
	}
	for _, id := range ids {
		rec, ok := r.tx.records[id]
		if !ok {
			return newError(ErrCodeInvalidOperation, id, "record not registered")
		}
		if rec.invalid {
			return newError(ErrCodeObjectInvalid, id, "record is invalid in this transaction")
		}
	}
	r.pending.push(ids...)
	return nil
}

// runRounds delivers kind in rounds until no observer registers more records
// and no unannounced record changed. Round one always fires, even with no
// ids. It returns every announced id in first-announced order.
func (tx *Transaction) runRounds(kind EventKind, phase string) ([]ir.EntityID, error) {
	notified := newNotifiedSet()
	queue := newWorkQueue()
	queue.push(tx.changedIDs()...)
	quota := newRoundQuota(phase, tx.engine.maxRounds)
	for {
		if err := quota.Check(); err != nil {
			return nil, err
		}
		ids := queue.drain()
		notified.mark(ids)
		reg := &Registrar{tx: tx, open: true, pending: newWorkQueue()}
		err := tx.emit(Event{Kind: kind, IDs: ids, Round: quota.Current(), Registrar: reg})
		reg.open = false
		if err != nil {
			return nil, err
		}
		queue.push(reg.pending.drain()...)
		queue.push(notified.unseen(tx.changedIDs())...)
		if queue.len() == 0 {
			return notified.all(), nil
		}
	}
}

// Commit makes the transaction's changes durable: a root writes to Storage,
// a sub writes into its parent. Committing observers run in rounds until
// nothing new is registered; CommitValidate observers and the built-in
// validator may then reject the commit, which leaves the transaction
// unchanged and writable. A committed sub-transaction is discarded.
func (tx *Transaction) Commit(ctx context.Context) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if tx.phase != phaseIdle {
		return newError(ErrCodeInvalidOperation, ir.EntityID{}, "commit while %s", tx.phase)
	}
	start := time.Now()
	tx.phase = phaseCommitting
	defer func() { tx.phase = phaseIdle }()

	ids, err := tx.runRounds(EventCommitting, "commit")
	if err != nil {
		return err
	}

	tx.phase = phaseValidating
	data := tx.persistableData(ids)
	if err := tx.emit(Event{Kind: EventCommitValidate, Data: data}); err != nil {
		return err
	}
	if err := tx.validate(ctx, data); err != nil {
		return err
	}

	tx.phase = phasePersisting
	var revisions map[ir.EntityID]int64
	if tx.parent == nil {
		revisions, err = tx.persistToStorage(ctx, data)
	} else {
		err = tx.persistToParent(data)
	}
	if err != nil {
		return err
	}
	tx.transitionCommitted(ids, revisions)

	tx.phase = phaseIdle
	postErr := tx.emit(Event{Kind: EventCommitted, IDs: ids})
	tx.logger.Info("transaction committed",
		"records", len(ids),
		"persisted", countPersisted(data),
		"duration", time.Since(start))
	if tx.parent != nil {
		tx.Discard()
	}
	return postErr
}

// transitionCommitted makes current data the new original. Deleted records
// become Invalid.
func (tx *Transaction) transitionCommitted(ids []ir.EntityID, revisions map[ir.EntityID]int64) {
	for _, id := range ids {
		rec := tx.records[id]
		if rec == nil || rec.invalid {
			continue
		}
		if rec.deleted {
			rec.invalid = true
			_ = tx.emit(Event{Kind: EventObjectMarkedInvalid, Entity: id, State: ir.StateInvalid})
			continue
		}
		if rev, ok := revisions[id]; ok {
			rec.revision = rev
		}
		rec.commitData()
	}
	for _, ep := range tx.endPoints {
		ep.commit()
	}
}

// Rollback reverts every change since load or last commit. RollingBack
// observers run in rounds like Committing observers. New records become
// Invalid. A rolled back sub-transaction is discarded.
func (tx *Transaction) Rollback(ctx context.Context) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if tx.phase != phaseIdle {
		return newError(ErrCodeInvalidOperation, ir.EntityID{}, "rollback while %s", tx.phase)
	}
	tx.phase = phaseRollingBack
	defer func() { tx.phase = phaseIdle }()

	ids, err := tx.runRounds(EventRollingBack, "rollback")
	if err != nil {
		return err
	}
	before := make(map[ir.EntityID]ir.State, len(tx.order))
	var dropped []ir.EntityID
	for _, id := range tx.order {
		rec := tx.records[id]
		switch {
		case rec.invalid:
		case rec.isNew:
			rec.invalid = true
			dropped = append(dropped, id)
		default:
			before[id] = rec.State()
			rec.revertData()
		}
	}
	for _, ep := range tx.endPoints {
		ep.revert()
	}
	for _, id := range dropped {
		_ = tx.emit(Event{Kind: EventObjectMarkedInvalid, Entity: id, State: ir.StateInvalid})
	}
	for _, id := range tx.order {
		if state, ok := before[id]; ok {
			tx.stateUpdated(tx.records[id], state)
		}
	}

	tx.phase = phaseIdle
	postErr := tx.emit(Event{Kind: EventRolledBack, IDs: ids})
	tx.logger.Info("transaction rolled back", "records", len(ids))
	if tx.parent != nil {
		tx.Discard()
	}
	return postErr
}

func countPersisted(data []PersistableData) int {
	n := 0
	for _, d := range data {
		if d.needsPersist() {
			n++
		}
	}
	return n
}
