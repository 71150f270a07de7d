package engine

import (
	"context"

	"github.com/roach88/txgraph/internal/ir"
)

// Delete marks id deleted and detaches it from every bidirectional relation.
//
// The record's own end-points are cleared without events; the opposite
// end-points get Changing/Changed pairs. A record created in this
// transaction becomes Invalid instead of Deleted. Unidirectional references
// held by other records are left in place. Deleting a deleted record is a
// no-op.
func (tx *Transaction) Delete(ctx context.Context, id ir.EntityID) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	rec, err := tx.GetIncludingDeleted(ctx, id)
	if err != nil {
		return err
	}
	if rec.deleted {
		return nil
	}

	type pair struct {
		own  *endPoint
		opps []*endPoint
	}
	var pairs []pair
	for _, rel := range rec.class.Relations {
		ep, err := tx.endPoint(ctx, ir.EndPointID{Entity: id, Relation: rel.Name})
		if err != nil {
			return err
		}
		p := pair{own: ep}
		for _, related := range ep.current {
			opp, err := tx.opposite(ctx, rel, related)
			if err != nil {
				return err
			}
			if opp != nil {
				p.opps = append(p.opps, opp)
			}
		}
		pairs = append(pairs, p)
	}

	if err := tx.emit(Event{Kind: EventObjectDeleting, Entity: id}); err != nil {
		return err
	}

	var mods []*modification
	for _, p := range pairs {
		for _, opp := range p.opps {
			mods = append(mods, detach(opp, id))
		}
		wipe := reorderMod(p.own, nil)
		wipe.silent = true
		mods = append(mods, wipe)
	}
	if err := tx.perform(mods); err != nil {
		return err
	}

	before := rec.State()
	if rec.isNew {
		rec.invalid = true
		_ = tx.emit(Event{Kind: EventObjectMarkedInvalid, Entity: id, State: ir.StateInvalid})
	} else {
		rec.deleted = true
		tx.stateUpdated(rec, before)
	}
	tx.logger.Debug("record deleted", "entity", id.String())
	return tx.emit(Event{Kind: EventObjectDeleted, Entity: id})
}
