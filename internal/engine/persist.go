package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/txgraph/internal/ir"
)

// EndPointDelta is one changed end-point in PersistableData.
type EndPointDelta struct {
	Relation string
	Virtual  bool
	Original []ir.EntityID
	Current  []ir.EntityID
}

// PersistableData is the commit-time snapshot of one record, handed to
// CommitValidate observers and to persistence.
type PersistableData struct {
	ID       ir.EntityID
	State    ir.State
	Revision int64

	Properties         ir.IRObject
	OriginalProperties ir.IRObject
	ChangedProperties  []string

	// EndPoints lists loaded end-points whose value changed.
	EndPoints []EndPointDelta

	record *Record
}

func (d PersistableData) needsPersist() bool {
	switch d.State {
	case ir.StateNew, ir.StateChanged, ir.StateDeleted:
		return true
	}
	return false
}

// persistableData snapshots the announced records. Records that became
// Invalid during the commit rounds are left out.
func (tx *Transaction) persistableData(ids []ir.EntityID) []PersistableData {
	out := make([]PersistableData, 0, len(ids))
	for _, id := range ids {
		rec := tx.records[id]
		if rec == nil || rec.invalid {
			continue
		}
		d := PersistableData{
			ID:                 id,
			State:              rec.State(),
			Revision:           rec.revision,
			Properties:         rec.props.Clone(),
			OriginalProperties: rec.original.Clone(),
			ChangedProperties:  rec.ChangedProperties(),
			record:             rec,
		}
		for _, rel := range rec.class.Relations {
			ep, ok := tx.endPoints[ir.EndPointID{Entity: id, Relation: rel.Name}]
			if !ok || !ep.hasChanged() {
				continue
			}
			d.EndPoints = append(d.EndPoints, EndPointDelta{
				Relation: rel.Name,
				Virtual:  rel.Virtual,
				Original: cloneIDs(ep.original),
				Current:  cloneIDs(ep.current),
			})
		}
		out = append(out, d)
	}
	return out
}

// persistToStorage writes New, Changed and Deleted records in one batch.
// An empty batch does not reach Storage.
func (tx *Transaction) persistToStorage(ctx context.Context, data []PersistableData) (map[ir.EntityID]int64, error) {
	var batch []ir.PersistRecord
	for _, d := range data {
		rec := d.record
		switch d.State {
		case ir.StateNew:
			batch = append(batch, ir.PersistRecord{Op: ir.OpInsert, Record: rec.stored()})
		case ir.StateChanged:
			batch = append(batch, ir.PersistRecord{Op: ir.OpUpdate, Record: rec.stored(), ExpectedRevision: rec.revision})
		case ir.StateDeleted:
			batch = append(batch, ir.PersistRecord{
				Op:               ir.OpDelete,
				Record:           ir.StoredRecord{ID: d.ID, Revision: rec.revision},
				ExpectedRevision: rec.revision,
			})
		}
	}
	if len(batch) == 0 {
		return nil, nil
	}
	revisions, err := tx.engine.storage.Persist(ctx, batch)
	if errors.Is(err, ir.ErrConcurrency) {
		return nil, &Error{Code: ErrCodeConcurrency, Message: "records changed in storage since load", Cause: err}
	}
	if err != nil {
		return nil, fmt.Errorf("persist %d records: %w", len(batch), err)
	}
	return revisions, nil
}

// persistToParent copies the sub's changes into the parent without
// notifications. The parent sees New records as New, Deleted records as
// Deleted, and changed values as Changed relative to its own originals.
func (tx *Transaction) persistToParent(data []PersistableData) error {
	p := tx.parent
	for _, d := range data {
		if !d.needsPersist() && !d.record.forced {
			continue
		}
		rec := d.record
		prec, ok := p.records[d.ID]
		switch {
		case d.State == ir.StateNew:
			if ok {
				return newError(ErrCodeInvalidOperation, d.ID, "identity already registered in parent")
			}
			prec = newRecord(p, d.ID, rec.class)
			prec.isNew = true
			prec.original = rec.original.Clone()
			p.addRecord(prec)
		case !ok:
			return newError(ErrCodeInvalidOperation, d.ID, "record missing from parent")
		case d.State == ir.StateDeleted:
			if prec.isNew {
				prec.invalid = true
			} else {
				prec.deleted = true
			}
		}
		prec.props = rec.props.Clone()
		for name := range rec.touched {
			prec.touched[name] = true
		}
		if rec.forced && !prec.isNew {
			prec.forced = true
		}
	}

	// End-points are copied for every announced record, including the
	// opposite sides of relation changes.
	for _, d := range data {
		for _, rel := range d.record.class.Relations {
			id := ir.EndPointID{Entity: d.ID, Relation: rel.Name}
			ep, ok := tx.endPoints[id]
			if !ok || !ep.loaded {
				continue
			}
			pep, ok := p.endPoints[id]
			switch {
			case d.State == ir.StateNew:
				if !ok {
					pep = newEndPoint(id, rel)
					pep.loaded = true
					p.addEndPoint(pep)
				}
				pep.setAll(ep.current)
			case !ep.hasChanged():
			case !ok || !pep.loaded:
				return newError(ErrCodeInvalidOperation, d.ID, "end-point %s not loaded in parent", id)
			default:
				pep.setAll(ep.current)
			}
		}
	}
	tx.logger.Debug("committed into parent", "parent", p.id, "records", len(data))
	return nil
}
