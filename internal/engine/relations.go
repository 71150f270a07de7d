package engine

import (
	"context"
	"slices"

	"github.com/roach88/txgraph/internal/ir"
)

// relationTarget resolves and checks the owner and definition of ep.
func (tx *Transaction) relationTarget(ctx context.Context, id ir.EndPointID) (*Record, ir.RelationDef, error) {
	owner, err := tx.Get(ctx, id.Entity)
	if err != nil {
		return nil, ir.RelationDef{}, err
	}
	def, ok := owner.class.Relation(id.Relation)
	if !ok {
		return nil, ir.RelationDef{}, &Error{Code: ErrCodeRelationNotFound, Entity: id.Entity, Name: id.Relation, Message: "no such relation"}
	}
	return owner, def, nil
}

// Related returns the record referenced by a single end-point, or nil.
func (tx *Transaction) Related(ctx context.Context, id ir.EndPointID) (*Record, error) {
	_, def, err := tx.relationTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.IsCollection() {
		return nil, &Error{Code: ErrCodeInvalidOperation, Entity: id.Entity, Name: id.Relation, Message: "relation is a collection"}
	}
	ep, err := tx.endPoint(ctx, id)
	if err != nil {
		return nil, err
	}
	target := ep.single()
	if target.IsNull() {
		return nil, nil
	}
	return tx.Get(ctx, target)
}

// RelatedObjects returns the records of a collection end-point in order.
func (tx *Transaction) RelatedObjects(ctx context.Context, id ir.EndPointID) ([]*Record, error) {
	ids, err := tx.RelatedIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return tx.GetMany(ctx, ids)
}

// RelatedIDs returns the current identities of any end-point. A null single
// end-point yields an empty slice.
func (tx *Transaction) RelatedIDs(ctx context.Context, id ir.EndPointID) ([]ir.EntityID, error) {
	if _, _, err := tx.relationTarget(ctx, id); err != nil {
		return nil, err
	}
	ep, err := tx.endPoint(ctx, id)
	if err != nil {
		return nil, err
	}
	return cloneIDs(ep.current), nil
}

// OriginalRelatedIDs returns the identities an end-point held when it was
// loaded or last committed.
func (tx *Transaction) OriginalRelatedIDs(ctx context.Context, id ir.EndPointID) ([]ir.EntityID, error) {
	if _, _, err := tx.relationTarget(ctx, id); err != nil {
		return nil, err
	}
	ep, err := tx.endPoint(ctx, id)
	if err != nil {
		return nil, err
	}
	return cloneIDs(ep.original), nil
}

// checkItem validates a record that is about to be referenced by def.
func (tx *Transaction) checkItem(ctx context.Context, def ir.RelationDef, id ir.EntityID) error {
	if id.Class != def.Class {
		return newError(ErrCodeInvalidOperation, id, "relation %s expects %s", def.Name, def.Class)
	}
	_, err := tx.Get(ctx, id)
	return err
}

// opposite returns the loaded opposite end-point of def on related, or nil
// for unidirectional relations. Missing or invalid records yield nil too:
// a dangling reference has no opposite to maintain.
func (tx *Transaction) opposite(ctx context.Context, def ir.RelationDef, related ir.EntityID) (*endPoint, error) {
	if def.Opposite == "" || related.IsNull() {
		return nil, nil
	}
	rec, err := tx.getOne(ctx, related, loadOptions{tolerant: true, includeDeleted: true})
	if err != nil && !IsObjectInvalid(err) {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return tx.endPoint(ctx, ir.EndPointID{Entity: related, Relation: def.Opposite})
}

// detach describes the opposite side of removing owner from item's view.
func detach(opp *endPoint, owner ir.EntityID) *modification {
	if opp.kind.isSingle() {
		return setMod(opp, owner, ir.EntityID{})
	}
	return removeMod(opp, owner)
}

// attach describes the opposite side of adding item to owner's end-point
// named relation, including the record item is taken away from.
func (tx *Transaction) attach(ctx context.Context, opp *endPoint, owner ir.EntityID, relation string) ([]*modification, error) {
	if !opp.kind.isSingle() {
		return []*modification{insertMod(opp, owner, -1)}, nil
	}
	prev := opp.single()
	mods := []*modification{setMod(opp, prev, owner)}
	if !prev.IsNull() {
		displaced, err := tx.endPoint(ctx, ir.EndPointID{Entity: prev, Relation: relation})
		if err != nil {
			return nil, err
		}
		mods = append(mods, detach(displaced, opp.id.Entity))
	}
	return mods, nil
}

// SetRelated points a single end-point at target, or clears it when target
// is null. Opposite end-points follow: the old target is detached, the new
// target is attached and its previous partner, if any, is displaced.
func (tx *Transaction) SetRelated(ctx context.Context, id ir.EndPointID, target ir.EntityID) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	_, def, err := tx.relationTarget(ctx, id)
	if err != nil {
		return err
	}
	if def.IsCollection() {
		return &Error{Code: ErrCodeInvalidOperation, Entity: id.Entity, Name: id.Relation, Message: "relation is a collection"}
	}
	if !target.IsNull() {
		if err := tx.checkItem(ctx, def, target); err != nil {
			return err
		}
	}
	ep, err := tx.endPoint(ctx, id)
	if err != nil {
		return err
	}
	old := ep.single()
	if old == target {
		return nil
	}

	mods := []*modification{setMod(ep, old, target)}
	oldOpp, err := tx.opposite(ctx, def, old)
	if err != nil {
		return err
	}
	if oldOpp != nil {
		mods = append(mods, detach(oldOpp, id.Entity))
	}
	newOpp, err := tx.opposite(ctx, def, target)
	if err != nil {
		return err
	}
	if newOpp != nil {
		more, err := tx.attach(ctx, newOpp, id.Entity, id.Relation)
		if err != nil {
			return err
		}
		mods = append(mods, more...)
	}
	return tx.perform(mods)
}

// collectionTarget checks that id is a collection end-point and loads it.
func (tx *Transaction) collectionTarget(ctx context.Context, id ir.EndPointID) (*endPoint, error) {
	if err := tx.checkWritable(); err != nil {
		return nil, err
	}
	_, def, err := tx.relationTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if !def.IsCollection() {
		return nil, &Error{Code: ErrCodeInvalidOperation, Entity: id.Entity, Name: id.Relation, Message: "relation is not a collection"}
	}
	return tx.endPoint(ctx, id)
}

// AddRelated appends item to a collection end-point. Adding a present item
// is a no-op.
func (tx *Transaction) AddRelated(ctx context.Context, id ir.EndPointID, item ir.EntityID) error {
	return tx.InsertRelated(ctx, id, -1, item)
}

// InsertRelated inserts item at index; a negative index appends.
func (tx *Transaction) InsertRelated(ctx context.Context, id ir.EndPointID, index int, item ir.EntityID) error {
	ep, err := tx.collectionTarget(ctx, id)
	if err != nil {
		return err
	}
	if err := tx.checkItem(ctx, ep.def, item); err != nil {
		return err
	}
	if ep.contains(item) {
		return nil
	}
	if index > len(ep.current) {
		return &Error{Code: ErrCodeInvalidOperation, Entity: id.Entity, Name: id.Relation, Message: "index out of range"}
	}
	mods := []*modification{insertMod(ep, item, index)}
	opp, err := tx.opposite(ctx, ep.def, item)
	if err != nil {
		return err
	}
	if opp != nil {
		more, err := tx.attach(ctx, opp, id.Entity, id.Relation)
		if err != nil {
			return err
		}
		mods = append(mods, more...)
	}
	return tx.perform(mods)
}

// RemoveRelated removes item from a collection end-point. Removing an
// absent item is a no-op.
func (tx *Transaction) RemoveRelated(ctx context.Context, id ir.EndPointID, item ir.EntityID) error {
	ep, err := tx.collectionTarget(ctx, id)
	if err != nil {
		return err
	}
	if !ep.contains(item) {
		return nil
	}
	mods := []*modification{removeMod(ep, item)}
	opp, err := tx.opposite(ctx, ep.def, item)
	if err != nil {
		return err
	}
	if opp != nil {
		mods = append(mods, detach(opp, id.Entity))
	}
	return tx.perform(mods)
}

// ReplaceRelated replaces the item at index with item.
func (tx *Transaction) ReplaceRelated(ctx context.Context, id ir.EndPointID, index int, item ir.EntityID) error {
	ep, err := tx.collectionTarget(ctx, id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(ep.current) {
		return &Error{Code: ErrCodeInvalidOperation, Entity: id.Entity, Name: id.Relation, Message: "index out of range"}
	}
	if err := tx.checkItem(ctx, ep.def, item); err != nil {
		return err
	}
	old := ep.current[index]
	if old == item {
		return nil
	}
	if ep.contains(item) {
		return newError(ErrCodeInvalidOperation, item, "already in %s", id)
	}
	mods := []*modification{replaceMod(ep, index, old, item)}
	oldOpp, err := tx.opposite(ctx, ep.def, old)
	if err != nil {
		return err
	}
	if oldOpp != nil {
		mods = append(mods, detach(oldOpp, id.Entity))
	}
	newOpp, err := tx.opposite(ctx, ep.def, item)
	if err != nil {
		return err
	}
	if newOpp != nil {
		more, err := tx.attach(ctx, newOpp, id.Entity, id.Relation)
		if err != nil {
			return err
		}
		mods = append(mods, more...)
	}
	return tx.perform(mods)
}

// ReplaceAllRelated makes a collection end-point hold exactly items, in
// that order. Removals fire first, then additions. A pure reorder of a real
// collection fires one event pair with both related ids null; reordering a
// virtual collection fires nothing.
func (tx *Transaction) ReplaceAllRelated(ctx context.Context, id ir.EndPointID, items []ir.EntityID) error {
	ep, err := tx.collectionTarget(ctx, id)
	if err != nil {
		return err
	}
	seen := make(map[ir.EntityID]bool, len(items))
	for _, item := range items {
		if seen[item] {
			return newError(ErrCodeInvalidOperation, item, "duplicate item for %s", id)
		}
		seen[item] = true
		if err := tx.checkItem(ctx, ep.def, item); err != nil {
			return err
		}
	}

	var removed, added []ir.EntityID
	for _, cur := range ep.current {
		if !seen[cur] {
			removed = append(removed, cur)
		}
	}
	for _, item := range items {
		if !ep.contains(item) {
			added = append(added, item)
		}
	}
	if len(removed) == 0 && len(added) == 0 {
		if slices.Equal(ep.current, items) {
			return nil
		}
		mod := reorderMod(ep, items)
		if ep.kind.isVirtual() {
			mod.silent = true
		}
		return tx.perform([]*modification{mod})
	}

	var mods []*modification
	for _, item := range removed {
		mods = append(mods, removeMod(ep, item))
		opp, err := tx.opposite(ctx, ep.def, item)
		if err != nil {
			return err
		}
		if opp != nil {
			mods = append(mods, detach(opp, id.Entity))
		}
	}
	for _, item := range added {
		mods = append(mods, insertMod(ep, item, -1))
		opp, err := tx.opposite(ctx, ep.def, item)
		if err != nil {
			return err
		}
		if opp != nil {
			more, err := tx.attach(ctx, opp, id.Entity, id.Relation)
			if err != nil {
				return err
			}
			mods = append(mods, more...)
		}
	}
	final := reorderMod(ep, items)
	final.silent = true
	return tx.perform(append(mods, final))
}
