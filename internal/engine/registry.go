package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/txgraph/internal/ir"
)

type loadOptions struct {
	// tolerant turns not-found into a nil result and an invalid placeholder.
	tolerant bool
	// includeDeleted returns deleted records instead of OBJECT_DELETED.
	includeDeleted bool
}

// Get returns the record for id, loading it if necessary.
func (tx *Transaction) Get(ctx context.Context, id ir.EntityID) (*Record, error) {
	return tx.getOne(ctx, id, loadOptions{})
}

// TryGet is Get, except that an id missing from storage yields nil, nil.
func (tx *Transaction) TryGet(ctx context.Context, id ir.EntityID) (*Record, error) {
	return tx.getOne(ctx, id, loadOptions{tolerant: true})
}

// GetIncludingDeleted is Get, except that deleted records are returned.
func (tx *Transaction) GetIncludingDeleted(ctx context.Context, id ir.EntityID) (*Record, error) {
	return tx.getOne(ctx, id, loadOptions{includeDeleted: true})
}

// GetMany returns records in the order of ids. Unknown ids are loaded in
// one batch. Records found in storage are registered even when another id
// of the batch fails.
func (tx *Transaction) GetMany(ctx context.Context, ids []ir.EntityID) ([]*Record, error) {
	return tx.getMany(ctx, ids, loadOptions{})
}

// TryGetMany is GetMany with nil entries for ids missing from storage.
func (tx *Transaction) TryGetMany(ctx context.Context, ids []ir.EntityID) ([]*Record, error) {
	return tx.getMany(ctx, ids, loadOptions{tolerant: true})
}

// EnsureLoaded makes sure every id is registered, without returning records.
func (tx *Transaction) EnsureLoaded(ctx context.Context, ids ...ir.EntityID) error {
	_, err := tx.getMany(ctx, ids, loadOptions{includeDeleted: true})
	return err
}

func (tx *Transaction) getOne(ctx context.Context, id ir.EntityID, opts loadOptions) (*Record, error) {
	recs, err := tx.getMany(ctx, []ir.EntityID{id}, opts)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (tx *Transaction) getMany(ctx context.Context, ids []ir.EntityID, opts loadOptions) ([]*Record, error) {
	if err := tx.checkUsable(); err != nil {
		return nil, err
	}
	var unknown []ir.EntityID
	seen := make(map[ir.EntityID]bool)
	for _, id := range ids {
		if id.IsNull() {
			return nil, newError(ErrCodeInvalidOperation, id, "null identity")
		}
		if _, ok := tx.records[id]; !ok && !seen[id] {
			seen[id] = true
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		if err := tx.load(ctx, unknown, opts.tolerant); err != nil {
			return nil, err
		}
	}

	out := make([]*Record, len(ids))
	var firstErr error
	for i, id := range ids {
		rec, err := tx.resolve(id, opts)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		out[i] = rec
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (tx *Transaction) resolve(id ir.EntityID, opts loadOptions) (*Record, error) {
	rec, ok := tx.records[id]
	switch {
	case !ok:
		return nil, newError(ErrCodeNotFound, id, "record not found")
	case rec.notFound && opts.tolerant:
		return nil, nil
	case rec.notFound:
		return nil, newError(ErrCodeNotFound, id, "record not found")
	case rec.invalid:
		return nil, newError(ErrCodeObjectInvalid, id, "record is invalid in this transaction")
	case rec.deleted && !opts.includeDeleted:
		return nil, newError(ErrCodeObjectDeleted, id, "record is deleted")
	}
	return rec, nil
}

// load fetches unknown ids from storage (root) or from the parent's current
// state (sub) and registers them.
func (tx *Transaction) load(ctx context.Context, ids []ir.EntityID, tolerant bool) error {
	if err := tx.emit(Event{Kind: EventObjectsLoading, IDs: ids}); err != nil {
		return err
	}
	var (
		rows []ir.StoredRecord
		gone []ir.EntityID
		err  error
	)
	if tx.parent == nil {
		rows, err = tx.engine.storage.Load(ctx, ids)
		if err != nil {
			return fmt.Errorf("load %s: %w", formatIDs(ids), err)
		}
	} else {
		rows, gone, err = tx.parent.exportForSub(ctx, ids, tolerant)
		if err != nil {
			return err
		}
	}

	found, err := tx.registerLoaded(rows)
	if err != nil {
		return err
	}
	for _, id := range gone {
		tx.registerPlaceholder(id, false)
	}
	if tolerant {
		for _, id := range ids {
			if _, ok := tx.records[id]; !ok {
				tx.registerPlaceholder(id, true)
			}
		}
	}
	loaded := make([]ir.EntityID, 0, len(found))
	for _, id := range ids {
		if slices.Contains(found, id) {
			loaded = append(loaded, id)
		}
	}
	tx.logger.Debug("records loaded", "requested", len(ids), "found", len(loaded))
	return tx.emit(Event{Kind: EventObjectsLoaded, IDs: loaded})
}

// exportForSub returns the parent's current data for ids. Records deleted or
// invalid in the parent are listed in gone; ids missing from storage are
// omitted. A strict lookup registers nothing in the parent for missing ids.
func (tx *Transaction) exportForSub(ctx context.Context, ids []ir.EntityID, tolerant bool) ([]ir.StoredRecord, []ir.EntityID, error) {
	_, err := tx.getMany(ctx, ids, loadOptions{tolerant: tolerant, includeDeleted: true})
	if err != nil && !IsObjectInvalid(err) && !IsNotFound(err) {
		return nil, nil, err
	}
	var rows []ir.StoredRecord
	var gone []ir.EntityID
	for _, id := range ids {
		rec := tx.records[id]
		switch {
		case rec == nil || rec.notFound:
		case rec.invalid || rec.deleted:
			gone = append(gone, id)
		default:
			rows = append(rows, rec.stored())
		}
	}
	return rows, gone, nil
}

// registerLoaded registers storage rows as Unchanged records, materializes
// their real end-points and appends them to already loaded virtual
// end-points that they point at.
func (tx *Transaction) registerLoaded(rows []ir.StoredRecord) ([]ir.EntityID, error) {
	var found []ir.EntityID
	for _, row := range rows {
		if _, ok := tx.records[row.ID]; ok {
			continue
		}
		class, err := tx.engine.schema.Class(row.ID.Class)
		if err != nil {
			return found, err
		}
		rec := newRecord(tx, row.ID, class)
		rec.revision = row.Revision
		for _, p := range class.Properties {
			v, ok := row.Properties[p.Name]
			if !ok {
				v = ir.IRNull{}
			}
			rec.props[p.Name] = ir.Clone(v)
			rec.original[p.Name] = ir.Clone(v)
		}
		tx.addRecord(rec)
		found = append(found, row.ID)

		for _, rel := range class.Relations {
			if rel.Virtual {
				continue
			}
			ep := newEndPoint(ir.EndPointID{Entity: row.ID, Relation: rel.Name}, rel)
			ep.loaded = true
			if rel.IsCollection() {
				ep.current = cloneIDs(row.Lists[rel.Name])
			} else if ref := row.Refs[rel.Name]; !ref.IsNull() {
				ep.current = []ir.EntityID{ref}
			}
			ep.original = cloneIDs(ep.current)
			tx.addEndPoint(ep)
			tx.linkIntoVirtual(ep)
		}
	}
	return found, nil
}

// linkIntoVirtual appends the owner of a freshly loaded real end-point to
// the loaded virtual opposites it points at.
func (tx *Transaction) linkIntoVirtual(src *endPoint) {
	if src.def.Opposite == "" {
		return
	}
	for _, target := range src.current {
		opp, ok := tx.endPoints[ir.EndPointID{Entity: target, Relation: src.def.Opposite}]
		if !ok || !opp.loaded || !opp.kind.isVirtual() || opp.contains(src.id.Entity) {
			continue
		}
		opp.current = append(cloneIDs(opp.current), src.id.Entity)
		opp.original = append(cloneIDs(opp.original), src.id.Entity)
		opp.invalidate()
	}
}

func (tx *Transaction) registerPlaceholder(id ir.EntityID, notFound bool) {
	class, _ := tx.engine.schema.Class(id.Class)
	rec := newRecord(tx, id, class)
	rec.invalid = true
	rec.notFound = notFound
	tx.addRecord(rec)
	_ = tx.emit(Event{Kind: EventObjectMarkedInvalid, Entity: id, State: ir.StateInvalid})
}

func (tx *Transaction) addRecord(rec *Record) {
	tx.records[rec.id] = rec
	tx.order = append(tx.order, rec.id)
	_ = tx.emit(Event{Kind: EventRecordRegistered, Entity: rec.id})
}

func (tx *Transaction) addEndPoint(ep *endPoint) {
	tx.endPoints[ep.id] = ep
	_ = tx.emit(Event{Kind: EventEndPointRegistered, EndPoint: ep.id})
}

// NewEntity creates a New record of class with a generated key.
func (tx *Transaction) NewEntity(ctx context.Context, class string) (*Record, error) {
	return tx.NewEntityWithKey(ctx, class, tx.engine.keys.Generate())
}

// NewEntityWithKey creates a New record of class with the given key.
// Properties start at their declared defaults and every end-point starts
// empty and loaded.
func (tx *Transaction) NewEntityWithKey(ctx context.Context, class, key string) (*Record, error) {
	if err := tx.checkWritable(); err != nil {
		return nil, err
	}
	def, err := tx.engine.schema.Class(class)
	if err != nil {
		return nil, newError(ErrCodeInvalidOperation, ir.EntityID{}, "unknown class %q", class)
	}
	id := ir.EntityID{Class: class, Key: key}
	if err := id.Validate(); err != nil {
		return nil, newError(ErrCodeInvalidOperation, id, "%v", err)
	}
	if _, ok := tx.records[id]; ok {
		return nil, newError(ErrCodeInvalidOperation, id, "identity already registered")
	}
	if err := tx.emit(Event{Kind: EventNewObjectCreating, Entity: id, Class: class}); err != nil {
		return nil, err
	}
	rec := newRecord(tx, id, def)
	rec.isNew = true
	for _, p := range def.Properties {
		v := ir.Clone(p.Default)
		rec.props[p.Name] = v
		rec.original[p.Name] = ir.Clone(v)
	}
	tx.addRecord(rec)
	for _, rel := range def.Relations {
		ep := newEndPoint(ir.EndPointID{Entity: id, Relation: rel.Name}, rel)
		ep.loaded = true
		tx.addEndPoint(ep)
	}
	tx.stateUpdated(rec, ir.StateNotLoadedYet)
	return rec, nil
}

// Property returns one property of id, loading the record if necessary.
func (tx *Transaction) Property(ctx context.Context, id ir.EntityID, name string) (ir.IRValue, error) {
	rec, err := tx.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Property(name)
}

// SetProperty sets one property. Setting the current value marks the
// property touched but emits nothing.
func (tx *Transaction) SetProperty(ctx context.Context, id ir.EntityID, name string, v ir.IRValue) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	rec, err := tx.Get(ctx, id)
	if err != nil {
		return err
	}
	def, ok := rec.class.Property(name)
	if !ok {
		return &Error{Code: ErrCodePropertyNotFound, Entity: id, Name: name, Message: "no such property"}
	}
	if v == nil {
		v = ir.IRNull{}
	}
	if !def.Type.Accepts(v) {
		return &Error{Code: ErrCodeInvalidOperation, Entity: id, Name: name, Message: fmt.Sprintf("%T is not a %s", v, def.Type)}
	}
	if !ir.ValidUTF8(v) {
		return &Error{Code: ErrCodeInvalidOperation, Entity: id, Name: name, Message: "value is not valid UTF-8"}
	}
	rec.touched[name] = true
	old := rec.props[name]
	if ir.Equal(old, v) {
		return nil
	}
	ev := Event{Kind: EventPropertyValueChanging, Entity: id, Property: name, OldValue: old, NewValue: v}
	if err := tx.emit(ev); err != nil {
		return err
	}
	before := rec.State()
	rec.props[name] = ir.Clone(v)
	tx.stateUpdated(rec, before)
	ev.Kind = EventPropertyValueChanged
	return tx.emit(ev)
}

// endPoint returns the loaded end-point ep. The owner must be registered.
func (tx *Transaction) endPoint(ctx context.Context, id ir.EndPointID) (*endPoint, error) {
	if ep, ok := tx.endPoints[id]; ok && ep.loaded {
		return ep, nil
	}
	rec, ok := tx.records[id.Entity]
	if !ok {
		return nil, newError(ErrCodeInvalidOperation, id.Entity, "record not registered")
	}
	def, ok := rec.class.Relation(id.Relation)
	if !ok {
		return nil, &Error{Code: ErrCodeRelationNotFound, Entity: id.Entity, Name: id.Relation, Message: "no such relation"}
	}
	ep, ok := tx.endPoints[id]
	if !ok {
		ep = newEndPoint(id, def)
		tx.addEndPoint(ep)
	}
	if !ep.loaded {
		if err := tx.loadVirtual(ctx, rec, ep); err != nil {
			return nil, err
		}
	}
	return ep, nil
}

// loadVirtual derives a virtual end-point from the real end-points that
// point at its owner. Candidates come from storage (root) or from the
// parent's end-point (sub); after registering them, current and original
// are computed from the registry so that in-transaction changes count.
func (tx *Transaction) loadVirtual(ctx context.Context, owner *Record, ep *endPoint) error {
	if owner.isNew {
		ep.loaded = true
		return nil
	}
	var candidates []ir.EntityID
	if tx.parent == nil {
		rows, err := tx.engine.storage.LoadRelated(ctx, ep.id, ep.def)
		if err != nil {
			return fmt.Errorf("load related %s: %w", ep.id, err)
		}
		var unknown []ir.StoredRecord
		for _, row := range rows {
			candidates = append(candidates, row.ID)
			if _, ok := tx.records[row.ID]; !ok {
				unknown = append(unknown, row)
			}
		}
		if len(unknown) > 0 {
			ids := make([]ir.EntityID, len(unknown))
			for i, row := range unknown {
				ids[i] = row.ID
			}
			if err := tx.emit(Event{Kind: EventObjectsLoading, IDs: ids}); err != nil {
				return err
			}
			found, err := tx.registerLoaded(unknown)
			if err != nil {
				return err
			}
			if err := tx.emit(Event{Kind: EventObjectsLoaded, IDs: found}); err != nil {
				return err
			}
		}
	} else {
		if _, err := tx.parent.getMany(ctx, []ir.EntityID{ep.id.Entity}, loadOptions{includeDeleted: true}); err != nil {
			return err
		}
		pep, err := tx.parent.endPoint(ctx, ep.id)
		if err != nil {
			return err
		}
		candidates = cloneIDs(pep.current)
		if len(candidates) > 0 {
			if _, err := tx.getMany(ctx, candidates, loadOptions{tolerant: true, includeDeleted: true}); err != nil && !IsObjectInvalid(err) {
				return err
			}
		}
	}

	ep.current = tx.pointingAt(ep, candidates, func(ref *endPoint) []ir.EntityID { return ref.current })
	ep.original = tx.pointingAt(ep, candidates, func(ref *endPoint) []ir.EntityID { return ref.original })
	ep.loaded = true
	ep.invalidate()
	return nil
}

// pointingAt lists registered records of the opposite class whose real
// end-point (as selected by values) contains ep's owner. Candidates come
// first in their order, then the rest in registration order.
func (tx *Transaction) pointingAt(ep *endPoint, candidates []ir.EntityID, values func(*endPoint) []ir.EntityID) []ir.EntityID {
	var out []ir.EntityID
	seen := make(map[ir.EntityID]bool)
	consider := func(id ir.EntityID) {
		if seen[id] {
			return
		}
		seen[id] = true
		rec, ok := tx.records[id]
		if !ok || rec.invalid || id.Class != ep.def.Class {
			return
		}
		ref, ok := tx.endPoints[ir.EndPointID{Entity: id, Relation: ep.def.Opposite}]
		if ok && slices.Contains(values(ref), ep.id.Entity) {
			out = append(out, id)
		}
	}
	for _, id := range candidates {
		consider(id)
	}
	for _, id := range tx.order {
		consider(id)
	}
	return out
}
