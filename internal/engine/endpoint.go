package engine

import (
	"slices"

	"github.com/roach88/txgraph/internal/ir"
)

// endPointKind is the variant tag of a relation end-point.
type endPointKind int

const (
	kindSingleReal endPointKind = iota
	kindSingleVirtual
	kindCollectionReal
	kindCollectionVirtual
)

func kindOf(def ir.RelationDef) endPointKind {
	switch {
	case def.IsCollection() && def.Virtual:
		return kindCollectionVirtual
	case def.IsCollection():
		return kindCollectionReal
	case def.Virtual:
		return kindSingleVirtual
	}
	return kindSingleReal
}

func (k endPointKind) String() string {
	return [...]string{"SingleReal", "SingleVirtual", "CollectionReal", "CollectionVirtual"}[k]
}

func (k endPointKind) isSingle() bool  { return k == kindSingleReal || k == kindSingleVirtual }
func (k endPointKind) isVirtual() bool { return k == kindSingleVirtual || k == kindCollectionVirtual }

// endPoint is one side of a relation for one record.
//
// Single end-points hold zero or one id in current/original. Real
// end-points are materialized from storage data when their record is
// registered. Virtual end-points start unloaded and are derived from the
// opposite real end-points on first access.
type endPoint struct {
	id       ir.EndPointID
	def      ir.RelationDef
	kind     endPointKind
	loaded   bool
	current  []ir.EntityID
	original []ir.EntityID

	// changed caches hasChanged; nil means stale.
	changed *bool
}

func newEndPoint(id ir.EndPointID, def ir.RelationDef) *endPoint {
	return &endPoint{id: id, def: def, kind: kindOf(def)}
}

func (ep *endPoint) single() ir.EntityID {
	if len(ep.current) == 0 {
		return ir.EntityID{}
	}
	return ep.current[0]
}

func (ep *endPoint) contains(id ir.EntityID) bool {
	return slices.Contains(ep.current, id)
}

func (ep *endPoint) set(id ir.EntityID) {
	if id.IsNull() {
		ep.current = nil
	} else {
		ep.current = []ir.EntityID{id}
	}
	ep.invalidate()
}

// insert adds id at index, or appends when index is out of range.
func (ep *endPoint) insert(id ir.EntityID, index int) {
	if ep.contains(id) {
		return
	}
	if index < 0 || index > len(ep.current) {
		index = len(ep.current)
	}
	ep.current = slices.Insert(slices.Clone(ep.current), index, id)
	ep.invalidate()
}

func (ep *endPoint) remove(id ir.EntityID) {
	i := slices.Index(ep.current, id)
	if i < 0 {
		return
	}
	ep.current = slices.Delete(slices.Clone(ep.current), i, i+1)
	ep.invalidate()
}

func (ep *endPoint) replaceAt(index int, id ir.EntityID) {
	ep.current = slices.Clone(ep.current)
	ep.current[index] = id
	ep.invalidate()
}

func (ep *endPoint) setAll(ids []ir.EntityID) {
	ep.current = cloneIDs(ids)
	ep.invalidate()
}

func (ep *endPoint) invalidate() { ep.changed = nil }

// hasChanged compares current with original. Collection real end-points
// compare content and order; virtual collections compare content only,
// since their order comes from queries.
func (ep *endPoint) hasChanged() bool {
	if !ep.loaded {
		return false
	}
	if ep.changed != nil {
		return *ep.changed
	}
	var changed bool
	if ep.kind == kindCollectionVirtual {
		changed = !sameMembers(ep.current, ep.original)
	} else {
		changed = !slices.Equal(ep.current, ep.original)
	}
	ep.changed = &changed
	return changed
}

func (ep *endPoint) commit() {
	ep.original = cloneIDs(ep.current)
	ep.invalidate()
}

func (ep *endPoint) revert() {
	ep.current = cloneIDs(ep.original)
	ep.invalidate()
}

func cloneIDs(ids []ir.EntityID) []ir.EntityID {
	if len(ids) == 0 {
		return nil
	}
	return slices.Clone(ids)
}

func sameMembers(a, b []ir.EntityID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[ir.EntityID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
