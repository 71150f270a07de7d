package engine

import (
	"errors"

	"github.com/roach88/txgraph/internal/ir"
)

type modKind int

const (
	modSet modKind = iota
	modInsert
	modRemove
	modReplace
	modReorder
)

// modification is one end-point change within a relation change. The full
// list is computed before any event fires so that a veto leaves the graph
// untouched.
type modification struct {
	ep         *endPoint
	kind       modKind
	oldRelated ir.EntityID
	newRelated ir.EntityID
	index      int
	items      []ir.EntityID

	// silent modifications are applied without Changing/Changed events.
	silent bool
}

func setMod(ep *endPoint, old, next ir.EntityID) *modification {
	return &modification{ep: ep, kind: modSet, oldRelated: old, newRelated: next}
}

func insertMod(ep *endPoint, item ir.EntityID, index int) *modification {
	return &modification{ep: ep, kind: modInsert, newRelated: item, index: index}
}

func removeMod(ep *endPoint, item ir.EntityID) *modification {
	return &modification{ep: ep, kind: modRemove, oldRelated: item}
}

func replaceMod(ep *endPoint, index int, old, next ir.EntityID) *modification {
	return &modification{ep: ep, kind: modReplace, index: index, oldRelated: old, newRelated: next}
}

func reorderMod(ep *endPoint, items []ir.EntityID) *modification {
	return &modification{ep: ep, kind: modReorder, items: cloneIDs(items)}
}

func (m *modification) apply() {
	switch m.kind {
	case modSet:
		m.ep.set(m.newRelated)
	case modInsert:
		m.ep.insert(m.newRelated, m.index)
	case modRemove:
		m.ep.remove(m.oldRelated)
	case modReplace:
		m.ep.replaceAt(m.index, m.newRelated)
	case modReorder:
		m.ep.setAll(m.items)
	}
}

func (m *modification) event(kind EventKind) Event {
	return Event{Kind: kind, EndPoint: m.ep.id, OldRelated: m.oldRelated, NewRelated: m.newRelated}
}

// perform runs a relation change: Changing for every modification in order,
// then all modifications at once, then Changed in reverse order. Errors from
// Changed observers are joined and returned after the change is complete.
func (tx *Transaction) perform(mods []*modification) error {
	for _, m := range mods {
		if m.silent {
			continue
		}
		if err := tx.emit(m.event(EventRelationChanging)); err != nil {
			return err
		}
	}

	var owners []*Record
	before := make(map[ir.EntityID]ir.State)
	for _, m := range mods {
		id := m.ep.id.Entity
		if _, ok := before[id]; ok {
			continue
		}
		if rec, ok := tx.records[id]; ok {
			owners = append(owners, rec)
			before[id] = rec.State()
		}
	}
	for _, m := range mods {
		m.apply()
	}
	for _, rec := range owners {
		tx.stateUpdated(rec, before[rec.id])
	}

	var errs []error
	for i := len(mods) - 1; i >= 0; i-- {
		if mods[i].silent {
			continue
		}
		if err := tx.emit(mods[i].event(EventRelationChanged)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
