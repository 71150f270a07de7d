package engine

import "github.com/roach88/txgraph/internal/ir"

// Observer projections of the event stream.
//
// Listeners see every event. Extensions and transaction handlers see
// lifecycle events only. Record handlers see lifecycle events that concern
// their record: batch events once per listed id, single-record and relation
// events when the record (or the end-point's owner) is the subject.

func forListeners(EventKind) bool { return true }

func forExtensions(k EventKind) bool { return !k.IsStructural() }

// recordTargets lists the records whose handlers receive ev, in delivery order.
func recordTargets(ev Event) []ir.EntityID {
	if ev.Kind.IsStructural() {
		return nil
	}
	switch {
	case len(ev.IDs) > 0:
		return ev.IDs
	case ev.Kind == EventCommitValidate:
		ids := make([]ir.EntityID, len(ev.Data))
		for i, d := range ev.Data {
			ids[i] = d.ID
		}
		return ids
	case !ev.EndPoint.Entity.IsNull():
		return []ir.EntityID{ev.EndPoint.Entity}
	case !ev.Entity.IsNull():
		return []ir.EntityID{ev.Entity}
	}
	return nil
}

type recordHandler struct {
	kind EventKind
	fn   Handler
}

func (h recordHandler) matches(ev Event) bool {
	return h.kind == ev.Kind
}
