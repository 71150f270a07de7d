package engine

import "github.com/roach88/txgraph/internal/ir"

// notifiedSet remembers which records were already announced in a commit
// or rollback, in first-announced order.
type notifiedSet struct {
	order []ir.EntityID
	seen  map[ir.EntityID]bool
}

func newNotifiedSet() *notifiedSet {
	return &notifiedSet{seen: make(map[ir.EntityID]bool)}
}

func (n *notifiedSet) mark(ids []ir.EntityID) {
	for _, id := range ids {
		if !n.seen[id] {
			n.seen[id] = true
			n.order = append(n.order, id)
		}
	}
}

func (n *notifiedSet) has(id ir.EntityID) bool { return n.seen[id] }

// unseen filters ids down to those never announced.
func (n *notifiedSet) unseen(ids []ir.EntityID) []ir.EntityID {
	var out []ir.EntityID
	for _, id := range ids {
		if !n.seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func (n *notifiedSet) all() []ir.EntityID { return cloneIDs(n.order) }
