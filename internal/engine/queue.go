package engine

import "github.com/roach88/txgraph/internal/ir"

// workQueue is an insertion-ordered queue of record ids without duplicates.
type workQueue struct {
	items []ir.EntityID
	set   map[ir.EntityID]bool
}

func newWorkQueue() *workQueue {
	return &workQueue{set: make(map[ir.EntityID]bool)}
}

func (q *workQueue) push(ids ...ir.EntityID) {
	for _, id := range ids {
		if q.set[id] {
			continue
		}
		q.set[id] = true
		q.items = append(q.items, id)
	}
}

func (q *workQueue) len() int { return len(q.items) }

// drain returns all queued ids and empties the queue.
func (q *workQueue) drain() []ir.EntityID {
	out := q.items
	q.items = nil
	q.set = make(map[ir.EntityID]bool)
	return out
}
