package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/queryir"
)

// CallCounts reports how often each MemoryStorage entry point was used.
type CallCounts struct {
	Load        int
	LoadRelated int
	Persist     int
	Query       int
}

// MemoryStorage is an in-memory Storage and QueryExecutor for tests.
//
// Records keep insertion order, which is the order LoadRelated and queries
// without ORDER BY return them in. Persist enforces optimistic revisions the
// same way the SQLite store does.
type MemoryStorage struct {
	mu        sync.Mutex
	records   map[ir.EntityID]ir.StoredRecord
	order     []ir.EntityID
	revisions *RevisionCounter
	calls     CallCounts
	batches   [][]ir.PersistRecord

	// FailPersist, when set, is returned by the next Persist call.
	FailPersist error
}

// NewMemoryStorage creates a storage holding records.
func NewMemoryStorage(records ...ir.StoredRecord) *MemoryStorage {
	s := &MemoryStorage{
		records:   make(map[ir.EntityID]ir.StoredRecord),
		revisions: NewRevisionCounter(),
	}
	s.Seed(records...)
	return s
}

// Seed inserts or overwrites records. A zero revision gets a fresh one.
func (s *MemoryStorage) Seed(records ...ir.StoredRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r = r.Clone()
		if r.Revision == 0 {
			r.Revision = s.revisions.Next()
		}
		if r.Properties == nil {
			r.Properties = ir.IRObject{}
		}
		s.put(r)
	}
}

func (s *MemoryStorage) put(r ir.StoredRecord) {
	if _, ok := s.records[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = r
}

func (s *MemoryStorage) drop(id ir.EntityID) {
	delete(s.records, id)
	s.order = slices.DeleteFunc(s.order, func(x ir.EntityID) bool { return x == id })
}

// Record returns a copy of the stored record.
func (s *MemoryStorage) Record(id ir.EntityID) (ir.StoredRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r.Clone(), ok
}

// Len returns the number of stored records.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Touch bumps the revision of id, as a concurrent writer would.
func (s *MemoryStorage) Touch(id ir.EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		r.Revision = s.revisions.Next()
		s.records[id] = r
	}
}

// Calls returns the call counters.
func (s *MemoryStorage) Calls() CallCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Batches returns every batch passed to a successful Persist call.
func (s *MemoryStorage) Batches() [][]ir.PersistRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.batches)
}

// Load returns the stored records among ids, in the order of ids.
func (s *MemoryStorage) Load(_ context.Context, ids []ir.EntityID) ([]ir.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Load++
	var out []ir.StoredRecord
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// LoadRelated returns the records of def.Class whose real end-point
// def.Opposite points at ep.Entity.
func (s *MemoryStorage) LoadRelated(_ context.Context, ep ir.EndPointID, def ir.RelationDef) ([]ir.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.LoadRelated++
	var out []ir.StoredRecord
	for _, id := range s.order {
		if id.Class != def.Class {
			continue
		}
		r := s.records[id]
		if r.Refs[def.Opposite] == ep.Entity || slices.Contains(r.Lists[def.Opposite], ep.Entity) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Persist applies batch atomically. Inserts of existing ids and moved
// revisions fail the whole batch with ir.ErrConcurrency.
func (s *MemoryStorage) Persist(_ context.Context, batch []ir.PersistRecord) (map[ir.EntityID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Persist++
	if err := s.FailPersist; err != nil {
		s.FailPersist = nil
		return nil, err
	}
	for _, w := range batch {
		cur, exists := s.records[w.Record.ID]
		switch w.Op {
		case ir.OpInsert:
			if exists {
				return nil, fmt.Errorf("%w: %s already exists", ir.ErrConcurrency, w.Record.ID)
			}
		case ir.OpUpdate, ir.OpDelete:
			if !exists {
				return nil, fmt.Errorf("%w: %s no longer exists", ir.ErrConcurrency, w.Record.ID)
			}
			if cur.Revision != w.ExpectedRevision {
				return nil, fmt.Errorf("%w: %s at revision %d, expected %d",
					ir.ErrConcurrency, w.Record.ID, cur.Revision, w.ExpectedRevision)
			}
		default:
			return nil, fmt.Errorf("unknown persist op %q", w.Op)
		}
	}
	revs := make(map[ir.EntityID]int64, len(batch))
	for _, w := range batch {
		if w.Op == ir.OpDelete {
			s.drop(w.Record.ID)
			continue
		}
		r := w.Record.Clone()
		r.Revision = s.revisions.Next()
		s.put(r)
		revs[r.ID] = r.Revision
	}
	s.batches = append(s.batches, slices.Clone(batch))
	return revs, nil
}

func (s *MemoryStorage) selectRecords(sel queryir.Select) []ir.StoredRecord {
	var out []ir.StoredRecord
	for _, id := range s.order {
		r := s.records[id]
		if id.Class != sel.Class {
			continue
		}
		if sel.Filter != nil && !queryir.Match(sel.Filter, r) {
			continue
		}
		out = append(out, r.Clone())
	}
	return queryir.Sort(sel, out)
}

func sourceOf(q queryir.Query) (queryir.Select, error) {
	switch query := q.(type) {
	case queryir.Select:
		return query, nil
	case *queryir.Select:
		return *query, nil
	case queryir.Project:
		return query.Source, nil
	case *queryir.Project:
		return query.Source, nil
	}
	return queryir.Select{}, fmt.Errorf("unsupported query %T", q)
}

// ExecuteCollection returns the records selected by q.
func (s *MemoryStorage) ExecuteCollection(_ context.Context, q queryir.Query) ([]ir.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Query++
	sel, err := sourceOf(q)
	if err != nil {
		return nil, err
	}
	return s.selectRecords(sel), nil
}

// ExecuteCustom returns projected rows. A plain Select yields every
// property plus "key".
func (s *MemoryStorage) ExecuteCustom(_ context.Context, q queryir.Query) ([]ir.IRObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Query++
	sel, err := sourceOf(q)
	if err != nil {
		return nil, err
	}
	proj, isProject := q.(queryir.Project)
	if p, ok := q.(*queryir.Project); ok {
		proj, isProject = *p, true
	}
	var rows []ir.IRObject
	for _, r := range s.selectRecords(sel) {
		if isProject {
			rows = append(rows, queryir.ProjectRow(proj, r))
			continue
		}
		row := r.Properties.Clone()
		row["key"] = ir.IRString(r.ID.Key)
		rows = append(rows, row)
	}
	return rows, nil
}
