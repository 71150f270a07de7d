package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/testutil"
)

var (
	p1 = testutil.ID("Person", "p1")
	p2 = testutil.ID("Person", "p2")
	p3 = testutil.ID("Person", "p3")
	d1 = testutil.ID("Desk", "d1")
	d2 = testutil.ID("Desk", "d2")
	t1 = testutil.ID("Tag", "t1")
	t2 = testutil.ID("Tag", "t2")
	c1 = testutil.ID("Customer", "c1")
	c2 = testutil.ID("Customer", "c2")
	o1 = testutil.ID("Order", "o1")
	o2 = testutil.ID("Order", "o2")
	o3 = testutil.ID("Order", "o3")
	n1 = testutil.ID("Note", "n1")
)

// officeRows is the default storage content of engine tests.
func officeRows() []ir.StoredRecord {
	return []ir.StoredRecord{
		testutil.WithList(testutil.WithRef(testutil.Row(p1, "name", "Ann"), "desk", d1), "tags", t1, t2),
		testutil.WithRef(testutil.Row(p2, "name", "Bob"), "desk", d2),
		testutil.Row(p3, "name", "Cy"),
		testutil.Row(d1, "label", "window"),
		testutil.Row(d2, "label", "door"),
		testutil.Row(t1, "label", "red"),
		testutil.Row(t2, "label", "blue"),
		testutil.Row(c1, "name", "Acme"),
		testutil.Row(c2, "name", "Bolt"),
		testutil.WithRef(testutil.Row(o1, "number", "1", "qty", 3), "customer", c1),
		testutil.WithRef(testutil.Row(o2, "number", "2", "qty", 1), "customer", c2),
		testutil.WithRef(testutil.Row(o3, "number", "3", "qty", 3), "customer", c1),
		testutil.WithRef(testutil.Row(n1, "text", "hello"), "about", p1),
	}
}

type fixture struct {
	ctx     context.Context
	storage *testutil.MemoryStorage
	engine  *Engine
	root    *Transaction
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	storage := testutil.NewMemoryStorage(officeRows()...)
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithQueryExecutor(storage),
		WithKeyGenerator(NewSequenceGenerator("k")),
	}
	e := New(storage, testutil.OfficeModel(t), append(base, opts...)...)
	return &fixture{
		ctx:     context.Background(),
		storage: storage,
		engine:  e,
		root:    e.CreateRoot(),
	}
}

// record attaches a trace recorder to tx and its future subs.
func record(tx *Transaction, opts ...TraceOption) *TraceRecorder {
	r := NewTraceRecorder(opts...)
	r.Follow(tx)
	return r
}

func ep(id ir.EntityID, relation string) ir.EndPointID {
	return ir.EndPointID{Entity: id, Relation: relation}
}

func mustGet(t *testing.T, tx *Transaction, id ir.EntityID) *Record {
	t.Helper()
	rec, err := tx.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func relatedIDs(t *testing.T, tx *Transaction, id ir.EndPointID) []ir.EntityID {
	t.Helper()
	ids, err := tx.RelatedIDs(context.Background(), id)
	require.NoError(t, err)
	return ids
}

// linesOf keeps only the trace lines of the given kinds.
func linesOf(r *TraceRecorder, kinds ...EventKind) []string {
	var out []string
	for _, ev := range r.Events() {
		for _, k := range kinds {
			if ev.Kind == k {
				out = append(out, ev.String())
				break
			}
		}
	}
	return out
}
