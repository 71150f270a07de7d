package engine

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/ir"
)

func TestSetRelated_OneToOneSwapOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.root.EnsureLoaded(f.ctx, p1, p2, d1, d2))
	relatedIDs(t, f.root, ep(d1, "owner"))
	relatedIDs(t, f.root, ep(d2, "owner"))
	r := record(f.root)

	require.NoError(t, f.root.SetRelated(f.ctx, ep(p1, "desk"), d2))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "one_to_one_swap", []byte(r.String()))

	assert.Equal(t, []ir.EntityID{d2}, relatedIDs(t, f.root, ep(p1, "desk")))
	assert.Empty(t, relatedIDs(t, f.root, ep(p2, "desk")))
	assert.Empty(t, relatedIDs(t, f.root, ep(d1, "owner")))
	assert.Equal(t, []ir.EntityID{p1}, relatedIDs(t, f.root, ep(d2, "owner")))
	for _, id := range []ir.EntityID{p1, p2, d1, d2} {
		assert.Equal(t, ir.StateChanged, f.root.State(id), id.String())
	}
}

func TestSetRelated_LoadsOppositesFirst(t *testing.T) {
	f := newFixture(t)
	r := record(f.root)

	require.NoError(t, f.root.SetRelated(f.ctx, ep(p1, "desk"), d2))

	kinds := r.Kinds()
	first := -1
	for i, k := range kinds {
		if k == EventRelationChanging {
			first = i
			break
		}
	}
	require.GreaterOrEqual(t, first, 0)
	for _, k := range kinds[first:] {
		assert.NotEqual(t, EventObjectsLoading, k)
	}
	assert.Equal(t, 4, r.Count(EventRelationChanging))
}

func TestSetRelated_SameValueIsSilent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.root.EnsureLoaded(f.ctx, p1, d1))
	relatedIDs(t, f.root, ep(d1, "owner"))
	r := record(f.root, WithStructural())

	require.NoError(t, f.root.SetRelated(f.ctx, ep(p1, "desk"), d1))
	require.NoError(t, f.root.SetRelated(f.ctx, ep(d1, "owner"), p1))
	assert.Empty(t, r.Events())
}

func TestSetRelated_FromVirtualSide(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.root.SetRelated(f.ctx, ep(d1, "owner"), p3))

	assert.Equal(t, []ir.EntityID{p3}, relatedIDs(t, f.root, ep(d1, "owner")))
	assert.Equal(t, []ir.EntityID{d1}, relatedIDs(t, f.root, ep(p3, "desk")))
	assert.Empty(t, relatedIDs(t, f.root, ep(p1, "desk")))
}

func TestSetRelated_Clear(t *testing.T) {
	f := newFixture(t)
	r := record(f.root)

	require.NoError(t, f.root.SetRelated(f.ctx, ep(p1, "desk"), ir.EntityID{}))

	assert.Equal(t, []string{
		"RelationChanging Person/p1.desk Desk/d1 -> null",
		"RelationChanging Desk/d1.owner Person/p1 -> null",
		"RelationChanged Desk/d1.owner Person/p1 -> null",
		"RelationChanged Person/p1.desk Desk/d1 -> null",
	}, linesOf(r, EventRelationChanging, EventRelationChanged))

	rec, err := f.root.Related(f.ctx, ep(p1, "desk"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSetRelated_Errors(t *testing.T) {
	f := newFixture(t)

	err := f.root.SetRelated(f.ctx, ep(p1, "desk"), t1)
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))

	err = f.root.SetRelated(f.ctx, ep(p1, "tags"), t1)
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))

	err = f.root.SetRelated(f.ctx, ep(p1, "chair"), d1)
	assert.Equal(t, ErrCodeRelationNotFound, CodeOf(err))

	require.NoError(t, f.root.Delete(f.ctx, d2))
	err = f.root.SetRelated(f.ctx, ep(p1, "desk"), d2)
	assert.Equal(t, ErrCodeObjectDeleted, CodeOf(err))
}

func TestSetRelated_VetoLeavesGraphUntouched(t *testing.T) {
	f := newFixture(t)
	f.root.HandleRecord(p2, EventRelationChanging, func(Event) error { return assert.AnError })

	err := f.root.SetRelated(f.ctx, ep(p1, "desk"), d2)
	assert.Equal(t, ErrCodeVetoed, CodeOf(err))

	assert.Equal(t, []ir.EntityID{d1}, relatedIDs(t, f.root, ep(p1, "desk")))
	assert.Equal(t, []ir.EntityID{d2}, relatedIDs(t, f.root, ep(p2, "desk")))
	assert.Equal(t, []ir.EntityID{p2}, relatedIDs(t, f.root, ep(d2, "owner")))
	assert.Equal(t, ir.StateUnchanged, f.root.State(p1))
}

func TestAddRelated_FromVirtualCollection(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []ir.EntityID{o1, o3}, relatedIDs(t, f.root, ep(c1, "orders")))
	assert.Equal(t, []ir.EntityID{o2}, relatedIDs(t, f.root, ep(c2, "orders")))
	r := record(f.root)

	require.NoError(t, f.root.AddRelated(f.ctx, ep(c1, "orders"), o2))

	assert.Equal(t, []string{
		"RelationChanging Customer/c1.orders null -> Order/o2",
		"RelationChanging Order/o2.customer Customer/c2 -> Customer/c1",
		"RelationChanging Customer/c2.orders Order/o2 -> null",
		"RelationChanged Customer/c2.orders Order/o2 -> null",
		"RelationChanged Order/o2.customer Customer/c2 -> Customer/c1",
		"RelationChanged Customer/c1.orders null -> Order/o2",
	}, r.Lines())
	assert.Equal(t, []ir.EntityID{o1, o3, o2}, relatedIDs(t, f.root, ep(c1, "orders")))
	assert.Empty(t, relatedIDs(t, f.root, ep(c2, "orders")))

	// Adding a present item is a no-op.
	r.Reset()
	require.NoError(t, f.root.AddRelated(f.ctx, ep(c1, "orders"), o2))
	assert.Empty(t, r.Events())
}

func TestVirtualCollection_ReflectsInTransactionChanges(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.root.SetRelated(f.ctx, ep(o2, "customer"), c1))

	orders := relatedIDs(t, f.root, ep(c1, "orders"))
	assert.ElementsMatch(t, []ir.EntityID{o1, o2, o3}, orders)

	original, err := f.root.OriginalRelatedIDs(f.ctx, ep(c1, "orders"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []ir.EntityID{o1, o3}, original)
	assert.Equal(t, ir.StateChanged, f.root.State(c1))
}

func TestVirtualCollection_IncludesNewRecords(t *testing.T) {
	f := newFixture(t)
	rec, err := f.root.NewEntityWithKey(f.ctx, "Order", "o9")
	require.NoError(t, err)
	require.NoError(t, f.root.SetRelated(f.ctx, ep(rec.ID(), "customer"), c1))

	orders, err := f.root.RelatedObjects(f.ctx, ep(c1, "orders"))
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Same(t, rec, orders[2])
}

func TestManyToMany(t *testing.T) {
	f := newFixture(t)
	r := record(f.root)

	require.NoError(t, f.root.AddRelated(f.ctx, ep(p2, "tags"), t1))

	assert.Equal(t, []string{
		"RelationChanging Person/p2.tags null -> Tag/t1",
		"RelationChanging Tag/t1.people null -> Person/p2",
		"RelationChanged Tag/t1.people null -> Person/p2",
		"RelationChanged Person/p2.tags null -> Tag/t1",
	}, linesOf(r, EventRelationChanging, EventRelationChanged))
	assert.Equal(t, []ir.EntityID{p1, p2}, relatedIDs(t, f.root, ep(t1, "people")))

	require.NoError(t, f.root.RemoveRelated(f.ctx, ep(t1, "people"), p1))
	assert.Equal(t, []ir.EntityID{t2}, relatedIDs(t, f.root, ep(p1, "tags")))
	assert.Equal(t, []ir.EntityID{p2}, relatedIDs(t, f.root, ep(t1, "people")))
}

func TestInsertAndReplaceRelated(t *testing.T) {
	f := newFixture(t)
	tag, err := f.root.NewEntityWithKey(f.ctx, "Tag", "t3")
	require.NoError(t, err)

	require.NoError(t, f.root.InsertRelated(f.ctx, ep(p1, "tags"), 0, tag.ID()))
	assert.Equal(t, []ir.EntityID{tag.ID(), t1, t2}, relatedIDs(t, f.root, ep(p1, "tags")))

	// t1 is already at index 1.
	err = f.root.ReplaceRelated(f.ctx, ep(p1, "tags"), 2, t1)
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))

	require.NoError(t, f.root.RemoveRelated(f.ctx, ep(p1, "tags"), t1))
	require.NoError(t, f.root.ReplaceRelated(f.ctx, ep(p1, "tags"), 1, t1))
	assert.Equal(t, []ir.EntityID{tag.ID(), t1}, relatedIDs(t, f.root, ep(p1, "tags")))
	assert.Empty(t, relatedIDs(t, f.root, ep(t2, "people")))
	assert.Equal(t, []ir.EntityID{p1}, relatedIDs(t, f.root, ep(t1, "people")))

	err = f.root.ReplaceRelated(f.ctx, ep(p1, "tags"), 5, t2)
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))
	err = f.root.InsertRelated(f.ctx, ep(p1, "tags"), 7, t2)
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))
}

func TestReplaceAllRelated(t *testing.T) {
	f := newFixture(t)
	tag, err := f.root.NewEntityWithKey(f.ctx, "Tag", "t3")
	require.NoError(t, err)
	relatedIDs(t, f.root, ep(t1, "people"))
	relatedIDs(t, f.root, ep(t2, "people"))
	r := record(f.root)

	require.NoError(t, f.root.ReplaceAllRelated(f.ctx, ep(p1, "tags"), []ir.EntityID{tag.ID(), t2}))

	assert.Equal(t, []string{
		"RelationChanging Person/p1.tags Tag/t1 -> null",
		"RelationChanging Tag/t1.people Person/p1 -> null",
		"RelationChanging Person/p1.tags null -> Tag/t3",
		"RelationChanging Tag/t3.people null -> Person/p1",
		"RelationChanged Tag/t3.people null -> Person/p1",
		"RelationChanged Person/p1.tags null -> Tag/t3",
		"RelationChanged Tag/t1.people Person/p1 -> null",
		"RelationChanged Person/p1.tags Tag/t1 -> null",
	}, r.Lines())
	assert.Equal(t, []ir.EntityID{tag.ID(), t2}, relatedIDs(t, f.root, ep(p1, "tags")))
	assert.Empty(t, relatedIDs(t, f.root, ep(t1, "people")))

	err = f.root.ReplaceAllRelated(f.ctx, ep(p1, "tags"), []ir.EntityID{t2, t2})
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))
}

func TestReplaceAllRelated_Reorder(t *testing.T) {
	f := newFixture(t)
	relatedIDs(t, f.root, ep(c1, "orders"))
	require.NoError(t, f.root.EnsureLoaded(f.ctx, p1, t1, t2))
	r := record(f.root)

	// A real collection reorder is one event pair with no related ids.
	require.NoError(t, f.root.ReplaceAllRelated(f.ctx, ep(p1, "tags"), []ir.EntityID{t2, t1}))
	assert.Equal(t, []string{
		"RelationChanging Person/p1.tags null -> null",
		"RelationChanged Person/p1.tags null -> null",
	}, r.Lines())
	assert.Equal(t, []ir.EntityID{t2, t1}, relatedIDs(t, f.root, ep(p1, "tags")))
	assert.Equal(t, ir.StateChanged, f.root.State(p1))

	// A virtual collection reorder is silent and is not a change.
	r.Reset()
	require.NoError(t, f.root.ReplaceAllRelated(f.ctx, ep(c1, "orders"), []ir.EntityID{o3, o1}))
	assert.Empty(t, r.Events())
	assert.Equal(t, []ir.EntityID{o3, o1}, relatedIDs(t, f.root, ep(c1, "orders")))
	assert.Equal(t, ir.StateUnchanged, f.root.State(c1))

	// Same members, same order: nothing at all.
	require.NoError(t, f.root.ReplaceAllRelated(f.ctx, ep(p1, "tags"), []ir.EntityID{t2, t1}))
	assert.Empty(t, r.Events())
}

func TestVirtualCollection_LateLoadedRecordIsLinked(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []ir.EntityID{o1, o3}, relatedIDs(t, f.root, ep(c1, "orders")))

	o4 := ir.EntityID{Class: "Order", Key: "o4"}
	f.storage.Seed(ir.StoredRecord{
		ID:         o4,
		Properties: ir.IRObject{"number": ir.IRString("4")},
		Refs:       map[string]ir.EntityID{"customer": c1},
	})
	mustGet(t, f.root, o4)

	assert.Equal(t, []ir.EntityID{o1, o3, o4}, relatedIDs(t, f.root, ep(c1, "orders")))
	assert.Equal(t, ir.StateUnchanged, f.root.State(c1))
}

func TestRelated_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.root.Related(f.ctx, ep(p1, "tags"))
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))

	_, err = f.root.RelatedIDs(f.ctx, ep(p1, "nope"))
	assert.Equal(t, ErrCodeRelationNotFound, CodeOf(err))

	err = f.root.AddRelated(f.ctx, ep(p1, "desk"), d2)
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))

	desk, err := f.root.Related(f.ctx, ep(p1, "desk"))
	require.NoError(t, err)
	assert.Equal(t, d1, desk.ID())
}
