package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/testutil"
)

func TestPersist_InsertStartsAtRevisionOne(t *testing.T) {
	s := createTestStore(t)
	revs := seed(t, s, officeRows()...)

	require.Len(t, revs, 5)
	for id, rev := range revs {
		assert.Equal(t, int64(1), rev, id.String())
	}

	got, err := s.ReadRecord(context.Background(), ada)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Revision)
	assert.Equal(t, ir.IRString("Ada"), got.Properties["name"])
	assert.Equal(t, desk1, got.Refs["desk"])
	assert.Equal(t, []ir.EntityID{tagGo, tagDB}, got.Lists["tags"])
}

func TestPersist_UpdateBumpsRevision(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed(t, s, officeRows()...)

	rec := testutil.Row(ada, "name", "Ada L.")
	revs, err := s.Persist(ctx, []ir.PersistRecord{{Op: ir.OpUpdate, Record: rec, ExpectedRevision: 1}})
	require.NoError(t, err)
	assert.Equal(t, map[ir.EntityID]int64{ada: 2}, revs)

	got, err := s.ReadRecord(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
	assert.Equal(t, ir.IRString("Ada L."), got.Properties["name"])
	assert.Empty(t, got.Refs, "update replaces the whole row")
	assert.Empty(t, got.Lists)
}

func TestPersist_Delete(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed(t, s, officeRows()...)

	revs, err := s.Persist(ctx, []ir.PersistRecord{{Op: ir.OpDelete, Record: ir.StoredRecord{ID: bob}, ExpectedRevision: 1}})
	require.NoError(t, err)
	assert.Empty(t, revs)

	_, err = s.ReadRecord(ctx, bob)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPersist_ConcurrencyConflicts(t *testing.T) {
	tests := []struct {
		name  string
		write ir.PersistRecord
	}{
		{"insert existing", ir.PersistRecord{Op: ir.OpInsert, Record: testutil.Row(ada, "name", "Dup")}},
		{"stale update", ir.PersistRecord{Op: ir.OpUpdate, Record: testutil.Row(ada, "name", "X"), ExpectedRevision: 7}},
		{"update missing", ir.PersistRecord{Op: ir.OpUpdate, Record: testutil.Row(testutil.ID("Person", "zed")), ExpectedRevision: 1}},
		{"stale delete", ir.PersistRecord{Op: ir.OpDelete, Record: ir.StoredRecord{ID: bob}, ExpectedRevision: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := createTestStore(t)
			seed(t, s, officeRows()...)

			// The first write is valid; the conflict must undo it too.
			batch := []ir.PersistRecord{
				{Op: ir.OpInsert, Record: testutil.Row(testutil.ID("Tag", "new"), "label", "new")},
				tt.write,
			}
			_, err := s.Persist(ctx, batch)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ir.ErrConcurrency))
			assert.True(t, IsConcurrencyError(err))

			_, err = s.ReadRecord(ctx, testutil.ID("Tag", "new"))
			assert.ErrorIs(t, err, sql.ErrNoRows, "batch must be all or nothing")

			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), st.Commits)
		})
	}
}

func TestPersist_EmptyBatchWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	revs, err := s.Persist(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, revs)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, CommitStats{}, st)
}

func TestPersist_UnknownOp(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Persist(context.Background(), []ir.PersistRecord{{Op: "upsert", Record: testutil.Row(ada)}})
	assert.ErrorContains(t, err, `unknown op "upsert"`)
}

func TestPersist_CommitLog(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed(t, s, officeRows()...)

	_, err := s.Persist(ctx, []ir.PersistRecord{
		{Op: ir.OpUpdate, Record: testutil.Row(ada, "name", "A"), ExpectedRevision: 1},
		{Op: ir.OpDelete, Record: ir.StoredRecord{ID: tagDB}, ExpectedRevision: 1},
	})
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, CommitStats{Commits: 2, Inserts: 5, Updates: 1, Deletes: 1}, st)
}

func TestPersist_CanonicalProperties(t *testing.T) {
	s := createTestStore(t)
	seed(t, s, testutil.Row(tagGo, "label", "go", "meta", map[string]any{"z": 1, "a": true}))

	var props string
	require.NoError(t, s.db.QueryRow(`SELECT properties FROM records WHERE key = 'go'`).Scan(&props))
	assert.Equal(t, `{"label":"go","meta":{"a":true,"z":1}}`, props)
}

func TestPersist_RejectsInvalidUTF8(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.Persist(ctx, []ir.PersistRecord{{Op: ir.OpInsert, Record: testutil.Row(tagGo, "label", "bad\xffbyte")}})
	assert.ErrorContains(t, err, "not valid UTF-8")

	recs, err := s.Load(ctx, []ir.EntityID{tagGo})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPersist_StringsKeptExactly(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	label := ir.IRString("Cafe\u0301 \u2028 <b>")
	seed(t, s, testutil.Row(tagGo, "label", string(label)))

	got, err := s.ReadRecord(ctx, tagGo)
	require.NoError(t, err)
	assert.Equal(t, label, got.Properties["label"])
}
