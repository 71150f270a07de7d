package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seed inserts records in one batch and returns their revisions.
func seed(t *testing.T, s *Store, recs ...ir.StoredRecord) map[ir.EntityID]int64 {
	t.Helper()
	batch := make([]ir.PersistRecord, len(recs))
	for i, r := range recs {
		batch[i] = ir.PersistRecord{Op: ir.OpInsert, Record: r}
	}
	revs, err := s.Persist(context.Background(), batch)
	require.NoError(t, err)
	return revs
}

var (
	ada   = testutil.ID("Person", "ada")
	bob   = testutil.ID("Person", "bob")
	desk1 = testutil.ID("Desk", "d1")
	tagGo = testutil.ID("Tag", "go")
	tagDB = testutil.ID("Tag", "db")
)

// officeRows mirrors a small office: ada owns d1 and carries both tags,
// bob carries only "go".
func officeRows() []ir.StoredRecord {
	return []ir.StoredRecord{
		testutil.WithList(testutil.WithRef(testutil.Row(ada, "name", "Ada"), "desk", desk1), "tags", tagGo, tagDB),
		testutil.WithList(testutil.Row(bob, "name", "Bob"), "tags", tagGo),
		testutil.Row(desk1, "label", "window"),
		testutil.Row(tagGo, "label", "go"),
		testutil.Row(tagDB, "label", "db"),
	}
}
