package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/txgraph/internal/ir"
)

// Persist applies batch in one SQL transaction and returns the new revision
// of every inserted or updated record.
//
// Inserts of existing keys and updates or deletes whose ExpectedRevision no
// longer matches fail the whole batch with an error wrapping
// ir.ErrConcurrency. An empty batch writes nothing and is not logged.
func (s *Store) Persist(ctx context.Context, batch []ir.PersistRecord) (map[ir.EntityID]int64, error) {
	revs := make(map[ir.EntityID]int64, len(batch))
	if len(batch) == 0 {
		return revs, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("persist: begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var counts [3]int64
	for _, w := range batch {
		switch w.Op {
		case ir.OpInsert:
			rev, err := insertRecord(ctx, tx, w.Record)
			if err != nil {
				return nil, fmt.Errorf("persist: %w", err)
			}
			revs[w.Record.ID] = rev
			counts[0]++
		case ir.OpUpdate:
			rev, err := updateRecord(ctx, tx, w.Record, w.ExpectedRevision)
			if err != nil {
				return nil, fmt.Errorf("persist: %w", err)
			}
			revs[w.Record.ID] = rev
			counts[1]++
		case ir.OpDelete:
			if err := deleteRecord(ctx, tx, w.Record.ID, w.ExpectedRevision); err != nil {
				return nil, fmt.Errorf("persist: %w", err)
			}
			counts[2]++
		default:
			return nil, fmt.Errorf("persist: unknown op %q for %s", w.Op, w.Record.ID)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO commits (inserts, updates, deletes) VALUES (?, ?, ?)`,
		counts[0], counts[1], counts[2]); err != nil {
		return nil, fmt.Errorf("persist: log commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("persist: commit: %w", err)
	}
	return revs, nil
}

// insertRecord writes a new row at revision 1.
func insertRecord(ctx context.Context, tx *sql.Tx, r ir.StoredRecord) (int64, error) {
	cols, err := encodeRecord(r)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", r.ID, err)
	}
	// ON CONFLICT DO NOTHING turns a duplicate key into zero affected rows
	// so it can be reported as a revision conflict.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO records (class, key, revision, properties, refs, lists)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(class, key) DO NOTHING
	`, r.ID.Class, r.ID.Key, cols.properties, cols.refs, cols.lists)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", r.ID, err)
	}
	if err := expectOneRow(res, r.ID, "already exists"); err != nil {
		return 0, err
	}
	return 1, nil
}

// updateRecord overwrites a row if it is still at expected and bumps its
// revision.
func updateRecord(ctx context.Context, tx *sql.Tx, r ir.StoredRecord, expected int64) (int64, error) {
	cols, err := encodeRecord(r)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", r.ID, err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE records
		SET revision = revision + 1, properties = ?, refs = ?, lists = ?
		WHERE class = ? AND key = ? AND revision = ?
	`, cols.properties, cols.refs, cols.lists, r.ID.Class, r.ID.Key, expected)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", r.ID, err)
	}
	if err := expectOneRow(res, r.ID, fmt.Sprintf("moved from revision %d", expected)); err != nil {
		return 0, err
	}
	return expected + 1, nil
}

func deleteRecord(ctx context.Context, tx *sql.Tx, id ir.EntityID, expected int64) error {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE class = ? AND key = ? AND revision = ?`,
		id.Class, id.Key, expected)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return expectOneRow(res, id, fmt.Sprintf("moved from revision %d", expected))
}

func expectOneRow(res sql.Result, id ir.EntityID, reason string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", id, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s %s", ir.ErrConcurrency, id, reason)
	}
	return nil
}

// IsConcurrencyError reports whether err came from a revision conflict.
func IsConcurrencyError(err error) bool {
	return errors.Is(err, ir.ErrConcurrency)
}
