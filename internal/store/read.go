package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/querysql"
)

// Load returns the stored records among ids, in the order of ids.
// Missing ids are skipped; the engine reports them as not found.
func (s *Store) Load(ctx context.Context, ids []ir.EntityID) ([]ir.StoredRecord, error) {
	out := make([]ir.StoredRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.ReadRecord(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadRecord retrieves a single record.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRecord(ctx context.Context, id ir.EntityID) (ir.StoredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+querysql.RecordColumns+` FROM records WHERE class = ? AND key = ?`,
		id.Class, id.Key)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.StoredRecord{}, sql.ErrNoRows
		}
		return ir.StoredRecord{}, err
	}
	return rec, nil
}

// LoadRelated returns the records of def.Class whose real end-point
// def.Opposite points at ep.Entity, either as a single reference or as a
// collection member.
func (s *Store) LoadRelated(ctx context.Context, ep ir.EndPointID, def ir.RelationDef) ([]ir.StoredRecord, error) {
	if def.Opposite == "" {
		return nil, fmt.Errorf("load related %s: relation has no opposite", ep)
	}
	path := `$."` + def.Opposite + `"`
	target := ep.Entity.String()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+querysql.RecordColumns+`
		FROM records
		WHERE class = ?
		  AND (json_extract(refs, ?) = ?
		       OR EXISTS (SELECT 1 FROM json_each(records.lists, ?) WHERE json_each.value = ?))
		ORDER BY key ASC COLLATE BINARY
	`, def.Class, path, target, path, target)
	if err != nil {
		return nil, fmt.Errorf("load related %s: %w", ep, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Dump returns every stored record ordered by class then key.
func (s *Store) Dump(ctx context.Context) ([]ir.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+querysql.RecordColumns+`
		FROM records
		ORDER BY class ASC COLLATE BINARY, key ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("dump records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CommitStats summarizes the commit log.
type CommitStats struct {
	Commits int64 `json:"commits"`
	Inserts int64 `json:"inserts"`
	Updates int64 `json:"updates"`
	Deletes int64 `json:"deletes"`
}

// Stats returns totals over all persisted batches.
func (s *Store) Stats(ctx context.Context) (CommitStats, error) {
	var st CommitStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(inserts), 0), COALESCE(SUM(updates), 0), COALESCE(SUM(deletes), 0)
		FROM commits
	`).Scan(&st.Commits, &st.Inserts, &st.Updates, &st.Deletes)
	if err != nil {
		return CommitStats{}, fmt.Errorf("commit stats: %w", err)
	}
	return st, nil
}

func collectRecords(rows *sql.Rows) ([]ir.StoredRecord, error) {
	records := []ir.StoredRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
