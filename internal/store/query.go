package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/queryir"
	"github.com/roach88/txgraph/internal/querysql"
)

// ExecuteCollection returns the records selected by q. A Project runs its
// source Select.
func (s *Store) ExecuteCollection(ctx context.Context, q queryir.Query) ([]ir.StoredRecord, error) {
	sel, ok := sourceSelect(q)
	if !ok {
		return nil, fmt.Errorf("execute collection: unsupported query %T", q)
	}
	query, params, err := s.compiler.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("execute collection: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("execute collection: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ExecuteCustom returns one row per selected record. A Project yields
// "key" plus its output columns; a plain Select yields every property plus
// "key".
func (s *Store) ExecuteCustom(ctx context.Context, q queryir.Query) ([]ir.IRObject, error) {
	var proj queryir.Project
	switch query := q.(type) {
	case queryir.Project:
		proj = query
	case *queryir.Project:
		proj = *query
	default:
		recs, err := s.ExecuteCollection(ctx, q)
		if err != nil {
			return nil, err
		}
		rows := make([]ir.IRObject, 0, len(recs))
		for _, r := range recs {
			row := r.Properties.Clone()
			if row == nil {
				row = ir.IRObject{}
			}
			row["key"] = ir.IRString(r.ID.Key)
			rows = append(rows, row)
		}
		return rows, nil
	}

	query, params, err := s.compiler.Compile(proj)
	if err != nil {
		return nil, fmt.Errorf("execute custom: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("execute custom: %w", err)
	}
	defer rows.Close()

	props := querysql.Columns(proj)
	out := []ir.IRObject{}
	for rows.Next() {
		var key string
		values := make([]sql.NullString, len(props))
		dest := make([]any, 0, len(props)+1)
		dest = append(dest, &key)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("execute custom: scan: %w", err)
		}
		row := ir.IRObject{"key": ir.IRString(key)}
		for i, prop := range props {
			v, err := decodeColumn(values[i])
			if err != nil {
				return nil, fmt.Errorf("execute custom: %s.%s: %w", key, prop, err)
			}
			row[proj.Fields[prop]] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execute custom: iterate: %w", err)
	}
	return out, nil
}

// decodeColumn parses a JSON text column produced by the -> operator.
// SQL NULL means the property was never set.
func decodeColumn(col sql.NullString) (ir.IRValue, error) {
	if !col.Valid {
		return ir.IRNull{}, nil
	}
	return ir.UnmarshalIRValue([]byte(col.String))
}

func sourceSelect(q queryir.Query) (queryir.Select, bool) {
	switch query := q.(type) {
	case queryir.Select:
		return query, true
	case *queryir.Select:
		return *query, true
	case queryir.Project:
		return query.Source, true
	case *queryir.Project:
		return query.Source, true
	}
	return queryir.Select{}, false
}
