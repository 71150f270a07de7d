package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/queryir"
)

func (tx *Transaction) checkQuery(q queryir.Query) error {
	if err := tx.checkUsable(); err != nil {
		return err
	}
	if tx.engine.query == nil {
		return &Error{Code: ErrCodeInvalidOperation, Message: "no query executor configured"}
	}
	if errs := queryir.Validate(q, tx.engine.schema); len(errs) > 0 {
		return &Error{Code: ErrCodeInvalidOperation, Message: "invalid query", Cause: errors.Join(errs...)}
	}
	return nil
}

// Execute runs a collection query and returns records in result order.
//
// A root registers rows it has not seen yet directly from the result; a sub
// resolves them through its parent. Records deleted or invalid in this
// transaction are dropped. The result then passes through every
// QueryFilter extension in registration order.
func (tx *Transaction) Execute(ctx context.Context, q queryir.Query) ([]*Record, error) {
	if err := tx.checkQuery(q); err != nil {
		return nil, err
	}
	rows, err := tx.engine.query.ExecuteCollection(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("execute %s query: %w", q.TargetClass(), err)
	}
	ids := make([]ir.EntityID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	if tx.parent == nil {
		var unknown []ir.StoredRecord
		var unknownIDs []ir.EntityID
		for _, row := range rows {
			if _, ok := tx.records[row.ID]; !ok {
				unknown = append(unknown, row)
				unknownIDs = append(unknownIDs, row.ID)
			}
		}
		if len(unknown) > 0 {
			if err := tx.emit(Event{Kind: EventObjectsLoading, IDs: unknownIDs}); err != nil {
				return nil, err
			}
			found, err := tx.registerLoaded(unknown)
			if err != nil {
				return nil, err
			}
			if err := tx.emit(Event{Kind: EventObjectsLoaded, IDs: found}); err != nil {
				return nil, err
			}
		}
	} else if len(ids) > 0 {
		if _, err := tx.getMany(ctx, ids, loadOptions{tolerant: true, includeDeleted: true}); err != nil && !IsObjectInvalid(err) {
			return nil, err
		}
	}

	var result []*Record
	for _, id := range ids {
		rec := tx.records[id]
		if rec == nil || rec.invalid || rec.deleted {
			continue
		}
		result = append(result, rec)
	}
	for _, f := range tx.bus.queryFilters() {
		if result, err = f.FilterQueryResult(tx, q, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ExecuteCustom runs a projection query. Rows are returned as produced by
// the executor, after the QueryFilter chain.
func (tx *Transaction) ExecuteCustom(ctx context.Context, q queryir.Query) ([]ir.IRObject, error) {
	if err := tx.checkQuery(q); err != nil {
		return nil, err
	}
	rows, err := tx.engine.query.ExecuteCustom(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("execute custom %s query: %w", q.TargetClass(), err)
	}
	for _, f := range tx.bus.queryFilters() {
		if rows, err = f.FilterCustomQueryResult(tx, q, rows); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
