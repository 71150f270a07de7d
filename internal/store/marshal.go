package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/txgraph/internal/ir"
)

// marshalProperties converts properties to canonical JSON TEXT for storage.
func marshalProperties(props ir.IRObject) (string, error) {
	if props == nil {
		props = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(props)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}

// marshalRefs stores each non-null reference as "Class/Key" text.
// encoding/json sorts map keys, so equal refs always produce equal text.
func marshalRefs(refs map[string]ir.EntityID) (string, error) {
	out := make(map[string]string, len(refs))
	for name, id := range refs {
		if id.IsNull() {
			continue
		}
		out[name] = id.String()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal refs: %w", err)
	}
	return string(data), nil
}

// marshalLists stores ordered collections. Empty lists are dropped.
func marshalLists(lists map[string][]ir.EntityID) (string, error) {
	out := make(map[string][]string, len(lists))
	for name, ids := range lists {
		if len(ids) == 0 {
			continue
		}
		texts := make([]string, len(ids))
		for i, id := range ids {
			texts[i] = id.String()
		}
		out[name] = texts
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal lists: %w", err)
	}
	return string(data), nil
}

// unmarshalProperties parses canonical JSON TEXT. IRObject decoding keeps
// large integers exact via json.Number.
func unmarshalProperties(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return obj, nil
}

func unmarshalRefs(data string) (map[string]ir.EntityID, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal refs: %w", err)
	}
	refs := make(map[string]ir.EntityID, len(raw))
	for name, text := range raw {
		id, err := ir.ParseEntityID(text)
		if err != nil {
			return nil, fmt.Errorf("unmarshal refs %q: %w", name, err)
		}
		refs[name] = id
	}
	return refs, nil
}

func unmarshalLists(data string) (map[string][]ir.EntityID, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var raw map[string][]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal lists: %w", err)
	}
	lists := make(map[string][]ir.EntityID, len(raw))
	for name, texts := range raw {
		ids := make([]ir.EntityID, len(texts))
		for i, text := range texts {
			id, err := ir.ParseEntityID(text)
			if err != nil {
				return nil, fmt.Errorf("unmarshal lists %q[%d]: %w", name, i, err)
			}
			ids[i] = id
		}
		lists[name] = ids
	}
	return lists, nil
}

// recordColumns is one encoded row.
type recordColumns struct {
	properties string
	refs       string
	lists      string
}

func encodeRecord(r ir.StoredRecord) (recordColumns, error) {
	var cols recordColumns
	var err error
	if cols.properties, err = marshalProperties(r.Properties); err != nil {
		return cols, err
	}
	if cols.refs, err = marshalRefs(r.Refs); err != nil {
		return cols, err
	}
	if cols.lists, err = marshalLists(r.Lists); err != nil {
		return cols, err
	}
	return cols, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the querysql.RecordColumns column list.
func scanRecord(row scanner) (ir.StoredRecord, error) {
	var (
		rec  ir.StoredRecord
		cols recordColumns
	)
	if err := row.Scan(&rec.ID.Class, &rec.ID.Key, &rec.Revision, &cols.properties, &cols.refs, &cols.lists); err != nil {
		return ir.StoredRecord{}, fmt.Errorf("scan record: %w", err)
	}
	var err error
	if rec.Properties, err = unmarshalProperties(cols.properties); err != nil {
		return ir.StoredRecord{}, fmt.Errorf("%s: %w", rec.ID, err)
	}
	if rec.Refs, err = unmarshalRefs(cols.refs); err != nil {
		return ir.StoredRecord{}, fmt.Errorf("%s: %w", rec.ID, err)
	}
	if rec.Lists, err = unmarshalLists(cols.lists); err != nil {
		return ir.StoredRecord{}, fmt.Errorf("%s: %w", rec.ID, err)
	}
	return rec, nil
}
