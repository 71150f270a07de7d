package ir

import "errors"

// ErrConcurrency is wrapped by storages when a persist batch finds a
// revision that moved since the record was loaded.
var ErrConcurrency = errors.New("revision conflict")

// StoredRecord is the storage form of an entity.
//
// Refs holds SingleReal end-points (absent or zero id means null). Lists holds
// CollectionReal end-points in order. Virtual end-points are never stored.
type StoredRecord struct {
	ID         EntityID              `json:"id"`
	Revision   int64                 `json:"revision"`
	Properties IRObject              `json:"properties"`
	Refs       map[string]EntityID   `json:"refs,omitempty"`
	Lists      map[string][]EntityID `json:"lists,omitempty"`
}

// Clone returns a deep copy of the record.
func (r StoredRecord) Clone() StoredRecord {
	out := StoredRecord{ID: r.ID, Revision: r.Revision, Properties: r.Properties.Clone()}
	if r.Refs != nil {
		out.Refs = make(map[string]EntityID, len(r.Refs))
		for k, v := range r.Refs {
			out.Refs[k] = v
		}
	}
	if r.Lists != nil {
		out.Lists = make(map[string][]EntityID, len(r.Lists))
		for k, v := range r.Lists {
			out.Lists[k] = append([]EntityID(nil), v...)
		}
	}
	return out
}

// PersistOp is the kind of write in a persist batch.
type PersistOp string

const (
	OpInsert PersistOp = "insert"
	OpUpdate PersistOp = "update"
	OpDelete PersistOp = "delete"
)

// PersistRecord is one write in a persist batch. ExpectedRevision is the
// revision the transaction loaded; storage rejects the batch if it moved.
type PersistRecord struct {
	Op               PersistOp    `json:"op"`
	Record           StoredRecord `json:"record"`
	ExpectedRevision int64        `json:"expected_revision"`
}
