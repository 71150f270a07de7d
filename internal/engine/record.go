package engine

import (
	"github.com/roach88/txgraph/internal/ir"
)

// Record is one entity as seen by one transaction.
//
// A Record never stores its State; State derives it from the lifecycle
// flags and from comparing current data with the original snapshot.
type Record struct {
	tx       *Transaction
	id       ir.EntityID
	class    ir.ClassDef
	props    ir.IRObject
	original ir.IRObject
	touched  map[string]bool
	revision int64

	isNew    bool
	deleted  bool
	invalid  bool
	notFound bool
	forced   bool
}

func newRecord(tx *Transaction, id ir.EntityID, class ir.ClassDef) *Record {
	return &Record{
		tx:       tx,
		id:       id,
		class:    class,
		props:    make(ir.IRObject, len(class.Properties)),
		original: make(ir.IRObject, len(class.Properties)),
		touched:  make(map[string]bool),
	}
}

// ID returns the record's identity.
func (r *Record) ID() ir.EntityID { return r.id }

// Class returns the record's class name.
func (r *Record) Class() string { return r.id.Class }

// Transaction returns the owning transaction.
func (r *Record) Transaction() *Transaction { return r.tx }

// Revision returns the storage revision the record was loaded with, or the
// revision assigned by the last commit.
func (r *Record) Revision() int64 { return r.revision }

// State computes the record's lifecycle state.
func (r *Record) State() ir.State {
	switch {
	case r.invalid || r.tx.discarded:
		return ir.StateInvalid
	case r.deleted:
		return ir.StateDeleted
	case r.isNew:
		return ir.StateNew
	case r.forced || r.hasChanged():
		return ir.StateChanged
	}
	return ir.StateUnchanged
}

func (r *Record) hasChanged() bool {
	for _, p := range r.class.Properties {
		if !ir.Equal(r.props[p.Name], r.original[p.Name]) {
			return true
		}
	}
	for _, rel := range r.class.Relations {
		ep, ok := r.tx.endPoints[ir.EndPointID{Entity: r.id, Relation: rel.Name}]
		if ok && ep.hasChanged() {
			return true
		}
	}
	return false
}

// Property returns the current value of a property. Unset values are IRNull.
func (r *Record) Property(name string) (ir.IRValue, error) {
	if err := r.checkReadable(); err != nil {
		return nil, err
	}
	if _, ok := r.class.Property(name); !ok {
		return nil, &Error{Code: ErrCodePropertyNotFound, Entity: r.id, Name: name, Message: "no such property"}
	}
	return ir.Clone(r.props[name]), nil
}

// OriginalProperty returns the value the property had when the record was
// loaded or last committed.
func (r *Record) OriginalProperty(name string) (ir.IRValue, error) {
	if _, ok := r.class.Property(name); !ok {
		return nil, &Error{Code: ErrCodePropertyNotFound, Entity: r.id, Name: name, Message: "no such property"}
	}
	return ir.Clone(r.original[name]), nil
}

// Properties returns a copy of all current property values.
func (r *Record) Properties() ir.IRObject { return r.props.Clone() }

// Touched reports whether the property was set since load, even to the
// same value.
func (r *Record) Touched(name string) bool { return r.touched[name] }

// ChangedProperties lists properties whose value differs from the original,
// in declaration order.
func (r *Record) ChangedProperties() []string {
	var out []string
	for _, p := range r.class.Properties {
		if !ir.Equal(r.props[p.Name], r.original[p.Name]) {
			out = append(out, p.Name)
		}
	}
	return out
}

func (r *Record) checkReadable() error {
	if err := r.tx.checkUsable(); err != nil {
		return err
	}
	switch {
	case r.invalid:
		return newError(ErrCodeObjectInvalid, r.id, "record is invalid in this transaction")
	case r.deleted:
		return newError(ErrCodeObjectDeleted, r.id, "record is deleted")
	}
	return nil
}

// stored renders the record's current data in storage form.
func (r *Record) stored() ir.StoredRecord {
	sr := ir.StoredRecord{ID: r.id, Revision: r.revision, Properties: r.props.Clone()}
	for _, rel := range r.class.Relations {
		if rel.Virtual {
			continue
		}
		ep := r.tx.endPoints[ir.EndPointID{Entity: r.id, Relation: rel.Name}]
		if ep == nil {
			continue
		}
		if rel.IsCollection() {
			if sr.Lists == nil {
				sr.Lists = make(map[string][]ir.EntityID)
			}
			sr.Lists[rel.Name] = cloneIDs(ep.current)
		} else if id := ep.single(); !id.IsNull() {
			if sr.Refs == nil {
				sr.Refs = make(map[string]ir.EntityID)
			}
			sr.Refs[rel.Name] = id
		}
	}
	return sr
}

// commitData makes the current data the new original.
func (r *Record) commitData() {
	r.original = r.props.Clone()
	r.touched = make(map[string]bool)
	r.isNew = false
	r.forced = false
}

// revertData restores the original data.
func (r *Record) revertData() {
	r.props = r.original.Clone()
	r.touched = make(map[string]bool)
	r.deleted = false
	r.forced = false
}
