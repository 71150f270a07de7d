package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/schema"
)

// OfficeSchema covers every relation shape the engine supports:
//
//	Person.desk <-> Desk.owner          one-to-one
//	Customer.orders <-> Order.customer  one-to-many, mandatory on the order
//	Person.tags <-> Tag.people          many-to-many
//	Note.about -> Person                unidirectional
const OfficeSchema = `
class: Person: {
	properties: name: {type: "string", required: true, maxLength: 20}
	relations: {
		desk: {class: "Desk", opposite: "owner", kind: "single"}
		tags: {class: "Tag", opposite: "people", kind: "collection"}
	}
}
class: Desk: {
	properties: label: string
	relations: owner: {class: "Person", opposite: "desk", kind: "single", virtual: true}
}
class: Tag: {
	properties: label: string
	relations: people: {class: "Person", opposite: "tags", kind: "collection", virtual: true}
}
class: Customer: {
	properties: name: {type: "string", required: true, maxLength: 10}
	relations: orders: {class: "Order", opposite: "customer", kind: "collection", virtual: true}
}
class: Order: {
	properties: {
		number: {type: "string", required: true}
		qty: {type: "int", default: 1}
	}
	relations: customer: {class: "Customer", opposite: "orders", kind: "single", mandatory: true}
}
class: Note: {
	properties: text: string
	relations: about: {class: "Person", kind: "single"}
}
`

// OfficeModel compiles OfficeSchema.
func OfficeModel(t testing.TB) *schema.Model {
	t.Helper()
	m, err := schema.LoadString(OfficeSchema)
	require.NoError(t, err)
	return m
}

// ID builds an entity identity.
func ID(class, key string) ir.EntityID {
	return ir.EntityID{Class: class, Key: key}
}

// Row builds a stored record with properties given as alternating
// name/value pairs. Values go through ir.FromAny.
func Row(id ir.EntityID, kv ...any) ir.StoredRecord {
	r := ir.StoredRecord{ID: id, Properties: ir.IRObject{}}
	for i := 0; i+1 < len(kv); i += 2 {
		v, err := ir.FromAny(kv[i+1])
		if err != nil {
			panic(err)
		}
		r.Properties[kv[i].(string)] = v
	}
	return r
}

// WithRef sets a single real end-point on a stored record.
func WithRef(r ir.StoredRecord, relation string, target ir.EntityID) ir.StoredRecord {
	if r.Refs == nil {
		r.Refs = make(map[string]ir.EntityID)
	}
	r.Refs[relation] = target
	return r
}

// WithList sets a collection real end-point on a stored record.
func WithList(r ir.StoredRecord, relation string, items ...ir.EntityID) ir.StoredRecord {
	if r.Lists == nil {
		r.Lists = make(map[string][]ir.EntityID)
	}
	r.Lists[relation] = items
	return r
}
