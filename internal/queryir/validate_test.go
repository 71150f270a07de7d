package queryir

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/txgraph/internal/ir"
)

type classMap map[string]ir.ClassDef

func (m classMap) Class(name string) (ir.ClassDef, error) {
	c, ok := m[name]
	if !ok {
		return ir.ClassDef{}, fmt.Errorf("unknown class %q", name)
	}
	return c, nil
}

var testClasses = classMap{
	"Order": {
		Name: "Order",
		Properties: []ir.PropertyDef{
			{Name: "number", Type: ir.TypeString},
			{Name: "qty", Type: ir.TypeInt},
		},
		Relations: []ir.RelationDef{
			{Name: "customer", Class: "Customer", Opposite: "orders", Cardinality: ir.CardinalitySingle},
			{Name: "tags", Class: "Tag", Cardinality: ir.CardinalityCollection},
		},
	},
}

func TestValidate_Valid(t *testing.T) {
	q := Select{
		Class: "Order",
		Filter: And{Predicates: []Predicate{
			Equals{Property: "qty", Value: ir.IRInt(2)},
			RefEquals{Relation: "customer", Target: ir.EntityID{Class: "Customer", Key: "c1"}},
		}},
		OrderBy: []Order{{Property: "number"}},
	}
	assert.Empty(t, Validate(q, testClasses))
	assert.Empty(t, Validate(Project{Source: Select{Class: "Order"}, Fields: map[string]string{"number": "n"}}, testClasses))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{"unknown class", Select{Class: "Nope"}, "unknown class"},
		{"unknown property", Select{Class: "Order", Filter: Equals{Property: "x", Value: ir.IRInt(1)}}, "unknown property"},
		{"type mismatch", Select{Class: "Order", Filter: Equals{Property: "qty", Value: ir.IRString("1")}}, "cannot compare"},
		{"null compare", Select{Class: "Order", Filter: Equals{Property: "qty", Value: ir.IRNull{}}}, "null"},
		{"collection ref", Select{Class: "Order", Filter: RefEquals{Relation: "tags"}}, "only single real"},
		{"wrong target class", Select{Class: "Order", Filter: RefEquals{Relation: "customer", Target: ir.EntityID{Class: "Tag", Key: "t"}}}, "targets Customer"},
		{"bad order", Select{Class: "Order", OrderBy: []Order{{Property: "zzz"}}}, "order by"},
		{"no fields", Project{Source: Select{Class: "Order"}}, "no fields"},
		{"duplicate column", Project{Source: Select{Class: "Order"}, Fields: map[string]string{"number": "key"}}, "duplicate output"},
		{"nil", nil, "nil query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.q, testClasses)
			if assert.NotEmpty(t, errs) {
				assert.Contains(t, errs[0].Error(), tt.want)
			}
		})
	}
}
