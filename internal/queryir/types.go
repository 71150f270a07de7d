package queryir

import "github.com/roach88/txgraph/internal/ir"

// Query is a sealed interface over Select and Project.
type Query interface {
	queryNode()
	// TargetClass is the class whose records the query reads.
	TargetClass() string
}

// Predicate is a sealed interface over Equals, RefEquals and And.
type Predicate interface {
	predicateNode()
}

// Select reads records of Class matching Filter.
//
//	SELECT * FROM records WHERE class = <Class> AND <Filter> ORDER BY <OrderBy>, key
//
// Results always end with the entity key as tiebreaker so that repeated
// executions return the same order.
type Select struct {
	Class   string
	Filter  Predicate // nil means no filter
	OrderBy []Order
	Limit   int // 0 means unbounded
}

func (Select) queryNode() {}

// TargetClass implements Query.
func (s Select) TargetClass() string { return s.Class }

// Order sorts by one property.
type Order struct {
	Property   string
	Descending bool
}

// Project runs Source and returns selected properties as rows.
// Fields maps property name to output column name. The entity key is always
// returned as "key".
type Project struct {
	Source Select
	Fields map[string]string
}

func (Project) queryNode() {}

// TargetClass implements Query.
func (p Project) TargetClass() string { return p.Source.Class }

// Equals matches records whose property equals Value.
// Null never equals anything.
type Equals struct {
	Property string
	Value    ir.IRValue
}

func (Equals) predicateNode() {}

// RefEquals matches records whose single real relation points at Target.
type RefEquals struct {
	Relation string
	Target   ir.EntityID
}

func (RefEquals) predicateNode() {}

// And matches when every predicate matches. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
