package queryir

import (
	"fmt"

	"github.com/roach88/txgraph/internal/ir"
)

// ClassLookup resolves class definitions. schema.Model satisfies it.
type ClassLookup interface {
	Class(name string) (ir.ClassDef, error)
}

// Validate checks q against the schema and returns every problem found.
func Validate(q Query, classes ClassLookup) []error {
	v := &validator{classes: classes}
	v.query(q)
	return v.errs
}

type validator struct {
	classes ClassLookup
	errs    []error
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case nil:
		v.addf("nil query")
	case Select:
		v.selectNode(query)
	case *Select:
		v.selectNode(*query)
	case Project:
		v.project(query)
	case *Project:
		v.project(*query)
	default:
		v.addf("unsupported query type %T", q)
	}
}

func (v *validator) selectNode(s Select) {
	def, err := v.classes.Class(s.Class)
	if err != nil {
		v.addf("select: %v", err)
		return
	}
	if s.Limit < 0 {
		v.addf("select %s: negative limit %d", s.Class, s.Limit)
	}
	for _, o := range s.OrderBy {
		if _, ok := def.Property(o.Property); !ok {
			v.addf("select %s: order by unknown property %q", s.Class, o.Property)
		}
	}
	if s.Filter != nil {
		v.predicate(def, s.Filter)
	}
}

func (v *validator) project(p Project) {
	v.selectNode(p.Source)
	def, err := v.classes.Class(p.Source.Class)
	if err != nil {
		return
	}
	if len(p.Fields) == 0 {
		v.addf("project %s: no fields selected", def.Name)
	}
	outputs := map[string]bool{"key": true}
	for prop, out := range p.Fields {
		if _, ok := def.Property(prop); !ok {
			v.addf("project %s: unknown property %q", def.Name, prop)
		}
		if outputs[out] {
			v.addf("project %s: duplicate output column %q", def.Name, out)
		}
		outputs[out] = true
	}
}

func (v *validator) predicate(def ir.ClassDef, p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.equals(def, pred)
	case *Equals:
		v.equals(def, *pred)
	case RefEquals:
		v.refEquals(def, pred)
	case *RefEquals:
		v.refEquals(def, *pred)
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(def, sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.predicate(def, sub)
		}
	default:
		v.addf("unsupported predicate type %T", p)
	}
}

func (v *validator) equals(def ir.ClassDef, eq Equals) {
	prop, ok := def.Property(eq.Property)
	if !ok {
		v.addf("%s: unknown property %q", def.Name, eq.Property)
		return
	}
	if ir.IsNull(eq.Value) {
		v.addf("%s.%s compared to null, which never matches", def.Name, eq.Property)
		return
	}
	if !prop.Type.Accepts(eq.Value) {
		v.addf("%s.%s is %s, cannot compare to %s", def.Name, eq.Property, prop.Type, ir.Display(eq.Value))
	}
}

func (v *validator) refEquals(def ir.ClassDef, ref RefEquals) {
	rel, ok := def.Relation(ref.Relation)
	if !ok {
		v.addf("%s: unknown relation %q", def.Name, ref.Relation)
		return
	}
	if rel.Virtual || rel.IsCollection() {
		v.addf("%s.%s is %s, only single real relations can be filtered", def.Name, ref.Relation, rel.Kind())
	}
	if !ref.Target.IsNull() && ref.Target.Class != rel.Class {
		v.addf("%s.%s targets %s, got %s", def.Name, ref.Relation, rel.Class, ref.Target)
	}
}
