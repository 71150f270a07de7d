package queryir

import (
	"slices"
	"strings"

	"github.com/roach88/txgraph/internal/ir"
)

// Match evaluates p against a stored record. A nil predicate matches.
func Match(p Predicate, rec ir.StoredRecord) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return matchEquals(pred, rec)
	case *Equals:
		return matchEquals(*pred, rec)
	case RefEquals:
		return rec.Refs[pred.Relation] == pred.Target
	case *RefEquals:
		return rec.Refs[pred.Relation] == pred.Target
	case And:
		return matchAll(pred.Predicates, rec)
	case *And:
		return matchAll(pred.Predicates, rec)
	}
	return false
}

func matchEquals(eq Equals, rec ir.StoredRecord) bool {
	v, ok := rec.Properties[eq.Property]
	if !ok || ir.IsNull(v) || ir.IsNull(eq.Value) {
		return false
	}
	return ir.Equal(v, eq.Value)
}

func matchAll(preds []Predicate, rec ir.StoredRecord) bool {
	for _, p := range preds {
		if !Match(p, rec) {
			return false
		}
	}
	return true
}

// Sort orders records by s.OrderBy with the entity key as final tiebreaker,
// then applies s.Limit. Nulls sort first. Values of different types order by
// their canonical JSON text.
func Sort(s Select, recs []ir.StoredRecord) []ir.StoredRecord {
	slices.SortStableFunc(recs, func(a, b ir.StoredRecord) int {
		for _, o := range s.OrderBy {
			c := compareValues(a.Properties[o.Property], b.Properties[o.Property])
			if o.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID.Key, b.ID.Key)
	})
	if s.Limit > 0 && len(recs) > s.Limit {
		recs = recs[:s.Limit]
	}
	return recs
}

func compareValues(a, b ir.IRValue) int {
	switch {
	case ir.IsNull(a) && ir.IsNull(b):
		return 0
	case ir.IsNull(a):
		return -1
	case ir.IsNull(b):
		return 1
	}
	if ai, ok := a.(ir.IRInt); ok {
		if bi, ok := b.(ir.IRInt); ok {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
	}
	if as, ok := a.(ir.IRString); ok {
		if bs, ok := b.(ir.IRString); ok {
			return strings.Compare(string(as), string(bs))
		}
	}
	return strings.Compare(ir.Display(a), ir.Display(b))
}

// ProjectRow builds one custom-query row from a record.
func ProjectRow(p Project, rec ir.StoredRecord) ir.IRObject {
	row := ir.IRObject{"key": ir.IRString(rec.ID.Key)}
	for prop, out := range p.Fields {
		v, ok := rec.Properties[prop]
		if !ok {
			v = ir.IRNull{}
		}
		row[out] = ir.Clone(v)
	}
	return row
}
