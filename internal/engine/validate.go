package engine

import (
	"context"
	"unicode/utf8"

	"github.com/roach88/txgraph/internal/ir"
)

// validate checks every non-deleted announced record: required properties
// are set, strings respect their max length and mandatory relations are
// non-empty. All violations are reported together.
func (tx *Transaction) validate(ctx context.Context, data []PersistableData) error {
	schema := tx.engine.schema
	var violations []*Error
	for _, d := range data {
		if d.State == ir.StateDeleted {
			continue
		}
		class := d.record.class
		for _, p := range class.Properties {
			v := d.Properties[p.Name]
			if p.Required && ir.IsNull(v) {
				violations = append(violations, &Error{
					Code: ErrCodePropertyRequiredNotSet, Entity: d.ID, Name: p.Name,
					Message: "required property is not set",
				})
				continue
			}
			s, ok := v.(ir.IRString)
			if !ok {
				continue
			}
			if limit, ok := schema.MaxLength(class.Name, p.Name); ok && utf8.RuneCountInString(string(s)) > limit {
				violations = append(violations, &Error{
					Code: ErrCodePropertyValueTooLong, Entity: d.ID, Name: p.Name,
					Message: "value exceeds max length",
				})
			}
		}
		for _, rel := range class.Relations {
			if !schema.IsMandatory(class.Name, rel.Name) {
				continue
			}
			ep, err := tx.endPoint(ctx, ir.EndPointID{Entity: d.ID, Relation: rel.Name})
			if err != nil {
				return err
			}
			if len(ep.current) == 0 {
				violations = append(violations, &Error{
					Code: ErrCodeMandatoryRelationNotSet, Entity: d.ID, Name: rel.Name,
					Message: "mandatory relation is empty",
				})
			}
		}
	}
	if len(violations) > 0 {
		return &ValidationFailedError{Violations: violations}
	}
	return nil
}
