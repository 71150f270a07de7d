package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/txgraph/internal/ir"
)

// Compile parses the "class" field of a CUE value into a SchemaModel.
// Classes keep their declaration order.
func Compile(v cue.Value) (*ir.SchemaModel, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	classesVal := v.LookupPath(cue.ParsePath("class"))
	if !classesVal.Exists() {
		return nil, &CompileError{Field: "class", Message: "no classes declared", Pos: v.Pos()}
	}
	iter, err := classesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	model := &ir.SchemaModel{}
	for iter.Next() {
		def, err := CompileClass(iter.Value())
		if err != nil {
			return nil, err
		}
		model.Classes = append(model.Classes, def)
	}
	return model, nil
}

// CompileClass parses one class struct. The class name is the last path
// selector, so pass the value found at class.<Name>.
func CompileClass(v cue.Value) (ir.ClassDef, error) {
	if err := v.Err(); err != nil {
		return ir.ClassDef{}, formatCUEError(err)
	}
	def := ir.ClassDef{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		def.Name = labels[len(labels)-1].String()
	}

	var err error
	def.Properties, err = parseProperties(def.Name, v)
	if err != nil {
		return ir.ClassDef{}, err
	}
	def.Relations, err = parseRelations(def.Name, v)
	if err != nil {
		return ir.ClassDef{}, err
	}
	return def, nil
}

func parseProperties(class string, v cue.Value) ([]ir.PropertyDef, error) {
	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nil, nil
	}
	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var props []ir.PropertyDef
	for iter.Next() {
		name := iter.Label()
		pv := iter.Value()
		field := fmt.Sprintf("class.%s.properties.%s", class, name)

		prop := ir.PropertyDef{Name: name}
		typ, err := lookupString(pv, "type", field)
		if err != nil {
			return nil, err
		}
		if typ == "" {
			// Shorthand: number: string
			typ, err = extractTypeName(pv, field)
			if err != nil {
				return nil, err
			}
		}
		prop.Type = ir.PropertyType(typ)

		if prop.Required, err = lookupBool(pv, "required", field); err != nil {
			return nil, err
		}
		if ml := pv.LookupPath(cue.ParsePath("maxLength")); ml.Exists() {
			n, err := ml.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			prop.MaxLength = int(n)
		}
		if dv := pv.LookupPath(cue.ParsePath("default")); dv.Exists() {
			var raw any
			if err := dv.Decode(&raw); err != nil {
				return nil, formatCUEError(err)
			}
			if prop.Default, err = ir.FromAny(raw); err != nil {
				return nil, &CompileError{Field: field + ".default", Message: err.Error(), Pos: dv.Pos()}
			}
		}
		props = append(props, prop)
	}
	return props, nil
}

func parseRelations(class string, v cue.Value) ([]ir.RelationDef, error) {
	relsVal := v.LookupPath(cue.ParsePath("relations"))
	if !relsVal.Exists() {
		return nil, nil
	}
	iter, err := relsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []ir.RelationDef
	for iter.Next() {
		name := iter.Label()
		rv := iter.Value()
		field := fmt.Sprintf("class.%s.relations.%s", class, name)

		rel := ir.RelationDef{Name: name}
		if rel.Class, err = lookupString(rv, "class", field); err != nil {
			return nil, err
		}
		if rel.Class == "" {
			return nil, &CompileError{Field: field + ".class", Message: "target class is required", Pos: rv.Pos()}
		}
		if rel.Opposite, err = lookupString(rv, "opposite", field); err != nil {
			return nil, err
		}
		kind, err := lookupString(rv, "kind", field)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "", "single":
			rel.Cardinality = ir.CardinalitySingle
		case "collection":
			rel.Cardinality = ir.CardinalityCollection
		default:
			return nil, &CompileError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("kind must be \"single\" or \"collection\", got %q", kind),
				Pos:     rv.Pos(),
			}
		}
		if rel.Virtual, err = lookupBool(rv, "virtual", field); err != nil {
			return nil, err
		}
		if rel.Mandatory, err = lookupBool(rv, "mandatory", field); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

func lookupString(v cue.Value, path, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{Field: field + "." + path, Message: "must be a string", Pos: f.Pos()}
	}
	return s, nil
}

func lookupBool(v cue.Value, path, field string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, &CompileError{Field: field + "." + path, Message: "must be a bool", Pos: f.Pos()}
	}
	return b, nil
}

// extractTypeName maps a CUE type to a property type name.
// Floats are rejected.
func extractTypeName(v cue.Value, field string) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return string(ir.TypeString), nil
	case cue.IntKind:
		return string(ir.TypeInt), nil
	case cue.BoolKind:
		return string(ir.TypeBool), nil
	case cue.ListKind:
		return string(ir.TypeArray), nil
	case cue.StructKind:
		return string(ir.TypeObject), nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{Field: field, Message: "float types are forbidden, use int instead", Pos: v.Pos()}
	default:
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
