package schema

import (
	"fmt"

	"github.com/roach88/txgraph/internal/ir"
)

// Model serves a compiled SchemaModel with indexed lookups.
// It satisfies engine.Schema.
type Model struct {
	src     *ir.SchemaModel
	classes map[string]*ir.ClassDef
}

// NewModel validates m and indexes it. Validation errors are joined into one
// error; warnings from AnalyzeCycles are not fatal and are not reported here.
func NewModel(m *ir.SchemaModel) (*Model, error) {
	if errs := Validate(m); len(errs) > 0 {
		return nil, &ModelError{Errors: errs}
	}
	model := &Model{src: m, classes: make(map[string]*ir.ClassDef, len(m.Classes))}
	for i := range m.Classes {
		model.classes[m.Classes[i].Name] = &m.Classes[i]
	}
	return model, nil
}

// MustModel is NewModel that panics on error. Intended for tests and fixtures.
func MustModel(m *ir.SchemaModel) *Model {
	model, err := NewModel(m)
	if err != nil {
		panic(err)
	}
	return model
}

// Source returns the underlying SchemaModel.
func (m *Model) Source() *ir.SchemaModel { return m.src }

// ClassNames returns class names in declaration order.
func (m *Model) ClassNames() []string {
	names := make([]string, len(m.src.Classes))
	for i, c := range m.src.Classes {
		names[i] = c.Name
	}
	return names
}

// Class returns the definition of class name.
func (m *Model) Class(name string) (ir.ClassDef, error) {
	c, ok := m.classes[name]
	if !ok {
		return ir.ClassDef{}, fmt.Errorf("unknown class %q", name)
	}
	return *c, nil
}

// RelationEndPoints returns every relation end-point declared on class.
func (m *Model) RelationEndPoints(class string) ([]ir.RelationDef, error) {
	c, ok := m.classes[class]
	if !ok {
		return nil, fmt.Errorf("unknown class %q", class)
	}
	return c.Relations, nil
}

// Relation returns one relation end-point of class.
func (m *Model) Relation(class, name string) (ir.RelationDef, error) {
	c, ok := m.classes[class]
	if !ok {
		return ir.RelationDef{}, fmt.Errorf("unknown class %q", class)
	}
	r, ok := c.Relation(name)
	if !ok {
		return ir.RelationDef{}, fmt.Errorf("class %q has no relation %q", class, name)
	}
	return r, nil
}

// IsMandatory reports whether relation must be set at commit time.
func (m *Model) IsMandatory(class, relation string) bool {
	r, err := m.Relation(class, relation)
	return err == nil && r.Mandatory
}

// MaxLength returns the length bound of a string property, if any.
func (m *Model) MaxLength(class, property string) (int, bool) {
	c, ok := m.classes[class]
	if !ok {
		return 0, false
	}
	p, ok := c.Property(property)
	if !ok || p.MaxLength <= 0 {
		return 0, false
	}
	return p.MaxLength, true
}

// ModelError carries all validation errors of a rejected model.
type ModelError struct {
	Errors []ValidationError
}

func (e *ModelError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid schema: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("invalid schema: %s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
}
