package ir

import "fmt"

// PropertyType constrains the values a property may hold.
type PropertyType string

const (
	TypeString PropertyType = "string"
	TypeInt    PropertyType = "int"
	TypeBool   PropertyType = "bool"
	TypeObject PropertyType = "object"
	TypeArray  PropertyType = "array"
)

// Accepts reports whether v is allowed for a property of type t. Null is
// always accepted; required-ness is checked at commit time.
func (t PropertyType) Accepts(v IRValue) bool {
	if IsNull(v) {
		return true
	}
	switch v.(type) {
	case IRString:
		return t == TypeString
	case IRInt:
		return t == TypeInt
	case IRBool:
		return t == TypeBool
	case IRObject:
		return t == TypeObject
	case IRArray:
		return t == TypeArray
	}
	return false
}

// Cardinality of a relation end-point.
type Cardinality string

const (
	CardinalitySingle     Cardinality = "single"
	CardinalityCollection Cardinality = "collection"
)

// PropertyDef describes one scalar property of a class.
type PropertyDef struct {
	Name      string       `json:"name"`
	Type      PropertyType `json:"type"`
	Required  bool         `json:"required,omitempty"`
	MaxLength int          `json:"max_length,omitempty"` // 0 means unbounded
	Default   IRValue      `json:"default,omitempty"`
}

// RelationDef describes one relation end-point of a class.
//
// A real end-point stores the reference on its owner. A virtual end-point is
// derived from the real end-points of the opposite class. Opposite is empty
// for unidirectional relations.
type RelationDef struct {
	Name        string      `json:"name"`
	Class       string      `json:"class"`
	Opposite    string      `json:"opposite,omitempty"`
	Cardinality Cardinality `json:"cardinality"`
	Virtual     bool        `json:"virtual,omitempty"`
	Mandatory   bool        `json:"mandatory,omitempty"`
}

// IsCollection reports whether the end-point holds a list.
func (r RelationDef) IsCollection() bool {
	return r.Cardinality == CardinalityCollection
}

// Kind names the end-point variant: SingleReal, SingleVirtual, CollectionReal
// or CollectionVirtual.
func (r RelationDef) Kind() string {
	k := "Single"
	if r.IsCollection() {
		k = "Collection"
	}
	if r.Virtual {
		return k + "Virtual"
	}
	return k + "Real"
}

// ClassDef describes one entity class.
type ClassDef struct {
	Name       string        `json:"name"`
	Properties []PropertyDef `json:"properties"`
	Relations  []RelationDef `json:"relations"`
}

// Property looks up a property by name.
func (c ClassDef) Property(name string) (PropertyDef, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDef{}, false
}

// Relation looks up a relation by name.
func (c ClassDef) Relation(name string) (RelationDef, bool) {
	for _, r := range c.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return RelationDef{}, false
}

// SchemaModel is the compiled form of a schema: classes in declaration order.
type SchemaModel struct {
	Classes []ClassDef `json:"classes"`
}

// Class looks up a class by name.
func (m *SchemaModel) Class(name string) (ClassDef, error) {
	for _, c := range m.Classes {
		if c.Name == name {
			return c, nil
		}
	}
	return ClassDef{}, fmt.Errorf("unknown class %q", name)
}
