package schema

import (
	"fmt"
	"regexp"

	"github.com/roach88/txgraph/internal/ir"
)

// Validation error codes (E100-E199).
const (
	ErrEmptyName        = "E100" // class, property or relation name is empty or malformed
	ErrDuplicateName    = "E101" // duplicate class, property or relation name
	ErrInvalidFieldType = "E102" // unknown property type
	ErrInvalidMaxLength = "E103" // maxLength on a non-string property or negative
	ErrInvalidDefault   = "E104" // default value does not match the property type
	ErrUnknownClass     = "E110" // relation targets an undeclared class
	ErrOppositeMissing  = "E111" // declared opposite does not exist on the target class
	ErrOppositeMismatch = "E112" // opposite end-points do not point back at each other
	ErrInvalidRelPair   = "E113" // unsupported real/virtual or cardinality pairing
	ErrVirtualUnpaired  = "E114" // virtual end-point without an opposite
	ErrNameCollision    = "E115" // property and relation share a name
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError is one schema problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled model and returns every error found.
//
// Supported relation pairs, real side first:
//   - single ↔ single virtual (one-to-one)
//   - single ↔ collection virtual (one-to-many)
//   - collection ↔ collection virtual (many-to-many)
//   - single or collection without opposite (unidirectional)
func Validate(m *ir.SchemaModel) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	classes := make(map[string]*ir.ClassDef, len(m.Classes))
	for i := range m.Classes {
		c := &m.Classes[i]
		field := fmt.Sprintf("class[%d]", i)
		if !identRe.MatchString(c.Name) {
			add(field, ErrEmptyName, "invalid class name %q", c.Name)
		}
		if _, dup := classes[c.Name]; dup {
			add(field, ErrDuplicateName, "duplicate class name %q", c.Name)
		}
		classes[c.Name] = c
	}

	for _, c := range m.Classes {
		names := make(map[string]bool)
		for _, p := range c.Properties {
			field := fmt.Sprintf("class.%s.properties.%s", c.Name, p.Name)
			if !identRe.MatchString(p.Name) {
				add(field, ErrEmptyName, "invalid property name %q", p.Name)
			}
			if names[p.Name] {
				add(field, ErrDuplicateName, "duplicate property name %q", p.Name)
			}
			names[p.Name] = true
			switch p.Type {
			case ir.TypeString, ir.TypeInt, ir.TypeBool, ir.TypeArray, ir.TypeObject:
			default:
				add(field, ErrInvalidFieldType, "invalid type %q", p.Type)
			}
			if p.MaxLength < 0 || (p.MaxLength > 0 && p.Type != ir.TypeString) {
				add(field, ErrInvalidMaxLength, "maxLength applies to string properties only and must be positive")
			}
			if p.Default != nil && !p.Type.Accepts(p.Default) {
				add(field, ErrInvalidDefault, "default %s does not match type %q", ir.Display(p.Default), p.Type)
			}
		}

		for _, r := range c.Relations {
			field := fmt.Sprintf("class.%s.relations.%s", c.Name, r.Name)
			if !identRe.MatchString(r.Name) {
				add(field, ErrEmptyName, "invalid relation name %q", r.Name)
			}
			if names[r.Name] {
				add(field, ErrNameCollision, "name %q is already used by a property or relation", r.Name)
			}
			names[r.Name] = true

			target, ok := classes[r.Class]
			if !ok {
				add(field, ErrUnknownClass, "unknown target class %q", r.Class)
				continue
			}
			if r.Opposite == "" {
				if r.Virtual {
					add(field, ErrVirtualUnpaired, "virtual end-point requires an opposite")
				}
				continue
			}
			opp, ok := target.Relation(r.Opposite)
			if !ok {
				add(field, ErrOppositeMissing, "opposite %s.%s not declared", r.Class, r.Opposite)
				continue
			}
			if opp.Class != c.Name || opp.Opposite != r.Name {
				add(field, ErrOppositeMismatch, "opposite %s.%s does not point back to %s.%s", r.Class, r.Opposite, c.Name, r.Name)
				continue
			}
			if !validPair(r, opp) {
				add(field, ErrInvalidRelPair, "unsupported pair %s ↔ %s", r.Kind(), opp.Kind())
			}
		}
	}
	return errs
}

// validPair reports whether (a, b) is a supported end-point pairing.
func validPair(a, b ir.RelationDef) bool {
	if a.Virtual == b.Virtual {
		return false
	}
	owner, virt := a, b
	if a.Virtual {
		owner, virt = b, a
	}
	if owner.IsCollection() {
		return virt.IsCollection()
	}
	return true
}
