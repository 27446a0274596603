// Package schema implements the runtime schema engine that gates every
// component write.
//
// A Schema is a tagged tree over a closed set of node kinds. Schemas are
// read from and written to JSON-Schema-shaped documents, and Validate checks
// arbitrary ir values against them, reporting the first failure with a
// structured path.
package schema

import (
	"errors"
	"fmt"
	"slices"
)

// Kind identifies a schema node.
type Kind string

const (
	KindNull    Kind = "null"
	KindBoolean Kind = "boolean"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindString  Kind = "string"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindOneOf   Kind = "oneOf"
)

// Valid reports whether k is one of the known node kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindNull, KindBoolean, KindInteger, KindNumber, KindString,
		KindObject, KindArray, KindOneOf:
		return true
	}
	return false
}

// Schema is one node of a schema tree. Only the fields relevant to Kind are
// consulted; the rest stay zero.
type Schema struct {
	Kind Kind

	// integer, number
	Minimum *float64
	Maximum *float64

	// string
	Enum []string

	// object
	Properties []Property
	Required   []string
	Additional *Additional

	// array
	Items    *Schema
	MaxItems *int

	// oneOf
	OneOf []*Schema
}

// Property is a named child of an object schema. Declaration order is kept.
type Property struct {
	Name   string
	Schema *Schema
}

// Additional controls object keys that are not listed in Properties.
// A nil *Additional rejects them.
type Additional struct {
	// Any accepts any value for unlisted keys.
	Any bool
	// Schema validates every unlisted value when Any is false.
	Schema *Schema
}

// Null returns a schema accepting only null.
func Null() *Schema { return &Schema{Kind: KindNull} }

// Boolean returns a schema accepting true or false.
func Boolean() *Schema { return &Schema{Kind: KindBoolean} }

// Integer returns a schema accepting integral numbers.
func Integer() *Schema { return &Schema{Kind: KindInteger} }

// Number returns a schema accepting any finite number.
func Number() *Schema { return &Schema{Kind: KindNumber} }

// String returns a string schema, restricted to enum when any values are given.
func String(enum ...string) *Schema {
	s := &Schema{Kind: KindString}
	if len(enum) > 0 {
		s.Enum = slices.Clone(enum)
	}
	return s
}

// Object returns an object schema with the given properties in order.
func Object(props ...Property) *Schema {
	return &Schema{Kind: KindObject, Properties: props}
}

// Prop is shorthand for building a Property.
func Prop(name string, s *Schema) Property {
	return Property{Name: name, Schema: s}
}

// Array returns an array schema whose elements all validate against items.
// A nil items accepts any element.
func Array(items *Schema) *Schema {
	return &Schema{Kind: KindArray, Items: items}
}

// OneOf returns a union schema; data is valid if any candidate accepts it.
func OneOf(candidates ...*Schema) *Schema {
	return &Schema{Kind: KindOneOf, OneOf: candidates}
}

// WithMinimum sets the inclusive lower bound and returns s.
func (s *Schema) WithMinimum(min float64) *Schema {
	s.Minimum = &min
	return s
}

// WithMaximum sets the inclusive upper bound and returns s.
func (s *Schema) WithMaximum(max float64) *Schema {
	s.Maximum = &max
	return s
}

// WithMaxItems bounds array length and returns s.
func (s *Schema) WithMaxItems(n int) *Schema {
	s.MaxItems = &n
	return s
}

// WithRequired marks properties as required and returns s.
func (s *Schema) WithRequired(names ...string) *Schema {
	s.Required = append(s.Required, names...)
	return s
}

// AllowAdditional accepts unlisted object keys with any value and returns s.
func (s *Schema) AllowAdditional() *Schema {
	s.Additional = &Additional{Any: true}
	return s
}

// WithAdditional validates unlisted object keys against t and returns s.
func (s *Schema) WithAdditional(t *Schema) *Schema {
	s.Additional = &Additional{Schema: t}
	return s
}

// Property returns the child schema declared for name.
func (s *Schema) Property(name string) (*Schema, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// IsRequired reports whether name is listed in Required.
func (s *Schema) IsRequired(name string) bool {
	return slices.Contains(s.Required, name)
}

// SchemaError reports a malformed schema document or tree.
type SchemaError struct {
	Path    Path
	Message string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid schema at %s: %s", e.Path.Display(), e.Message)
}

// IsSchemaError returns true if err wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// Check verifies that the tree is well formed: known kinds, consistent
// bounds, non-negative maxItems, non-empty oneOf and enum, unique property
// names, and required names that can be satisfied.
func (s *Schema) Check() error {
	return check(s, nil)
}

func check(s *Schema, path Path) error {
	fail := func(format string, args ...any) error {
		return &SchemaError{Path: path.clone(), Message: fmt.Sprintf(format, args...)}
	}
	if s == nil {
		return fail("schema is nil")
	}
	if !s.Kind.Valid() {
		return fail("unknown type %q", s.Kind)
	}

	if s.Minimum != nil || s.Maximum != nil {
		if s.Kind != KindInteger && s.Kind != KindNumber {
			return fail("minimum/maximum only apply to integer and number")
		}
		if s.Minimum != nil && s.Maximum != nil && *s.Minimum > *s.Maximum {
			return fail("minimum %v exceeds maximum %v", *s.Minimum, *s.Maximum)
		}
	}
	if s.Enum != nil {
		if s.Kind != KindString {
			return fail("enum only applies to string")
		}
		if len(s.Enum) == 0 {
			return fail("enum must list at least one value")
		}
	}
	if s.MaxItems != nil {
		if s.Kind != KindArray {
			return fail("maxItems only applies to array")
		}
		if *s.MaxItems < 0 {
			return fail("maxItems must be non-negative, got %d", *s.MaxItems)
		}
	}
	if s.Kind != KindObject && (len(s.Properties) > 0 || len(s.Required) > 0 || s.Additional != nil) {
		return fail("properties, required and additionalProperties only apply to object")
	}
	if s.Kind != KindArray && s.Items != nil {
		return fail("items only applies to array")
	}
	if s.Kind != KindOneOf && len(s.OneOf) > 0 {
		return fail("oneOf cannot be combined with type %q", s.Kind)
	}

	switch s.Kind {
	case KindObject:
		seen := make(map[string]bool, len(s.Properties))
		for _, p := range s.Properties {
			if seen[p.Name] {
				return fail("duplicate property %q", p.Name)
			}
			seen[p.Name] = true
			if err := check(p.Schema, path.key(p.Name)); err != nil {
				return err
			}
		}
		for _, name := range s.Required {
			if !seen[name] && s.Additional == nil {
				return fail("required property %q is not declared and additional properties are rejected", name)
			}
		}
		if s.Additional != nil && !s.Additional.Any {
			if err := check(s.Additional.Schema, path.key("additionalProperties")); err != nil {
				return err
			}
		}
	case KindArray:
		if s.Items != nil {
			if err := check(s.Items, path.key("items")); err != nil {
				return err
			}
		}
	case KindOneOf:
		if len(s.OneOf) == 0 {
			return fail("oneOf must list at least one candidate")
		}
		for i, c := range s.OneOf {
			if err := check(c, path.index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}
