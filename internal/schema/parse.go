package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/roach88/stigmergy/internal/ir"
)

// Document keys understood by Parse.
const (
	keyType       = "type"
	keyProperties = "properties"
	keyRequired   = "required"
	keyAdditional = "additionalProperties"
	keyItems      = "items"
	keyMaxItems   = "maxItems"
	keyEnum       = "enum"
	keyMinimum    = "minimum"
	keyMaximum    = "maximum"
	keyOneOf      = "oneOf"
)

// annotationKeys are accepted and dropped; they never affect validation.
var annotationKeys = map[string]bool{
	"$schema":     true,
	"$id":         true,
	"title":       true,
	"description": true,
	"default":     true,
	"examples":    true,
	"format":      true,
}

// member is one key of a JSON object in document order.
type member struct {
	key string
	val any
}

// orderedObject keeps object keys in the order they were written, which
// matters for "properties".
type orderedObject []member

func (o orderedObject) get(key string) (any, bool) {
	for _, m := range o {
		if m.key == key {
			return m.val, true
		}
	}
	return nil, false
}

// Parse reads a JSON schema document. Property declaration order is kept.
func Parse(data []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	doc, err := decodeOrdered(dec)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("parse schema: unexpected data after document")
	}
	return fromDoc(doc)
}

// FromValue reads a schema document already decoded into an ir value.
// IRObject does not keep key order, so properties are declared in sorted
// order; use Parse when declaration order matters.
func FromValue(v ir.IRValue) (*Schema, error) {
	return fromDoc(docFromIR(v))
}

// MustParse is like Parse but panics on error. Use only in tests and for
// built-in schemas.
func MustParse(data string) *Schema {
	s, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return s
}

func fromDoc(doc any) (*Schema, error) {
	s, err := parseNode(doc, nil)
	if err != nil {
		return nil, err
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var obj orderedObject
			seen := make(map[string]bool)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key := keyTok.(string)
				if seen[key] {
					return nil, fmt.Errorf("duplicate key %q", key)
				}
				seen[key] = true
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, member{key: key, val: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if obj == nil {
				obj = orderedObject{}
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return ir.FromGo(t)
	}
}

func docFromIR(v ir.IRValue) any {
	switch val := v.(type) {
	case ir.IRObject:
		obj := make(orderedObject, 0, len(val))
		for _, k := range val.SortedKeys() {
			obj = append(obj, member{key: k, val: docFromIR(val[k])})
		}
		return obj
	case ir.IRArray:
		arr := make([]any, len(val))
		for i, elem := range val {
			arr[i] = docFromIR(elem)
		}
		return arr
	default:
		return v
	}
}

func parseNode(doc any, path Path) (*Schema, error) {
	fail := func(format string, args ...any) error {
		return &SchemaError{Path: path.clone(), Message: fmt.Sprintf(format, args...)}
	}

	obj, ok := doc.(orderedObject)
	if !ok {
		return nil, fail("schema must be an object, got %s", docType(doc))
	}

	for _, m := range obj {
		switch m.key {
		case keyType, keyProperties, keyRequired, keyAdditional, keyItems,
			keyMaxItems, keyEnum, keyMinimum, keyMaximum, keyOneOf:
		default:
			if !annotationKeys[m.key] {
				return nil, fail("unknown keyword %q", m.key)
			}
		}
	}

	s := &Schema{}

	if raw, ok := obj.get(keyOneOf); ok {
		if _, hasType := obj.get(keyType); hasType {
			return nil, fail("oneOf cannot be combined with type")
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fail("oneOf must be an array")
		}
		s.Kind = KindOneOf
		for i, c := range list {
			child, err := parseNode(c, path.key(keyOneOf).index(i))
			if err != nil {
				return nil, err
			}
			s.OneOf = append(s.OneOf, child)
		}
		return s, nil
	}

	rawType, ok := obj.get(keyType)
	if !ok {
		return nil, fail("missing %q", keyType)
	}
	switch t := rawType.(type) {
	case ir.IRString:
		s.Kind = Kind(t)
		if s.Kind == KindOneOf || !s.Kind.Valid() {
			return nil, fail("unknown type %q", string(t))
		}
	case []any:
		// {"type": ["string", "null"]} is shorthand for a oneOf of bare types.
		union := OneOf()
		for i, elem := range t {
			name, ok := elem.(ir.IRString)
			if !ok || Kind(name) == KindOneOf || !Kind(name).Valid() {
				return nil, &SchemaError{Path: path.key(keyType).index(i), Message: "type list entries must be type names"}
			}
			variant := orderedObject{{key: keyType, val: name}}
			for _, m := range obj {
				if m.key != keyType {
					variant = append(variant, m)
				}
			}
			child, err := parseNode(stripInapplicable(variant, Kind(name)), path)
			if err != nil {
				return nil, err
			}
			union.OneOf = append(union.OneOf, child)
		}
		return union, nil
	default:
		return nil, fail("%q must be a string or list of strings", keyType)
	}

	if raw, ok := obj.get(keyMinimum); ok {
		f, err := number(raw)
		if err != nil {
			return nil, fail("%s: %v", keyMinimum, err)
		}
		s.Minimum = &f
	}
	if raw, ok := obj.get(keyMaximum); ok {
		f, err := number(raw)
		if err != nil {
			return nil, fail("%s: %v", keyMaximum, err)
		}
		s.Maximum = &f
	}
	if raw, ok := obj.get(keyEnum); ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fail("enum must be an array")
		}
		s.Enum = make([]string, 0, len(list))
		for _, e := range list {
			str, ok := e.(ir.IRString)
			if !ok {
				return nil, fail("enum values must be strings")
			}
			s.Enum = append(s.Enum, string(str))
		}
	}
	if raw, ok := obj.get(keyProperties); ok {
		props, ok := raw.(orderedObject)
		if !ok {
			return nil, fail("properties must be an object")
		}
		for _, m := range props {
			child, err := parseNode(m.val, path.key(m.key))
			if err != nil {
				return nil, err
			}
			s.Properties = append(s.Properties, Prop(m.key, child))
		}
	}
	if raw, ok := obj.get(keyRequired); ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fail("required must be an array")
		}
		for _, e := range list {
			str, ok := e.(ir.IRString)
			if !ok {
				return nil, fail("required entries must be strings")
			}
			s.Required = append(s.Required, string(str))
		}
	}
	if raw, ok := obj.get(keyAdditional); ok {
		switch a := raw.(type) {
		case ir.IRBool:
			if a {
				s.Additional = &Additional{Any: true}
			}
		case orderedObject:
			child, err := parseNode(a, path.key(keyAdditional))
			if err != nil {
				return nil, err
			}
			s.Additional = &Additional{Schema: child}
		default:
			return nil, fail("additionalProperties must be a boolean or schema")
		}
	}
	if raw, ok := obj.get(keyItems); ok {
		child, err := parseNode(raw, path.key(keyItems))
		if err != nil {
			return nil, err
		}
		s.Items = child
	}
	if raw, ok := obj.get(keyMaxItems); ok {
		n, ok := raw.(ir.IRInt)
		if !ok || n > math.MaxInt32 {
			return nil, fail("maxItems must be an integer")
		}
		max := int(n)
		s.MaxItems = &max
	}
	return s, nil
}

// stripInapplicable drops keywords that do not belong to kind, so a
// multi-type shorthand like {"type":["integer","null"],"minimum":0} only
// applies minimum to the integer branch.
func stripInapplicable(obj orderedObject, kind Kind) orderedObject {
	allowed := map[string]bool{keyType: true}
	switch kind {
	case KindInteger, KindNumber:
		allowed[keyMinimum], allowed[keyMaximum] = true, true
	case KindString:
		allowed[keyEnum] = true
	case KindObject:
		allowed[keyProperties], allowed[keyRequired], allowed[keyAdditional] = true, true, true
	case KindArray:
		allowed[keyItems], allowed[keyMaxItems] = true, true
	}
	out := make(orderedObject, 0, len(obj))
	for _, m := range obj {
		if allowed[m.key] || annotationKeys[m.key] {
			out = append(out, m)
		}
	}
	return out
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case ir.IRInt:
		return float64(n), nil
	case ir.IRFloat:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("must be a number, got %s", docType(v))
	}
}

func docType(v any) string {
	switch val := v.(type) {
	case orderedObject:
		return "object"
	case []any:
		return "array"
	case ir.IRValue:
		return ir.TypeName(val)
	default:
		return fmt.Sprintf("%T", v)
	}
}

// MarshalJSON writes s as a schema document. Keys appear in a fixed order
// and properties keep declaration order, so equal schemas marshal to equal
// bytes.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler via Parse.
func (s *Schema) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

func (s *Schema) write(buf *bytes.Buffer) error {
	if s == nil {
		return fmt.Errorf("marshal schema: nil node")
	}
	buf.WriteByte('{')
	first := true
	field := func(key string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeString(buf, key)
		buf.WriteByte(':')
	}

	if s.Kind == KindOneOf {
		field(keyOneOf)
		buf.WriteByte('[')
		for i, c := range s.OneOf {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := c.write(buf); err != nil {
				return err
			}
		}
		buf.WriteString("]}")
		return nil
	}

	field(keyType)
	writeString(buf, string(s.Kind))

	if len(s.Properties) > 0 {
		field(keyProperties)
		buf.WriteByte('{')
		for i, p := range s.Properties {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, p.Name)
			buf.WriteByte(':')
			if err := p.Schema.write(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	if len(s.Required) > 0 {
		field(keyRequired)
		writeStrings(buf, s.Required)
	}
	if s.Additional != nil {
		field(keyAdditional)
		if s.Additional.Any {
			buf.WriteString("true")
		} else if err := s.Additional.Schema.write(buf); err != nil {
			return err
		}
	}
	if s.Items != nil {
		field(keyItems)
		if err := s.Items.write(buf); err != nil {
			return err
		}
	}
	if s.MaxItems != nil {
		field(keyMaxItems)
		buf.WriteString(strconv.Itoa(*s.MaxItems))
	}
	if s.Enum != nil {
		field(keyEnum)
		writeStrings(buf, s.Enum)
	}
	if s.Minimum != nil {
		field(keyMinimum)
		buf.WriteString(formatBound(*s.Minimum))
	}
	if s.Maximum != nil {
		field(keyMaximum)
		buf.WriteString(formatBound(*s.Maximum))
	}
	buf.WriteByte('}')
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func writeStrings(buf *bytes.Buffer, list []string) {
	buf.WriteByte('[')
	for i, s := range list {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, s)
	}
	buf.WriteByte(']')
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Equal reports whether two schemas have the same document form.
func Equal(a, b *Schema) bool {
	ab, errA := a.MarshalJSON()
	bb, errB := b.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}
