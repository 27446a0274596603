package schema

import (
	"github.com/roach88/stigmergy/internal/ir"
)

// Infer derives a schema that accepts v and values shaped like it. Every
// observed object key becomes a required property. Arrays whose elements
// infer to different schemas get a oneOf of the distinct candidates; an
// empty array infers items of type null.
func Infer(v ir.IRValue) *Schema {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return Null()
	case ir.IRBool:
		return Boolean()
	case ir.IRInt:
		return Integer()
	case ir.IRFloat:
		return Number()
	case ir.IRString:
		return String()
	case ir.IRArray:
		if len(val) == 0 {
			return Array(Null())
		}
		var distinct []*Schema
		for _, elem := range val {
			s := Infer(elem)
			dup := false
			for _, d := range distinct {
				if Equal(d, s) {
					dup = true
					break
				}
			}
			if !dup {
				distinct = append(distinct, s)
			}
		}
		if len(distinct) == 1 {
			return Array(distinct[0])
		}
		return Array(OneOf(distinct...))
	case ir.IRObject:
		obj := Object()
		for _, k := range val.SortedKeys() {
			obj.Properties = append(obj.Properties, Prop(k, Infer(val[k])))
			obj.Required = append(obj.Required, k)
		}
		return obj
	default:
		return Null()
	}
}
