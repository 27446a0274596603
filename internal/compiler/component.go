package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/schema"
)

// CompileComponent parses a CUE value into a component definition.
//
// The value is the definition struct itself, labelled with the component
// name. Its schema field holds a schema document written as CUE data:
//
//	component: Health: schema: {
//		type: "object"
//		properties: {
//			current: {type: "integer", minimum: 0}
//			maximum: {type: "integer", minimum: 1}
//		}
//		required: ["current", "maximum"]
//	}
//
// Property order follows the CUE source.
func CompileComponent(v cue.Value) (*component.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	name := labelOf(v)
	if err := component.CheckName(name); err != nil {
		return nil, &CompileError{
			Field:   "name",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}

	schemaVal := v.LookupPath(cue.ParsePath("schema"))
	if !schemaVal.Exists() {
		return nil, &CompileError{
			Field:   "schema",
			Message: "schema is required",
			Pos:     v.Pos(),
		}
	}
	if err := schemaVal.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	doc, err := schemaVal.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	s, err := schema.Parse(doc)
	if err != nil {
		return nil, &CompileError{
			Field:   "schema",
			Message: err.Error(),
			Pos:     schemaVal.Pos(),
		}
	}

	def, err := component.NewDefinition(name, s)
	if err != nil {
		return nil, &CompileError{
			Field:   "schema",
			Message: err.Error(),
			Pos:     schemaVal.Pos(),
		}
	}
	return &def, nil
}

// labelOf returns the unquoted final label of v's path, so that
// component: "ghai::Issue": {...} yields ghai::Issue.
func labelOf(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return selectorName(sels[len(sels)-1])
}

func selectorName(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}
