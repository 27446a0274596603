package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/stigmergy/internal/bid"
	"github.com/roach88/stigmergy/internal/system"
)

// CompileSystem parses a CUE value into a system definition.
//
//	system: healer: {
//		description: "Restores health to wounded entities"
//		model:       "sonnet"
//		color:       "green"
//		component: ["Health: read+write", "Healer: read"]
//		bid: ["ON Health.current < Health.maximum BID Health.maximum - Health.current"]
//		instructions: """
//			Heal the entity.
//			"""
//	}
//
// component may also be a struct of component name to mode, and bid may
// be a single rule string. Field limits and grant coverage of the rules
// are checked by Validate, not here.
func CompileSystem(v cue.Value) (*system.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &system.Definition{Name: labelOf(v)}

	var err error
	if def.Description, err = optionalString(v, "description"); err != nil {
		return nil, err
	}
	if def.Model, err = optionalString(v, "model"); err != nil {
		return nil, err
	}
	if def.Color, err = optionalString(v, "color"); err != nil {
		return nil, err
	}
	if def.Instructions, err = optionalString(v, "instructions"); err != nil {
		return nil, err
	}

	grantsVal := v.LookupPath(cue.ParsePath("component"))
	if !grantsVal.Exists() {
		return nil, &CompileError{
			Field:   "component",
			Message: "component grants are required",
			Pos:     v.Pos(),
		}
	}
	if def.Grants, err = parseGrants(grantsVal); err != nil {
		return nil, err
	}

	if bidVal := v.LookupPath(cue.ParsePath("bid")); bidVal.Exists() {
		if def.Rules, err = parseRules(bidVal); err != nil {
			return nil, err
		}
	}
	return def, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	if err := fv.Err(); err != nil {
		return "", formatCUEError(err)
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", field),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// parseGrants accepts ["Health: read", ...] or {Health: "read", ...}.
func parseGrants(v cue.Value) ([]system.Grant, error) {
	var grants []system.Grant

	switch v.IncompleteKind() {
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			elem := iter.Value()
			s, err := elem.String()
			if err != nil {
				return nil, &CompileError{
					Field:   "component",
					Message: fmt.Sprintf("grant %d must be a string like \"Health: read\"", i),
					Pos:     elem.Pos(),
				}
			}
			g, err := system.ParseGrant(s)
			if err != nil {
				return nil, &CompileError{Field: "component", Message: err.Error(), Pos: elem.Pos()}
			}
			grants = append(grants, g)
		}
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := selectorName(iter.Selector())
			modeVal := iter.Value()
			s, err := modeVal.String()
			if err != nil {
				return nil, &CompileError{
					Field:   "component",
					Message: fmt.Sprintf("mode for %s must be a string", name),
					Pos:     modeVal.Pos(),
				}
			}
			mode, err := system.ParseAccessMode(s)
			if err != nil {
				return nil, &CompileError{Field: "component", Message: err.Error(), Pos: modeVal.Pos()}
			}
			grants = append(grants, system.Grant{Component: name, Mode: mode})
		}
	default:
		return nil, &CompileError{
			Field:   "component",
			Message: "component must be a list of grants or a struct of modes",
			Pos:     v.Pos(),
		}
	}
	return grants, nil
}

func parseRules(v cue.Value) ([]bid.Rule, error) {
	if src, err := v.String(); err == nil {
		r, err := bid.ParseRule(src)
		if err != nil {
			return nil, &CompileError{Field: "bid", Message: err.Error(), Pos: v.Pos()}
		}
		return []bid.Rule{r}, nil
	}

	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "bid",
			Message: "bid must be a rule string or a list of rule strings",
			Pos:     v.Pos(),
		}
	}
	var rules []bid.Rule
	for i := 0; iter.Next(); i++ {
		elem := iter.Value()
		src, err := elem.String()
		if err != nil {
			return nil, &CompileError{
				Field:   "bid",
				Message: fmt.Sprintf("rule %d must be a string", i),
				Pos:     elem.Pos(),
			}
		}
		r, err := bid.ParseRule(src)
		if err != nil {
			return nil, &CompileError{
				Field:   "bid",
				Message: fmt.Sprintf("rule %d: %v", i, err),
				Pos:     elem.Pos(),
			}
		}
		rules = append(rules, r)
	}
	return rules, nil
}
