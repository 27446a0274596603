package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/stigmergy/internal/invariant"
)

// CompileInvariant parses a CUE value into an invariant. The value is
// either the assertion string or a struct with an asserts field:
//
//	invariant: health_bounded: "Health.current <= Health.maximum"
//	invariant: has_owner: asserts: "Owner.id != \"\""
func CompileInvariant(v cue.Value) (*invariant.Invariant, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	name := labelOf(v)

	src, err := v.String()
	if err != nil {
		assertsVal := v.LookupPath(cue.ParsePath("asserts"))
		if !assertsVal.Exists() {
			return nil, &CompileError{
				Field:   "asserts",
				Message: "asserts is required",
				Pos:     v.Pos(),
			}
		}
		if src, err = assertsVal.String(); err != nil {
			return nil, &CompileError{
				Field:   "asserts",
				Message: "asserts must be a string",
				Pos:     assertsVal.Pos(),
			}
		}
	}

	inv, err := invariant.New(name, src)
	if err != nil {
		return nil, &CompileError{
			Field:   "asserts",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return &inv, nil
}
