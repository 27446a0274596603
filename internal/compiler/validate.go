package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/invariant"
	"github.com/roach88/stigmergy/internal/system"
)

// Validation error codes (E200-E299)
const (
	ErrUnsupportedType = "E200" // unsupported type for validation

	// Component definition errors (E201-E209)
	ErrComponentName      = "E201" // invalid component name
	ErrComponentSchema    = "E202" // malformed schema
	ErrDuplicateComponent = "E203" // component declared twice

	// System definition errors (E210-E229)
	ErrSystemName          = "E210" // invalid system name
	ErrSystemDescription   = "E211" // empty or overlong description
	ErrSystemModel         = "E212" // empty model
	ErrSystemColor         = "E213" // color is not basic or #RRGGBB
	ErrSystemInstructions  = "E214" // instructions over 10KB
	ErrSystemTooManyRules  = "E215" // more than MaxRules bid rules
	ErrSystemTooManyGrants = "E216" // more than MaxGrants grants
	ErrSystemGrant         = "E217" // malformed grant
	ErrSystemDuplicate     = "E218" // component granted twice
	ErrSystemRule          = "E219" // malformed bid rule
	ErrUndeclaredAccess    = "E220" // rule reads a component without a read grant
	ErrUnknownComponent    = "E221" // grant names a component with no definition

	// Invariant errors (E230-E239)
	ErrInvariantName    = "E230" // empty invariant name
	ErrInvariantAsserts = "E231" // unparseable assertion
	ErrInvariantUnknown = "E232" // assertion names a component with no definition
)

// ValidationError represents a definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// systemCodes maps system.DefinitionError codes onto compiler codes.
var systemCodes = map[string]string{
	system.CodeInvalidName:         ErrSystemName,
	system.CodeInvalidDescription:  ErrSystemDescription,
	system.CodeInvalidModel:        ErrSystemModel,
	system.CodeInvalidColor:        ErrSystemColor,
	system.CodeInstructionsTooLong: ErrSystemInstructions,
	system.CodeTooManyRules:        ErrSystemTooManyRules,
	system.CodeTooManyGrants:       ErrSystemTooManyGrants,
	system.CodeInvalidGrant:        ErrSystemGrant,
	system.CodeDuplicateGrant:      ErrSystemDuplicate,
	system.CodeInvalidRule:         ErrSystemRule,
	system.CodeUndeclaredAccess:    ErrUndeclaredAccess,
}

// Validate validates compiled definitions.
// Returns all errors found (does not fail-fast).
// Supports component definitions, systems, invariants and whole worlds.
func Validate(v any) []ValidationError {
	switch d := v.(type) {
	case *component.Definition:
		return validateComponent(d)
	case component.Definition:
		return validateComponent(&d)
	case *system.Definition:
		return validateSystem(d)
	case system.Definition:
		return validateSystem(&d)
	case *invariant.Invariant:
		return validateInvariant(d)
	case invariant.Invariant:
		return validateInvariant(&d)
	case *World:
		return validateWorld(d)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateComponent(d *component.Definition) []ValidationError {
	var errs []ValidationError
	prefix := "component." + d.Name

	// E201: name must be a :: path of identifiers
	if err := component.CheckName(d.Name); err != nil {
		errs = append(errs, ValidationError{Field: prefix + ".name", Message: err.Error(), Code: ErrComponentName})
	}

	// E202: schema must be present and well formed
	if d.Schema == nil {
		errs = append(errs, ValidationError{Field: prefix + ".schema", Message: "schema is required", Code: ErrComponentSchema})
	} else if err := d.Schema.Check(); err != nil {
		errs = append(errs, ValidationError{Field: prefix + ".schema", Message: err.Error(), Code: ErrComponentSchema})
	}
	return errs
}

func validateSystem(d *system.Definition) []ValidationError {
	var errs []ValidationError
	for _, p := range d.Problems() {
		code, ok := systemCodes[p.Code]
		if !ok {
			code = ErrCodeGeneric
		}
		errs = append(errs, ValidationError{
			Field:   "system." + d.Name + "." + p.Field,
			Message: p.Message,
			Code:    code,
		})
	}
	return errs
}

func validateInvariant(inv *invariant.Invariant) []ValidationError {
	var errs []ValidationError

	// E230: name is required
	if strings.TrimSpace(inv.Name) == "" {
		errs = append(errs, ValidationError{Field: "invariant.name", Message: "invariant name is required", Code: ErrInvariantName})
	}

	// E231: the assertion must parse; a literal Invariant{} never went through New
	if inv.Name != "" {
		if _, err := invariant.New(inv.Name, inv.Asserts); err != nil {
			errs = append(errs, ValidationError{Field: "invariant." + inv.Name + ".asserts", Message: err.Error(), Code: ErrInvariantAsserts})
		}
	}
	return errs
}

// validateWorld validates every record and the references between them.
func validateWorld(w *World) []ValidationError {
	var errs []ValidationError
	line := func(kind, name string) int {
		if pos := w.Pos(kind, name); pos.IsValid() {
			return pos.Line()
		}
		return 0
	}
	withLine := func(found []ValidationError, kind, name string) []ValidationError {
		l := line(kind, name)
		for i := range found {
			if found[i].Line == 0 {
				found[i].Line = l
			}
		}
		return found
	}

	defined := make(map[string]bool, len(w.Components))
	for i := range w.Components {
		d := &w.Components[i]
		// E203: duplicate component
		if defined[d.Name] {
			errs = append(errs, ValidationError{
				Field:   "component." + d.Name,
				Message: fmt.Sprintf("component %s is declared more than once", d.Name),
				Code:    ErrDuplicateComponent,
				Line:    line("component", d.Name),
			})
		}
		defined[d.Name] = true
		errs = append(errs, withLine(validateComponent(d), "component", d.Name)...)
	}

	for i := range w.Systems {
		d := &w.Systems[i]
		found := validateSystem(d)

		// E221: every granted component needs a definition
		for j, g := range d.Grants {
			if g.Component != "" && component.ValidName(g.Component) && !defined[g.Component] {
				found = append(found, ValidationError{
					Field:   fmt.Sprintf("system.%s.component[%d]", d.Name, j),
					Message: fmt.Sprintf("component %s has no definition", g.Component),
					Code:    ErrUnknownComponent,
				})
			}
		}
		errs = append(errs, withLine(found, "system", d.Name)...)
	}

	for i := range w.Invariants {
		inv := &w.Invariants[i]
		found := validateInvariant(inv)

		// E232: every referenced component needs a definition
		for _, name := range inv.References() {
			if !defined[name] {
				found = append(found, ValidationError{
					Field:   "invariant." + inv.Name + ".asserts",
					Message: fmt.Sprintf("component %s has no definition", name),
					Code:    ErrInvariantUnknown,
				})
			}
		}
		errs = append(errs, withLine(found, "invariant", inv.Name)...)
	}
	return errs
}
