package schema

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/stigmergy/internal/ir"
)

// ErrorCode categorizes validation failures.
type ErrorCode string

const (
	// CodeTypeMismatch indicates the value has the wrong JSON type.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeMissingField indicates a required object property is absent.
	CodeMissingField ErrorCode = "MISSING_FIELD"

	// CodeUnexpectedField indicates an unlisted property where none are allowed.
	CodeUnexpectedField ErrorCode = "UNEXPECTED_FIELD"

	// CodeOutOfRange indicates a number outside minimum/maximum.
	CodeOutOfRange ErrorCode = "OUT_OF_RANGE"

	// CodeNotInEnum indicates a string outside the declared enum.
	CodeNotInEnum ErrorCode = "NOT_IN_ENUM"

	// CodeTooManyItems indicates an array longer than maxItems.
	CodeTooManyItems ErrorCode = "TOO_MANY_ITEMS"

	// CodeNoMatchingVariant indicates no oneOf candidate accepted the value.
	CodeNoMatchingVariant ErrorCode = "NO_MATCHING_VARIANT"
)

// ValidationError describes the first mismatch between data and a schema.
// Which detail fields are set depends on Code.
type ValidationError struct {
	Code ErrorCode

	// Path locates the offending value. For MISSING_FIELD and
	// UNEXPECTED_FIELD it is the path of the enclosing object.
	Path Path

	// TYPE_MISMATCH
	Expected string
	Actual   string

	// MISSING_FIELD, UNEXPECTED_FIELD
	Field string

	// OUT_OF_RANGE, NOT_IN_ENUM
	Value ir.IRValue
	Bound float64
	// BoundName is "minimum" or "maximum".
	BoundName string
	Allowed   []string

	// TOO_MANY_ITEMS
	Count int
	Max   int

	// NO_MATCHING_VARIANT: one failure per candidate, in declaration order.
	Variants []*ValidationError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Path.Display(), e.detail())
}

func (e *ValidationError) detail() string {
	switch e.Code {
	case CodeTypeMismatch:
		return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
	case CodeMissingField:
		return fmt.Sprintf("missing required field %q", e.Field)
	case CodeUnexpectedField:
		return fmt.Sprintf("unexpected field %q", e.Field)
	case CodeOutOfRange:
		op := ">="
		if e.BoundName == "maximum" {
			op = "<="
		}
		return fmt.Sprintf("value %s must be %s %v", render(e.Value), op, e.Bound)
	case CodeNotInEnum:
		return fmt.Sprintf("value %s is not one of [%s]", render(e.Value), strings.Join(e.Allowed, ", "))
	case CodeTooManyItems:
		return fmt.Sprintf("%d items exceeds maxItems %d", e.Count, e.Max)
	case CodeNoMatchingVariant:
		parts := make([]string, len(e.Variants))
		for i, v := range e.Variants {
			parts[i] = fmt.Sprintf("#%d: %s", i, v.Error())
		}
		return fmt.Sprintf("no oneOf candidate matched (%s)", strings.Join(parts, "; "))
	default:
		return string(e.Code)
	}
}

func render(v ir.IRValue) string {
	b, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// IsValidationError returns true if err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks v against s. It returns nil or a *ValidationError for the
// first failure found. Objects report property failures in declaration
// order, then unexpected fields in sorted order, then missing required
// fields. Validate never modifies v.
func Validate(s *Schema, v ir.IRValue) error {
	if err := validate(s, v, nil); err != nil {
		return err
	}
	return nil
}

// validate returns a typed nil-able pointer so oneOf can collect failures.
func validate(s *Schema, v ir.IRValue, path Path) *ValidationError {
	if v == nil {
		v = ir.IRNull{}
	}
	mismatch := func(expected string) *ValidationError {
		return &ValidationError{
			Code:     CodeTypeMismatch,
			Path:     path.clone(),
			Expected: expected,
			Actual:   ir.TypeName(v),
		}
	}

	switch s.Kind {
	case KindNull:
		if _, ok := v.(ir.IRNull); !ok {
			return mismatch("null")
		}
	case KindBoolean:
		if _, ok := v.(ir.IRBool); !ok {
			return mismatch("boolean")
		}
	case KindInteger:
		switch n := v.(type) {
		case ir.IRInt:
		case ir.IRFloat:
			if float64(n) != math.Trunc(float64(n)) {
				return mismatch("integer")
			}
		default:
			return mismatch("integer")
		}
		return checkBounds(s, v, path)
	case KindNumber:
		if _, ok := ir.AsFloat(v); !ok {
			return mismatch("number")
		}
		return checkBounds(s, v, path)
	case KindString:
		str, ok := v.(ir.IRString)
		if !ok {
			return mismatch("string")
		}
		if s.Enum != nil && !slices.Contains(s.Enum, string(str)) {
			return &ValidationError{
				Code:    CodeNotInEnum,
				Path:    path.clone(),
				Value:   str,
				Allowed: slices.Clone(s.Enum),
			}
		}
	case KindArray:
		arr, ok := v.(ir.IRArray)
		if !ok {
			return mismatch("array")
		}
		if s.MaxItems != nil && len(arr) > *s.MaxItems {
			return &ValidationError{
				Code:  CodeTooManyItems,
				Path:  path.clone(),
				Count: len(arr),
				Max:   *s.MaxItems,
			}
		}
		if s.Items != nil {
			for i, elem := range arr {
				if err := validate(s.Items, elem, path.index(i)); err != nil {
					return err
				}
			}
		}
	case KindObject:
		obj, ok := v.(ir.IRObject)
		if !ok {
			return mismatch("object")
		}
		return validateObject(s, obj, path)
	case KindOneOf:
		var failures []*ValidationError
		for _, candidate := range s.OneOf {
			err := validate(candidate, v, path)
			if err == nil {
				return nil
			}
			failures = append(failures, err)
		}
		return &ValidationError{
			Code:     CodeNoMatchingVariant,
			Path:     path.clone(),
			Variants: failures,
		}
	default:
		return mismatch(string(s.Kind))
	}
	return nil
}

func validateObject(s *Schema, obj ir.IRObject, path Path) *ValidationError {
	for _, p := range s.Properties {
		if val, ok := obj[p.Name]; ok {
			if err := validate(p.Schema, val, path.key(p.Name)); err != nil {
				return err
			}
		}
	}

	for _, k := range obj.SortedKeys() {
		if _, declared := s.Property(k); declared {
			continue
		}
		switch {
		case s.Additional == nil:
			return &ValidationError{
				Code:  CodeUnexpectedField,
				Path:  path.clone(),
				Field: k,
			}
		case s.Additional.Any:
		default:
			if err := validate(s.Additional.Schema, obj[k], path.key(k)); err != nil {
				return err
			}
		}
	}

	for _, name := range s.Required {
		if _, ok := obj[name]; !ok {
			return &ValidationError{
				Code:  CodeMissingField,
				Path:  path.clone(),
				Field: name,
			}
		}
	}
	return nil
}

func checkBounds(s *Schema, v ir.IRValue, path Path) *ValidationError {
	if s.Minimum != nil && compareToBound(v, *s.Minimum) < 0 {
		return &ValidationError{
			Code:      CodeOutOfRange,
			Path:      path.clone(),
			Value:     v,
			Bound:     *s.Minimum,
			BoundName: "minimum",
		}
	}
	if s.Maximum != nil && compareToBound(v, *s.Maximum) > 0 {
		return &ValidationError{
			Code:      CodeOutOfRange,
			Path:      path.clone(),
			Value:     v,
			Bound:     *s.Maximum,
			BoundName: "maximum",
		}
	}
	return nil
}

// compareToBound compares a numeric value with a bound, exactly for
// integers whenever the bound is itself an in-range integer.
func compareToBound(v ir.IRValue, bound float64) int {
	if n, ok := v.(ir.IRInt); ok && bound == math.Trunc(bound) && bound >= math.MinInt64 && bound < math.MaxInt64 {
		b := int64(bound)
		switch {
		case int64(n) < b:
			return -1
		case int64(n) > b:
			return 1
		}
		return 0
	}
	f, _ := ir.AsFloat(v)
	switch {
	case f < bound:
		return -1
	case f > bound:
		return 1
	}
	return 0
}
