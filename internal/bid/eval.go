package bid

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/roach88/stigmergy/internal/ir"
)

// Snapshot is the read-only view of one entity that expressions evaluate
// against. Implementations filter by the evaluating system's read grants.
type Snapshot interface {
	// Readable reports whether the evaluator may reference name at all.
	Readable(name string) bool
	// Component returns live data for name; false when absent or tombstoned.
	Component(name string) (ir.IRValue, bool)
}

// MapSnapshot is a Snapshot over a map of live components. A nil Allowed
// makes every component readable.
type MapSnapshot struct {
	Components map[string]ir.IRValue
	Allowed    map[string]bool
}

// Readable implements Snapshot.
func (m MapSnapshot) Readable(name string) bool {
	return m.Allowed == nil || m.Allowed[name]
}

// Component implements Snapshot.
func (m MapSnapshot) Component(name string) (ir.IRValue, bool) {
	v, ok := m.Components[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// EvalErrorCode categorizes evaluation failures.
type EvalErrorCode string

const (
	// CodeDivisionByZero indicates / or % with a zero divisor.
	CodeDivisionByZero EvalErrorCode = "DIVISION_BY_ZERO"

	// CodeTypeError indicates an arithmetic operator applied to unsupported operands.
	CodeTypeError EvalErrorCode = "TYPE_ERROR"

	// CodeFieldNotFound indicates a field path missing from present component data.
	CodeFieldNotFound EvalErrorCode = "FIELD_NOT_FOUND"

	// CodeComponentAbsent indicates a field reference into an absent component.
	// Rules hitting it are inactive rather than failed.
	CodeComponentAbsent EvalErrorCode = "COMPONENT_ABSENT"

	// CodeUnreadableComponent indicates a reference outside the read grants.
	CodeUnreadableComponent EvalErrorCode = "UNREADABLE_COMPONENT"

	// CodeInvalidRegex indicates a dynamic ~= pattern that failed to compile.
	CodeInvalidRegex EvalErrorCode = "INVALID_REGEX"

	// CodeNotNumeric indicates a bid value that is not a number.
	CodeNotNumeric EvalErrorCode = "NOT_NUMERIC"

	// CodeOverflow indicates a numeric result that is not finite.
	CodeOverflow EvalErrorCode = "NUMERIC_OVERFLOW"
)

// EvalError reports a failure evaluating an expression.
type EvalError struct {
	Code    EvalErrorCode
	Pos     Position
	Message string
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Pos, e.Message)
}

// IsEvalError returns true if err wraps a *EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// IsComponentAbsent returns true if err is an EvalError for an absent component.
func IsComponentAbsent(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Code == CodeComponentAbsent
}

// IsUnreadable returns true if err is an EvalError for an unreadable component.
func IsUnreadable(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Code == CodeUnreadableComponent
}

func evalErr(code EvalErrorCode, pos Position, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Eval evaluates e against s.
//
// Comparisons between mismatched types are false (!= is true), and ~= on
// non-strings is false. Logical operators short-circuit on truthiness and
// always produce booleans.
func Eval(e Expr, s Snapshot) (ir.IRValue, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, nil
	case *Presence:
		if !s.Readable(n.Component) {
			return nil, evalErr(CodeUnreadableComponent, n.At, "component %s is not readable", n.Component)
		}
		_, ok := s.Component(n.Component)
		return ir.IRBool(ok), nil
	case *Ref:
		return resolve(n, s)
	case *Unary:
		x, err := Eval(n.X, s)
		if err != nil {
			return nil, err
		}
		if n.Op == OpNot {
			return ir.IRBool(!Truthy(x)), nil
		}
		switch v := x.(type) {
		case ir.IRInt:
			if v == math.MinInt64 {
				return ir.IRFloat(-float64(v)), nil
			}
			return -v, nil
		case ir.IRFloat:
			return -v, nil
		}
		return nil, evalErr(CodeTypeError, n.At, "cannot negate %s", ir.TypeName(x))
	case *Binary:
		return evalBinary(n, s)
	}
	return nil, fmt.Errorf("unknown expression node %T", e)
}

func resolve(r *Ref, s Snapshot) (ir.IRValue, error) {
	if !s.Readable(r.Component) {
		return nil, evalErr(CodeUnreadableComponent, r.At, "component %s is not readable", r.Component)
	}
	cur, ok := s.Component(r.Component)
	if !ok {
		return nil, evalErr(CodeComponentAbsent, r.At, "component %s is absent", r.Component)
	}
	for i, f := range r.Field {
		obj, ok := cur.(ir.IRObject)
		if !ok {
			return nil, evalErr(CodeFieldNotFound, r.At, "%s.%s is not an object", r.Component, strings.Join(r.Field[:i], "."))
		}
		cur, ok = obj[f]
		if !ok {
			return nil, evalErr(CodeFieldNotFound, r.At, "field %s not found", r.String())
		}
	}
	return cur, nil
}

// Truthy reports the boolean interpretation of v: false, null, 0, "",
// [] and {} are false; everything else is true.
func Truthy(v ir.IRValue) bool {
	switch x := v.(type) {
	case nil, ir.IRNull:
		return false
	case ir.IRBool:
		return bool(x)
	case ir.IRInt:
		return x != 0
	case ir.IRFloat:
		return x != 0
	case ir.IRString:
		return x != ""
	case ir.IRArray:
		return len(x) > 0
	case ir.IRObject:
		return len(x) > 0
	}
	return false
}

func evalBinary(n *Binary, s Snapshot) (ir.IRValue, error) {
	l, err := Eval(n.L, s)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpAnd:
		if !Truthy(l) {
			return ir.IRBool(false), nil
		}
		r, err := Eval(n.R, s)
		if err != nil {
			return nil, err
		}
		return ir.IRBool(Truthy(r)), nil
	case OpOr:
		if Truthy(l) {
			return ir.IRBool(true), nil
		}
		r, err := Eval(n.R, s)
		if err != nil {
			return nil, err
		}
		return ir.IRBool(Truthy(r)), nil
	}

	r, err := Eval(n.R, s)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case OpEq:
		return ir.IRBool(ir.Equal(l, r)), nil
	case OpNe:
		return ir.IRBool(!ir.Equal(l, r)), nil
	case OpLt, OpLe, OpGt, OpGe:
		c, ok := compare(l, r)
		if !ok {
			return ir.IRBool(false), nil
		}
		switch n.Op {
		case OpLt:
			return ir.IRBool(c < 0), nil
		case OpLe:
			return ir.IRBool(c <= 0), nil
		case OpGt:
			return ir.IRBool(c > 0), nil
		default:
			return ir.IRBool(c >= 0), nil
		}
	case OpMatch:
		return match(n, l, r)
	}
	return arith(n, l, r)
}

// compare orders two numbers or two strings.
func compare(l, r ir.IRValue) (int, bool) {
	if ls, ok := l.(ir.IRString); ok {
		rs, ok := r.(ir.IRString)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(ls), string(rs)), true
	}
	li, lInt := l.(ir.IRInt)
	ri, rInt := r.(ir.IRInt)
	if lInt && rInt {
		switch {
		case li < ri:
			return -1, true
		case li > ri:
			return 1, true
		}
		return 0, true
	}
	lf, ok := ir.AsFloat(l)
	if !ok {
		return 0, false
	}
	rf, ok := ir.AsFloat(r)
	if !ok {
		return 0, false
	}
	switch {
	case lf < rf:
		return -1, true
	case lf > rf:
		return 1, true
	}
	return 0, true
}

func match(n *Binary, l, r ir.IRValue) (ir.IRValue, error) {
	str, ok := l.(ir.IRString)
	if !ok {
		return ir.IRBool(false), nil
	}
	re := n.pattern
	if re == nil {
		pat, ok := r.(ir.IRString)
		if !ok {
			return ir.IRBool(false), nil
		}
		var err error
		re, err = regexp.Compile(string(pat))
		if err != nil {
			return nil, evalErr(CodeInvalidRegex, n.At, "pattern %q: %v", string(pat), err)
		}
	}
	return ir.IRBool(re.MatchString(string(str))), nil
}

func arith(n *Binary, l, r ir.IRValue) (ir.IRValue, error) {
	if n.Op == OpAdd {
		if ls, ok := l.(ir.IRString); ok {
			if rs, ok := r.(ir.IRString); ok {
				return ls + rs, nil
			}
		}
	}

	lf, lok := ir.AsFloat(l)
	rf, rok := ir.AsFloat(r)
	if !lok || !rok {
		return nil, evalErr(CodeTypeError, n.At, "cannot apply %s to %s and %s", n.Op, ir.TypeName(l), ir.TypeName(r))
	}
	li, lInt := l.(ir.IRInt)
	ri, rInt := r.(ir.IRInt)
	bothInt := lInt && rInt

	switch n.Op {
	case OpAdd:
		if bothInt {
			if sum := li + ri; (sum > li) == (ri > 0) {
				return sum, nil
			}
		}
		return finite(n, lf+rf)
	case OpSub:
		if bothInt {
			if diff := li - ri; (diff < li) == (ri > 0) {
				return diff, nil
			}
		}
		return finite(n, lf-rf)
	case OpMul:
		if bothInt {
			if li == 0 || ri == 0 {
				return ir.IRInt(0), nil
			}
			if prod := li * ri; prod/ri == li && !(li == -1 && ri == math.MinInt64) && !(ri == -1 && li == math.MinInt64) {
				return prod, nil
			}
		}
		return finite(n, lf*rf)
	case OpDiv:
		if rf == 0 {
			return nil, evalErr(CodeDivisionByZero, n.At, "division by zero")
		}
		if bothInt && li%ri == 0 && !(li == math.MinInt64 && ri == -1) {
			return li / ri, nil
		}
		return finite(n, lf/rf)
	case OpMod:
		if rf == 0 {
			return nil, evalErr(CodeDivisionByZero, n.At, "modulo by zero")
		}
		if bothInt {
			if ri == -1 {
				return ir.IRInt(0), nil
			}
			return li % ri, nil
		}
		return finite(n, math.Mod(lf, rf))
	case OpPow:
		res := math.Pow(lf, rf)
		if bothInt && ri >= 0 && res == math.Trunc(res) && math.Abs(res) < 1<<53 {
			return ir.IRInt(int64(res)), nil
		}
		return finite(n, res)
	}
	return nil, evalErr(CodeTypeError, n.At, "unknown operator %s", n.Op)
}

func finite(n *Binary, f float64) (ir.IRValue, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, evalErr(CodeOverflow, n.At, "%s produced a non-finite result", n.Op)
	}
	return ir.IRFloat(f), nil
}
