// Package bid implements the bid expression language.
//
// A bid rule has the form
//
//	ON <condition> BID <value>
//
// where both parts are expressions over literals, component field
// references (Health.current), presence tests (Healer, Healer.present),
// comparison, boolean, arithmetic and regex operators. Rules are parsed
// once and evaluated against a capability-filtered Snapshot of an entity.
package bid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/stigmergy/internal/ir"
)

// Position is a 1-based line and column in rule source.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Op is a unary or binary operator.
type Op string

const (
	OpOr    Op = "||"
	OpAnd   Op = "&&"
	OpEq    Op = "=="
	OpNe    Op = "!="
	OpMatch Op = "~="
	OpLt    Op = "<"
	OpLe    Op = "<="
	OpGt    Op = ">"
	OpGe    Op = ">="
	OpAdd   Op = "+"
	OpSub   Op = "-"
	OpMul   Op = "*"
	OpDiv   Op = "/"
	OpMod   Op = "%"
	OpPow   Op = "^"
	OpNot   Op = "!"
	OpNeg   Op = "-"
)

// precedence returns the binding power of a binary operator; higher binds tighter.
func (o Op) precedence() int {
	switch o {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNe, OpMatch:
		return 3
	case OpLt, OpLe, OpGt, OpGe:
		return 4
	case OpAdd, OpSub:
		return 5
	case OpMul, OpDiv, OpMod:
		return 6
	case OpPow:
		return 7
	}
	return 0
}

// Expr is a parsed expression node.
type Expr interface {
	Pos() Position
	String() string
	expr()
}

// Literal is a constant: null, boolean, integer, float or string.
type Literal struct {
	Value ir.IRValue
	At    Position
}

// Ref reads a field path inside a component, e.g. Health.current.
type Ref struct {
	Component string
	Field     []string
	At        Position
}

// Presence tests whether a component is attached and not tombstoned.
// Written as a bare component name or Component.present.
type Presence struct {
	Component string
	At        Position
}

// Unary is !x or -x.
type Unary struct {
	Op Op
	X  Expr
	At Position
}

// Binary is l op r.
type Binary struct {
	Op   Op
	L, R Expr
	At   Position

	// pattern is the compiled right operand of ~= when it is a string literal.
	pattern *regexp.Regexp
}

func (*Literal) expr()  {}
func (*Ref) expr()      {}
func (*Presence) expr() {}
func (*Unary) expr()    {}
func (*Binary) expr()   {}

func (e *Literal) Pos() Position  { return e.At }
func (e *Ref) Pos() Position      { return e.At }
func (e *Presence) Pos() Position { return e.At }
func (e *Unary) Pos() Position    { return e.At }
func (e *Binary) Pos() Position   { return e.At }

func (e *Literal) String() string {
	switch v := e.Value.(type) {
	case ir.IRString:
		return quote(string(v))
	case ir.IRFloat:
		s := strconv.FormatFloat(float64(v), 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	default:
		b, err := ir.MarshalIRValue(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func (e *Ref) String() string {
	return e.Component + "." + strings.Join(e.Field, ".")
}

func (e *Presence) String() string { return e.Component }

func (e *Unary) String() string { return string(e.Op) + e.X.String() }

func (e *Binary) String() string {
	return "(" + e.L.String() + " " + string(e.Op) + " " + e.R.String() + ")"
}

// quote renders s using only the escapes the lexer understands.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// References returns the component names e mentions, in order of first use.
func References(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		var name string
		switch n := e.(type) {
		case *Ref:
			name = n.Component
		case *Presence:
			name = n.Component
		case *Unary:
			walk(n.X)
			return
		case *Binary:
			walk(n.L)
			walk(n.R)
			return
		default:
			return
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	walk(e)
	return out
}
