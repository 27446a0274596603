package bid

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/stigmergy/internal/ir"
)

// ParseErrorKind categorizes syntax errors.
type ParseErrorKind string

const (
	ErrInvalidCharacter   ParseErrorKind = "INVALID_CHARACTER"
	ErrInvalidNumber      ParseErrorKind = "INVALID_NUMBER"
	ErrUnterminatedString ParseErrorKind = "UNTERMINATED_STRING"
	ErrUnexpectedToken    ParseErrorKind = "UNEXPECTED_TOKEN"
	ErrMissingOn          ParseErrorKind = "MISSING_ON"
	ErrMissingBid         ParseErrorKind = "MISSING_BID"
	ErrEmptyExpression    ParseErrorKind = "EMPTY_EXPRESSION"
	ErrInvalidPattern     ParseErrorKind = "INVALID_PATTERN"
)

// ParseError reports malformed rule or expression source.
type ParseError struct {
	Kind    ParseErrorKind
	Pos     Position
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Message)
}

// IsParseError returns true if err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

type parser struct {
	toks []token
	i    int
}

func newParser(src string) (*parser, error) {
	toks, err := newLexer(src).all()
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) unexpected(want string) error {
	t := p.peek()
	if t.kind == tokEOF {
		return &ParseError{Kind: ErrEmptyExpression, Pos: t.pos, Message: "expected " + want + ", found end of input"}
	}
	return &ParseError{Kind: ErrUnexpectedToken, Pos: t.pos, Message: fmt.Sprintf("expected %s, found %s", want, t.describe())}
}

// ParseExpr parses a standalone expression, as used by invariants.
func ParseExpr(src string) (Expr, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	e, err := p.expression(1)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.unexpected("end of input")
	}
	return e, nil
}

// MustParseExpr is like ParseExpr but panics on error. Use only in tests.
func MustParseExpr(src string) Expr {
	e, err := ParseExpr(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (p *parser) rule() (Expr, Expr, error) {
	if p.peek().kind != tokOn {
		t := p.peek()
		return nil, nil, &ParseError{Kind: ErrMissingOn, Pos: t.pos, Message: "rule must start with ON"}
	}
	p.next()

	cond, err := p.expression(1)
	if err != nil {
		return nil, nil, err
	}

	if p.peek().kind != tokBid {
		t := p.peek()
		return nil, nil, &ParseError{Kind: ErrMissingBid, Pos: t.pos, Message: "expected BID after condition, found " + t.describe()}
	}
	p.next()

	val, err := p.expression(1)
	if err != nil {
		return nil, nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, nil, p.unexpected("end of input")
	}
	return cond, val, nil
}

// expression parses by precedence climbing. ^ is right-associative;
// every other binary operator is left-associative.
func (p *parser) expression(minPrec int) (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			return left, nil
		}
		op := Op(t.text)
		prec := op.precedence()
		if prec == 0 || prec < minPrec {
			return left, nil
		}
		p.next()

		nextMin := prec + 1
		if op == OpPow {
			nextMin = prec
		}
		right, err := p.expression(nextMin)
		if err != nil {
			return nil, err
		}
		bin := &Binary{Op: op, L: left, R: right, At: t.pos}
		if op == OpMatch {
			if lit, ok := right.(*Literal); ok {
				if pat, ok := lit.Value.(ir.IRString); ok {
					re, err := regexp.Compile(string(pat))
					if err != nil {
						return nil, &ParseError{Kind: ErrInvalidPattern, Pos: lit.At, Message: err.Error()}
					}
					bin.pattern = re
				}
			}
		}
		left = bin
	}
}

func (p *parser) unary() (Expr, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "!") {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: Op(t.text), X: x, At: t.pos}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokInt:
		p.next()
		return &Literal{Value: ir.IRInt(t.i), At: t.pos}, nil
	case tokFloat:
		p.next()
		return &Literal{Value: ir.IRFloat(t.f), At: t.pos}, nil
	case tokString:
		p.next()
		return &Literal{Value: ir.IRString(t.text), At: t.pos}, nil
	case tokTrue, tokFalse:
		p.next()
		return &Literal{Value: ir.IRBool(t.kind == tokTrue), At: t.pos}, nil
	case tokNull:
		p.next()
		return &Literal{Value: ir.IRNull{}, At: t.pos}, nil
	case tokLParen:
		p.next()
		e, err := p.expression(1)
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.unexpected("')'")
		}
		p.next()
		return e, nil
	case tokIdent:
		p.next()
		var fields []string
		for p.peek().kind == tokDot {
			p.next()
			f := p.peek()
			if f.kind != tokIdent {
				return nil, p.unexpected("field name")
			}
			p.next()
			fields = append(fields, f.text)
		}
		if len(fields) == 0 || (len(fields) == 1 && fields[0] == "present") {
			return &Presence{Component: t.text, At: t.pos}, nil
		}
		return &Ref{Component: t.text, Field: fields, At: t.pos}, nil
	}
	return nil, p.unexpected("expression")
}
