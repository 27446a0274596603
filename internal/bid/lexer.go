package bid

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokInt
	tokFloat
	tokOn
	tokBid
	tokTrue
	tokFalse
	tokNull
	tokOp
	tokDot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokInt, tokFloat:
		return "number"
	case tokOn:
		return "ON"
	case tokBid:
		return "BID"
	case tokTrue, tokFalse:
		return "boolean"
	case tokNull:
		return "null"
	case tokOp:
		return "operator"
	case tokDot:
		return "'.'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string // identifier, operator or decoded string literal
	i    int64
	f    float64
	pos  Position
}

func (t token) describe() string {
	switch t.kind {
	case tokIdent, tokOp:
		return strconv.Quote(t.text)
	case tokString:
		return "string " + strconv.Quote(t.text)
	}
	return t.kind.String()
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) peekByte(ahead int) byte {
	if l.off+ahead < len(l.src) {
		return l.src[l.off+ahead]
	}
	return 0
}

func (l *lexer) advance() byte {
	c := l.src[l.off]
	l.off++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) pos() Position {
	return Position{Line: l.line, Column: l.col}
}

func (l *lexer) skipSpace() {
	for l.off < len(l.src) {
		switch l.src[l.off] {
		case ' ', '\t', '\n', '\r':
			l.advance()
		default:
			return
		}
	}
}

// all tokenizes the whole input.
func (l *lexer) all() ([]token, error) {
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos()
	if l.off >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.peekByte(0)
	switch {
	case c == '"':
		return l.lexString(start)
	case isIdentStart(c):
		return l.lexIdent(start), nil
	case isDigit(c):
		return l.lexNumber(start)
	}

	two := ""
	if l.off+1 < len(l.src) {
		two = l.src[l.off : l.off+2]
	}
	switch two {
	case "==", "!=", "<=", ">=", "&&", "||", "~=":
		l.advance()
		l.advance()
		return token{kind: tokOp, text: two, pos: start}, nil
	}

	switch c {
	case '(':
		l.advance()
		return token{kind: tokLParen, pos: start}, nil
	case ')':
		l.advance()
		return token{kind: tokRParen, pos: start}, nil
	case '.':
		l.advance()
		return token{kind: tokDot, pos: start}, nil
	case '+', '-', '*', '/', '%', '^', '<', '>', '!':
		l.advance()
		return token{kind: tokOp, text: string(c), pos: start}, nil
	}

	return token{}, &ParseError{Kind: ErrInvalidCharacter, Pos: start, Message: "unexpected character " + strconv.QuoteRune(rune(c))}
}

func (l *lexer) lexString(start Position) (token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.off >= len(l.src) {
			return token{}, &ParseError{Kind: ErrUnterminatedString, Pos: start, Message: "unterminated string literal"}
		}
		c := l.advance()
		switch c {
		case '"':
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case '\\':
			if l.off >= len(l.src) {
				return token{}, &ParseError{Kind: ErrUnterminatedString, Pos: start, Message: "unterminated string literal"}
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			default:
				// Unknown escapes pass through so regex classes like \d survive.
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
		}
	}
}

func (l *lexer) lexIdent(start Position) token {
	begin := l.off
	for {
		for l.off < len(l.src) && isIdentPart(l.peekByte(0)) {
			l.advance()
		}
		// "::" continues a namespaced component name.
		if l.peekByte(0) == ':' && l.peekByte(1) == ':' && isIdentStart(l.peekByte(2)) {
			l.advance()
			l.advance()
			continue
		}
		break
	}
	text := l.src[begin:l.off]
	switch text {
	case "ON":
		return token{kind: tokOn, text: text, pos: start}
	case "BID":
		return token{kind: tokBid, text: text, pos: start}
	case "true":
		return token{kind: tokTrue, text: text, pos: start}
	case "false":
		return token{kind: tokFalse, text: text, pos: start}
	case "null":
		return token{kind: tokNull, text: text, pos: start}
	}
	return token{kind: tokIdent, text: text, pos: start}
}

func (l *lexer) lexNumber(start Position) (token, error) {
	begin := l.off
	for isDigit(l.peekByte(0)) {
		l.advance()
	}
	isFloat := false
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		isFloat = true
		l.advance()
		for isDigit(l.peekByte(0)) {
			l.advance()
		}
	}
	text := l.src[begin:l.off]
	if isIdentStart(l.peekByte(0)) {
		return token{}, &ParseError{Kind: ErrInvalidNumber, Pos: start, Message: "invalid number " + strconv.Quote(text+string(l.peekByte(0)))}
	}
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, &ParseError{Kind: ErrInvalidNumber, Pos: start, Message: "invalid number " + strconv.Quote(text)}
		}
		return token{kind: tokFloat, text: text, f: f, pos: start}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, &ParseError{Kind: ErrInvalidNumber, Pos: start, Message: "integer out of range " + strconv.Quote(text)}
	}
	return token{kind: tokInt, text: text, i: n, pos: start}, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
