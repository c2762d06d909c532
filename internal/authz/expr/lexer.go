package expr

import (
	"fmt"
	"strings"
)

// ParseError reports a compile-time syntax error with its byte offset
// into the source.
type ParseError struct {
	Src string
	Pos int
	Msg string
}

// Error returns the error message.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

// tokenKind enumerates lexical token kinds.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokTrue
	tokFalse
	tokIn
	tokAnd
	tokOr
	tokNot
	tokEq
	tokNeq
	tokLParen
	tokRParen
	tokComma
)

// token is a lexical token.
type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer splits an expression source string into tokens.
type lexer struct {
	src string
	pos int
}

// next returns the next token.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.src[l.pos]

	switch ch {
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case '&':
		if l.peekAt(1) == '&' {
			l.pos += 2
			return token{kind: tokAnd, text: "&&", pos: start}, nil
		}
		return token{}, &ParseError{Src: l.src, Pos: start, Msg: "expected '&&'"}
	case '|':
		if l.peekAt(1) == '|' {
			l.pos += 2
			return token{kind: tokOr, text: "||", pos: start}, nil
		}
		return token{}, &ParseError{Src: l.src, Pos: start, Msg: "expected '||'"}
	case '=':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokEq, text: "==", pos: start}, nil
		}
		return token{}, &ParseError{Src: l.src, Pos: start, Msg: "expected '=='"}
	case '!':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokNeq, text: "!=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokNot, text: "!", pos: start}, nil
	case '\'', '"':
		return l.lexString(ch)
	}

	if isIdentStart(ch) {
		return l.lexIdent(), nil
	}

	return token{}, &ParseError{Src: l.src, Pos: start, Msg: fmt.Sprintf("unexpected character %q", ch)}
}

// lexString lexes a single- or double-quoted string literal with
// backslash escapes for the quote character and the backslash itself.
func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++

	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch ch {
		case quote:
			l.pos++
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, &ParseError{Src: l.src, Pos: l.pos, Msg: "unterminated escape"}
			}
			l.pos++
			sb.WriteByte(l.src[l.pos])
			l.pos++
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}

	return token{}, &ParseError{Src: l.src, Pos: start, Msg: "unterminated string literal"}
}

// lexIdent lexes a dotted identifier or a keyword.
func (l *lexer) lexIdent() token {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]

	switch text {
	case "true":
		return token{kind: tokTrue, text: text, pos: start}
	case "false":
		return token{kind: tokFalse, text: text, pos: start}
	case "in":
		return token{kind: tokIn, text: text, pos: start}
	}
	return token{kind: tokIdent, text: text, pos: start}
}

// skipSpace advances past whitespace.
func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.pos++
		default:
			return
		}
	}
}

// peekAt returns the byte at an offset from the cursor, or 0 past EOF.
func (l *lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

// isIdentStart reports whether ch can begin an identifier.
func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// isIdentPart reports whether ch can continue a dotted identifier.
func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch == '.' || (ch >= '0' && ch <= '9')
}
