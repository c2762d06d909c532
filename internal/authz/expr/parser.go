package expr

import "fmt"

// Compile parses an expression source string into an evaluable tree.
func Compile(src string) (*Expr, error) {
	p := &parser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, p.errorf("unexpected %q after expression", p.cur.text)
	}

	return &Expr{src: src, root: root}, nil
}

// MustCompile compiles an expression and panics on error. It is meant
// for built-in formulas that are known to be valid.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// parser is a recursive descent parser over the lexer's token stream.
//
// Grammar:
//
//	or    := and ( "||" and )*
//	and   := cmp ( "&&" cmp )*
//	cmp   := unary ( ( "==" | "!=" | "in" ) unary )?
//	unary := "!" unary | primary
//	primary := "true" | "false" | STRING | IDENT [ "(" args ")" ] | "(" or ")"
type parser struct {
	lex *lexer
	cur token
}

// advance reads the next token into cur.
func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// errorf builds a ParseError at the current token.
func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Src: p.lex.src, Pos: p.cur.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseCmp() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	switch p.cur.kind {
	case tokEq, tokNeq:
		negate := p.cur.kind == tokNeq
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &eqNode{left: left, right: right, negate: negate}, nil
	case tokIn:
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &inNode{left: left, right: right}, nil
	default:
		return left, nil
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.cur.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.cur.kind {
	case tokTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &litNode{v: true}, nil

	case tokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &litNode{v: false}, nil

	case tokString:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &litNode{v: text}, nil

	case tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokLParen {
			return p.parseCall(name)
		}
		return &varNode{name: name}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, p.errorf("expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	default:
		return nil, p.errorf("unexpected %q", p.cur.text)
	}
}

// parseCall parses the argument list of a function call; the opening
// parenthesis is the current token.
func (p *parser) parseCall(name string) (node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []node
	if p.cur.kind != tokRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.cur.kind != tokRParen {
		return nil, p.errorf("expected ')' in call to %s", name)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	return &callNode{name: name, args: args}, nil
}
