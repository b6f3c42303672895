package expr

import (
	"fmt"
	"strconv"
)

// Узлы синтаксического дерева.
type (
	node interface{ pos() int }

	literalNode struct {
		at    int
		value any
	}
	identNode struct {
		at   int
		name string
	}
	selectorNode struct {
		at    int
		x     node
		field string
	}
	indexNode struct {
		at    int
		x     node
		index node
	}
	callNode struct {
		at   int
		name string
		args []node
	}
	notNode struct {
		at int
		x  node
	}
	binaryNode struct {
		at   int
		op   tokenKind
		l, r node
	}
	condNode struct {
		at                 int
		cond, then, orElse node
	}
)

func (n *literalNode) pos() int  { return n.at }
func (n *identNode) pos() int    { return n.at }
func (n *selectorNode) pos() int { return n.at }
func (n *indexNode) pos() int    { return n.at }
func (n *callNode) pos() int     { return n.at }
func (n *notNode) pos() int      { return n.at }
func (n *binaryNode) pos() int   { return n.at }
func (n *condNode) pos() int     { return n.at }

type parser struct {
	toks  []token
	pos   int
	funcs map[string]struct{}
}

func parse(src string, funcs map[string]struct{}) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, funcs: funcs}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxError(tok.pos, "unexpected %s", describe(tok))
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.advance()
	if tok.kind != kind {
		return tok, syntaxError(tok.pos, "expected %s, got %s", kind, describe(tok))
	}
	return tok, nil
}

// expr := or ( '?' expr ':' expr )?
func (p *parser) parseExpr() (node, error) {
	cond, err := p.parseBinary(tokOr)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokQuestion {
		return cond, nil
	}
	at := p.advance().pos
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon); err != nil {
		return nil, err
	}
	orElse, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &condNode{at: at, cond: cond, then: then, orElse: orElse}, nil
}

// parseBinary разбирает левоассоциативные цепочки '||' и '&&'.
func (p *parser) parseBinary(op tokenKind) (node, error) {
	next := func() (node, error) {
		if op == tokOr {
			return p.parseBinary(tokAnd)
		}
		return p.parseNot()
	}
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == op {
		at := p.advance().pos
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{at: at, op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tokNot {
		at := p.advance().pos
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{at: at, x: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if k := p.peek().kind; k == tokEq || k == tokNeq {
		at := p.advance().pos
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return &binaryNode{at: at, op: k, l: left, r: right}, nil
	}
	return left, nil
}

func (p *parser) parsePostfix() (node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokDot:
			at := p.advance().pos
			name, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			x = &selectorNode{at: at, x: x, field: name.text}
		case tokLBracket:
			at := p.advance().pos
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBracket); err != nil {
				return nil, err
			}
			x = &indexNode{at: at, x: x, index: idx}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokInt:
		v, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, syntaxError(tok.pos, "bad integer %q", tok.text)
		}
		return &literalNode{at: tok.pos, value: v}, nil
	case tokFloat:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, syntaxError(tok.pos, "bad number %q", tok.text)
		}
		return &literalNode{at: tok.pos, value: v}, nil
	case tokString:
		return &literalNode{at: tok.pos, value: tok.text}, nil
	case tokLParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return &literalNode{at: tok.pos, value: true}, nil
		case "false":
			return &literalNode{at: tok.pos, value: false}, nil
		case "null", "nil":
			return &literalNode{at: tok.pos, value: nil}, nil
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		return &identNode{at: tok.pos, name: tok.text}, nil
	default:
		return nil, syntaxError(tok.pos, "unexpected %s", describe(tok))
	}
}

func (p *parser) parseCall(name token) (node, error) {
	if _, ok := p.funcs[name.text]; !ok {
		return nil, fmt.Errorf("%w %q at offset %d", ErrUnknownFunction, name.text, name.pos)
	}
	p.advance() // '('
	call := &callNode{at: name.pos, name: name.text}
	if p.peek().kind == tokRParen {
		p.advance()
		return call, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		tok := p.advance()
		switch tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return call, nil
		default:
			return nil, syntaxError(tok.pos, "expected ',' or ')', got %s", describe(tok))
		}
	}
}

func describe(tok token) string {
	if tok.kind == tokEOF {
		return tok.kind.String()
	}
	return strconv.Quote(tok.text)
}
