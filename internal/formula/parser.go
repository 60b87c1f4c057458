package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is a parsed formula ready to be evaluated against any number of rows.
type Expression struct {
	source string
	root   Node
}

// Parse compiles src. A leading "=" (spreadsheet style) is accepted and ignored.
func Parse(src string) (*Expression, error) {
	trimmed := strings.TrimSpace(src)
	trimmed = strings.TrimPrefix(trimmed, "=")
	if strings.TrimSpace(trimmed) == "" {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}

	if err := checkFunctions(root); err != nil {
		return nil, err
	}

	return &Expression{source: src, root: root}, nil
}

func (e *Expression) String() string {
	return e.source
}

// References lists the distinct column names the expression reads, in order of appearance.
func (e *Expression) References() []string {
	seen := map[string]bool{}
	var refs []string
	e.root.walk(func(n Node) {
		if ref, ok := n.(*refNode); ok && !seen[ref.name] {
			seen[ref.name] = true
			refs = append(refs, ref.name)
		}
	})
	return refs
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("=", "<>", "<", "<=", ">", ">=")
		if !ok {
			return left, nil
		}
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseConcat() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&"); !ok {
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&", left: left, right: right}
	}
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if op, ok := p.acceptOp("-", "+"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		value, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.text)}
		}
		return &literalNode{value: value}, nil
	case tokString:
		return &literalNode{value: tok.text}, nil
	case tokRef:
		return &refNode{name: tok.text}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		switch strings.ToUpper(tok.text) {
		case "TRUE":
			return &literalNode{value: true}, nil
		case "FALSE":
			return &literalNode{value: false}, nil
		}
		return &refNode{name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &SyntaxError{Pos: closing.pos, Msg: "missing closing parenthesis"}
		}
		return inner, nil
	case tokEOF:
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected end of expression"}
	default:
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}
}

func (p *parser) parseCall(name token) (Node, error) {
	p.next() // (
	call := &callNode{name: strings.ToUpper(name.text)}
	if p.peek().kind == tokRParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)

		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return call, nil
		default:
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("expected , or ) in call to %s", call.name)}
		}
	}
}

func checkFunctions(root Node) error {
	var err error
	root.walk(func(n Node) {
		call, ok := n.(*callNode)
		if !ok || err != nil {
			return
		}
		fn, known := functions[call.name]
		if !known {
			err = fmt.Errorf("%w: %s", ErrUnknownFunction, call.name)
			return
		}
		if len(call.args) < fn.minArgs || (fn.maxArgs >= 0 && len(call.args) > fn.maxArgs) {
			err = fmt.Errorf("%w: %s takes %s", ErrArgumentCount, call.name, fn.arity())
		}
	})
	return err
}
