package preprocessor

import (
	"fmt"
	"strconv"
	"strings"
)

// value is the result of evaluating an #if expression. known is false when
// the result depends on a symbol the evaluator has no assignment for.
type value struct {
	n     int64
	known bool
}

func known(n int64) value { return value{n: n, known: true} }

var unknown = value{}

func boolValue(b bool) value {
	if b {
		return known(1)
	}
	return known(0)
}

// scope answers the two questions an expression can ask about a name.
type scope interface {
	defined(name string) value
	ident(name string) value
}

type exprToken struct {
	kind byte // 'n' number, 'i' identifier, 'o' operator
	text string
}

func tokenizeExpr(s string) ([]exprToken, error) {
	var toks []exprToken
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case isIdentStart(ch):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			toks = append(toks, exprToken{'i', s[i:j]})
			i = j
		case ch >= '0' && ch <= '9':
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			toks = append(toks, exprToken{'n', s[i:j]})
			i = j
		default:
			if i+1 < len(s) {
				switch two := s[i : i+2]; two {
				case "&&", "||", "==", "!=", "<=", ">=":
					toks = append(toks, exprToken{'o', two})
					i += 2
					continue
				}
			}
			if strings.IndexByte("()!<>+-*/%", ch) < 0 {
				return nil, fmt.Errorf("unexpected %q in expression", ch)
			}
			toks = append(toks, exprToken{'o', string(ch)})
			i++
		}
	}
	return toks, nil
}

func parseNumber(s string) (int64, error) {
	s = strings.TrimRight(s, "uUlL")
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return n, nil
}

type exprParser struct {
	toks  []exprToken
	pos   int
	scope scope
}

// evalExpr evaluates a preprocessor expression. Logical operators short
// circuit over unknown operands, so "0 && X" is known even when X is not.
func evalExpr(expr string, sc scope) (value, error) {
	toks, err := tokenizeExpr(stripComments(expr))
	if err != nil {
		return unknown, err
	}
	if len(toks) == 0 {
		return unknown, fmt.Errorf("empty expression")
	}
	p := &exprParser{toks: toks, scope: sc}
	v, err := p.or()
	if err != nil {
		return unknown, err
	}
	if p.pos != len(p.toks) {
		return unknown, fmt.Errorf("unexpected %q in expression", p.toks[p.pos].text)
	}
	return v, nil
}

func (p *exprParser) peek(op string) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].kind == 'o' && p.toks[p.pos].text == op
}

func (p *exprParser) or() (value, error) {
	l, err := p.and()
	if err != nil {
		return unknown, err
	}
	for p.peek("||") {
		p.pos++
		r, err := p.and()
		if err != nil {
			return unknown, err
		}
		switch {
		case l.known && l.n != 0, r.known && r.n != 0:
			l = known(1)
		case l.known && r.known:
			l = known(0)
		default:
			l = unknown
		}
	}
	return l, nil
}

func (p *exprParser) and() (value, error) {
	l, err := p.compare()
	if err != nil {
		return unknown, err
	}
	for p.peek("&&") {
		p.pos++
		r, err := p.compare()
		if err != nil {
			return unknown, err
		}
		switch {
		case l.known && l.n == 0, r.known && r.n == 0:
			l = known(0)
		case l.known && r.known:
			l = known(1)
		default:
			l = unknown
		}
	}
	return l, nil
}

func (p *exprParser) compare() (value, error) {
	l, err := p.additive()
	if err != nil {
		return unknown, err
	}
	for {
		var op string
		for _, cand := range []string{"==", "!=", "<=", ">=", "<", ">"} {
			if p.peek(cand) {
				op = cand
				break
			}
		}
		if op == "" {
			return l, nil
		}
		p.pos++
		r, err := p.additive()
		if err != nil {
			return unknown, err
		}
		if !l.known || !r.known {
			l = unknown
			continue
		}
		switch op {
		case "==":
			l = boolValue(l.n == r.n)
		case "!=":
			l = boolValue(l.n != r.n)
		case "<=":
			l = boolValue(l.n <= r.n)
		case ">=":
			l = boolValue(l.n >= r.n)
		case "<":
			l = boolValue(l.n < r.n)
		case ">":
			l = boolValue(l.n > r.n)
		}
	}
}

func (p *exprParser) additive() (value, error) {
	l, err := p.multiplicative()
	if err != nil {
		return unknown, err
	}
	for p.peek("+") || p.peek("-") {
		op := p.toks[p.pos].text
		p.pos++
		r, err := p.multiplicative()
		if err != nil {
			return unknown, err
		}
		if !l.known || !r.known {
			l = unknown
			continue
		}
		if op == "+" {
			l = known(l.n + r.n)
		} else {
			l = known(l.n - r.n)
		}
	}
	return l, nil
}

func (p *exprParser) multiplicative() (value, error) {
	l, err := p.unary()
	if err != nil {
		return unknown, err
	}
	for p.peek("*") || p.peek("/") || p.peek("%") {
		op := p.toks[p.pos].text
		p.pos++
		r, err := p.unary()
		if err != nil {
			return unknown, err
		}
		if !l.known || !r.known {
			l = unknown
			continue
		}
		switch op {
		case "*":
			l = known(l.n * r.n)
		default:
			if r.n == 0 {
				return unknown, fmt.Errorf("division by zero in expression")
			}
			if op == "/" {
				l = known(l.n / r.n)
			} else {
				l = known(l.n % r.n)
			}
		}
	}
	return l, nil
}

func (p *exprParser) unary() (value, error) {
	switch {
	case p.peek("!"):
		p.pos++
		v, err := p.unary()
		if err != nil || !v.known {
			return unknown, err
		}
		return boolValue(v.n == 0), nil
	case p.peek("-"):
		p.pos++
		v, err := p.unary()
		if err != nil || !v.known {
			return unknown, err
		}
		return known(-v.n), nil
	case p.peek("+"):
		p.pos++
		return p.unary()
	}
	return p.primary()
}

func (p *exprParser) primary() (value, error) {
	if p.pos >= len(p.toks) {
		return unknown, fmt.Errorf("unexpected end of expression")
	}
	tok := p.toks[p.pos]
	p.pos++
	switch tok.kind {
	case 'n':
		n, err := parseNumber(tok.text)
		if err != nil {
			return unknown, err
		}
		return known(n), nil
	case 'i':
		if tok.text != "defined" {
			return p.scope.ident(tok.text), nil
		}
		paren := p.peek("(")
		if paren {
			p.pos++
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != 'i' {
			return unknown, fmt.Errorf("defined without identifier")
		}
		name := p.toks[p.pos].text
		p.pos++
		if paren {
			if !p.peek(")") {
				return unknown, fmt.Errorf("missing ) after defined(%s", name)
			}
			p.pos++
		}
		return p.scope.defined(name), nil
	}
	if tok.text == "(" {
		v, err := p.or()
		if err != nil {
			return unknown, err
		}
		if !p.peek(")") {
			return unknown, fmt.Errorf("missing ) in expression")
		}
		p.pos++
		return v, nil
	}
	return unknown, fmt.Errorf("unexpected %q in expression", tok.text)
}

// exprIdents lists the identifiers an expression depends on, "defined"
// excluded.
func exprIdents(expr string) []string {
	toks, err := tokenizeExpr(stripComments(expr))
	if err != nil {
		return nil
	}
	var out []string
	for _, t := range toks {
		if t.kind == 'i' && t.text != "defined" {
			out = append(out, t.text)
		}
	}
	return out
}
