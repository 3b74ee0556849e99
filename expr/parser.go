// Package expr implements the restricted formula language used by payroll
// rule sets: a compile-then-evaluate pipeline over a fixed whitelisted
// grammar. Formulas arrive as untrusted configuration text; Compile rejects
// anything outside the grammar so evaluation never touches arbitrary code.
//
// The grammar covers numeric/boolean/string literals, arithmetic
// (+ - * / // % **), comparisons (== != > >= < <=), short-circuiting
// and/or/not, the functions abs ceil floor round sqrt min max, bare
// identifier references and flags.<name> references. Nothing else parses.
package expr

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// funcArity maps whitelisted function names to their minimum and maximum
// argument counts. max < 0 means variadic.
var funcArity = map[string]struct{ min, max int }{
	"abs":   {1, 1},
	"ceil":  {1, 1},
	"floor": {1, 1},
	"round": {1, 2},
	"sqrt":  {1, 1},
	"min":   {1, -1},
	"max":   {1, -1},
}

// Compiled is an immutable, reusable expression tree. A Compiled value is
// safe for concurrent evaluation against different environments.
type Compiled struct {
	src  string
	root Node
}

// Compile parses src under the safe grammar. The same input always yields
// the same tree, so compiled expressions may be cached and shared.
func Compile(src string) (*Compiled, error) {
	toks, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %q after expression", p.peek().text)
	}
	return &Compiled{src: src, root: root}, nil
}

// Source returns the original formula text.
func (c *Compiled) Source() string { return c.src }

// Identifiers returns the sorted set of bare identifiers referenced by the
// expression. Used by prepare-time reference-order validation.
func (c *Compiled) Identifiers() []string {
	set := map[string]struct{}{}
	walk(c.root, func(n Node) {
		if id, ok := n.(*Ident); ok {
			set[id.Name] = struct{}{}
		}
	})
	return sortedKeys(set)
}

// FlagRefs returns the sorted set of flags.<name> references.
func (c *Compiled) FlagRefs() []string {
	set := map[string]struct{}{}
	walk(c.root, func(n Node) {
		if f, ok := n.(*FlagRef); ok {
			set[f.Name] = struct{}{}
		}
	})
	return sortedKeys(set)
}

func walk(n Node, fn func(Node)) {
	fn(n)
	switch t := n.(type) {
	case *Unary:
		walk(t.X, fn)
	case *Binary:
		walk(t.X, fn)
		walk(t.Y, fn)
	case *Call:
		for _, a := range t.Args {
			walk(a, fn)
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) *CompileError {
	return &CompileError{Src: p.src, Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Node, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: OpOr, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (Node, error) {
	x, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		y, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: OpAnd, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNot, X: x}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[tokenKind]BinaryOp{
	tokEq: OpEq, tokNe: OpNe, tokGt: OpGt, tokGe: OpGe, tokLt: OpLt, tokLe: OpLe,
}

func (p *parser) parseComparison() (Node, error) {
	x, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOps[p.peek().kind]
	if !ok {
		return x, nil
	}
	p.next()
	y, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	if _, chained := comparisonOps[p.peek().kind]; chained {
		return nil, p.errorf("comparisons cannot be chained")
	}
	return &Binary{Op: op, X: x, Y: y}, nil
}

func (p *parser) parseArith() (Node, error) {
	x, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.peek().kind {
		case tokPlus:
			op = OpAdd
		case tokMinus:
			op = OpSub
		default:
			return x, nil
		}
		p.next()
		y, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: op, X: x, Y: y}
	}
}

func (p *parser) parseTerm() (Node, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.peek().kind {
		case tokStar:
			op = OpMul
		case tokSlash:
			op = OpDiv
		case tokSlashSlash:
			op = OpFloorDiv
		case tokPercent:
			op = OpMod
		default:
			return x, nil
		}
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: op, X: x, Y: y}
	}
}

func (p *parser) parseUnary() (Node, error) {
	switch p.peek().kind {
	case tokMinus:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNeg, X: x}, nil
	case tokPlus:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpPos, X: x}, nil
	}
	return p.parsePower()
}

// parsePower handles **, which is right-associative and binds tighter than
// unary minus on its left operand: -2**2 parses as -(2**2).
func (p *parser) parsePower() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokStarStar {
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: OpPow, X: x, Y: y}, nil
	}
	return x, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, &CompileError{Src: p.src, Pos: t.pos, Msg: fmt.Sprintf("invalid number %q", t.text)}
		}
		return &Literal{Val: Number(d)}, nil
	case tokString:
		p.next()
		return &Literal{Val: String(t.text)}, nil
	case tokTrue:
		p.next()
		return &Literal{Val: Bool(true)}, nil
	case tokFalse:
		p.next()
		return &Literal{Val: Bool(false)}, nil
	case tokLParen:
		p.next()
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("expected ')'")
		}
		p.next()
		return x, nil
	case tokIdent:
		p.next()
		return p.parseRef(t)
	default:
		return nil, &CompileError{Src: p.src, Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
}

// parseRef finishes an identifier: a function call, a flags.<name> reference,
// or a bare reference. Attribute access on anything other than flags is
// rejected here, at compile time.
func (p *parser) parseRef(ident token) (Node, error) {
	switch p.peek().kind {
	case tokLParen:
		arity, ok := funcArity[ident.text]
		if !ok {
			return nil, &CompileError{Src: p.src, Pos: ident.pos, Msg: fmt.Sprintf("unknown function %q", ident.text)}
		}
		p.next()
		var args []Node
		if p.peek().kind != tokRParen {
			for {
				a, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("expected ')' in call to %s", ident.text)
		}
		p.next()
		if len(args) < arity.min || (arity.max >= 0 && len(args) > arity.max) {
			return nil, &CompileError{Src: p.src, Pos: ident.pos, Msg: fmt.Sprintf("wrong number of arguments to %s: got %d", ident.text, len(args))}
		}
		return &Call{Fn: ident.text, Args: args}, nil
	case tokDot:
		if ident.text != "flags" {
			return nil, p.errorf("attribute access is only allowed on flags")
		}
		p.next()
		field := p.peek()
		if field.kind != tokIdent {
			return nil, p.errorf("expected flag name after 'flags.'")
		}
		p.next()
		if p.peek().kind == tokDot {
			return nil, p.errorf("flags.%s has no attributes", field.text)
		}
		return &FlagRef{Name: field.text}, nil
	default:
		if ident.text == "flags" {
			return nil, p.errorf("flags must be referenced as flags.<name>")
		}
		return &Ident{Name: ident.text}, nil
	}
}
