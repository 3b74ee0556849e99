package expr

import (
	"math"

	"github.com/shopspring/decimal"
)

// powPrecision bounds the number of fractional digits kept by ** and by
// non-terminating divisions.
const powPrecision = 16

// Env resolves references for one evaluation. Resolve handles bare
// identifiers (prior rule amounts, variables, gross); Flag handles
// flags.<name> references.
type Env interface {
	Resolve(name string) (Value, bool)
	Flag(name string) (Value, bool)
}

// Eval walks the compiled tree against env. It has no side effects and is
// safe to invoke repeatedly and concurrently on the same tree with
// different environments.
func (c *Compiled) Eval(env Env) (Value, error) {
	return eval(c.root, env)
}

func eval(n Node, env Env) (Value, error) {
	switch t := n.(type) {
	case *Literal:
		return t.Val, nil
	case *Ident:
		v, ok := env.Resolve(t.Name)
		if !ok {
			return Value{}, evalErrorf("unresolved reference %q", t.Name)
		}
		return v, nil
	case *FlagRef:
		v, ok := env.Flag(t.Name)
		if !ok {
			return Value{}, evalErrorf("unknown flag %q", t.Name)
		}
		return v, nil
	case *Unary:
		return evalUnary(t, env)
	case *Binary:
		return evalBinary(t, env)
	case *Call:
		return evalCall(t, env)
	default:
		return Value{}, evalErrorf("unsupported node %T", n)
	}
}

func evalUnary(u *Unary, env Env) (Value, error) {
	x, err := eval(u.X, env)
	if err != nil {
		return Value{}, err
	}
	switch u.Op {
	case OpNeg:
		if x.Kind() != KindNumber {
			return Value{}, evalErrorf("operator - requires a number, got %s", x.Kind())
		}
		return Number(x.Num().Neg()), nil
	case OpPos:
		if x.Kind() != KindNumber {
			return Value{}, evalErrorf("operator + requires a number, got %s", x.Kind())
		}
		return x, nil
	case OpNot:
		if x.Kind() != KindBool {
			return Value{}, evalErrorf("operator not requires a boolean, got %s", x.Kind())
		}
		return Bool(!x.Boolean()), nil
	}
	return Value{}, evalErrorf("unsupported unary operator")
}

func evalBinary(b *Binary, env Env) (Value, error) {
	// and/or short-circuit: the right operand is only evaluated when needed.
	if b.Op == OpAnd || b.Op == OpOr {
		x, err := eval(b.X, env)
		if err != nil {
			return Value{}, err
		}
		if x.Kind() != KindBool {
			return Value{}, evalErrorf("operator %s requires booleans, got %s", b.Op, x.Kind())
		}
		if b.Op == OpAnd && !x.Boolean() {
			return Bool(false), nil
		}
		if b.Op == OpOr && x.Boolean() {
			return Bool(true), nil
		}
		y, err := eval(b.Y, env)
		if err != nil {
			return Value{}, err
		}
		if y.Kind() != KindBool {
			return Value{}, evalErrorf("operator %s requires booleans, got %s", b.Op, y.Kind())
		}
		return y, nil
	}

	x, err := eval(b.X, env)
	if err != nil {
		return Value{}, err
	}
	y, err := eval(b.Y, env)
	if err != nil {
		return Value{}, err
	}

	switch b.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpFloorDiv, OpMod, OpPow:
		if x.Kind() != KindNumber || y.Kind() != KindNumber {
			return Value{}, evalErrorf("operator %s requires numbers, got %s and %s", b.Op, x.Kind(), y.Kind())
		}
		return evalArith(b.Op, x.Num(), y.Num())
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		return evalCompare(b.Op, x, y)
	}
	return Value{}, evalErrorf("unsupported operator %s", b.Op)
}

func evalArith(op BinaryOp, x, y decimal.Decimal) (Value, error) {
	switch op {
	case OpAdd:
		return Number(x.Add(y)), nil
	case OpSub:
		return Number(x.Sub(y)), nil
	case OpMul:
		return Number(x.Mul(y)), nil
	case OpDiv:
		if y.IsZero() {
			return Value{}, evalErrorf("division by zero")
		}
		return Number(x.DivRound(y, powPrecision)), nil
	case OpFloorDiv:
		q, _, err := floorDivMod(x, y)
		if err != nil {
			return Value{}, err
		}
		return Number(q), nil
	case OpMod:
		_, r, err := floorDivMod(x, y)
		if err != nil {
			return Value{}, err
		}
		return Number(r), nil
	case OpPow:
		res, err := x.PowWithPrecision(y, powPrecision)
		if err != nil {
			return Value{}, evalErrorf("invalid exponentiation: %v", err)
		}
		return Number(res), nil
	}
	return Value{}, evalErrorf("unsupported arithmetic operator %s", op)
}

// floorDivMod implements floored division: the quotient rounds toward
// negative infinity and the remainder takes the divisor's sign, so
// x == y*q + r holds exactly.
func floorDivMod(x, y decimal.Decimal) (q, r decimal.Decimal, err error) {
	if y.IsZero() {
		return q, r, evalErrorf("division by zero")
	}
	q, r = x.QuoRem(y, 0)
	if !r.IsZero() && x.Sign()*y.Sign() < 0 {
		q = q.Sub(decimal.New(1, 0))
		r = r.Add(y)
	}
	return q, r, nil
}

func evalCompare(op BinaryOp, x, y Value) (Value, error) {
	if x.Kind() != y.Kind() {
		return Value{}, evalErrorf("cannot compare %s with %s", x.Kind(), y.Kind())
	}
	switch x.Kind() {
	case KindNumber:
		c := x.Num().Cmp(y.Num())
		return Bool(cmpHolds(op, c)), nil
	case KindString:
		c := 0
		if x.Str() < y.Str() {
			c = -1
		} else if x.Str() > y.Str() {
			c = 1
		}
		return Bool(cmpHolds(op, c)), nil
	case KindBool:
		switch op {
		case OpEq:
			return Bool(x.Boolean() == y.Boolean()), nil
		case OpNe:
			return Bool(x.Boolean() != y.Boolean()), nil
		default:
			return Value{}, evalErrorf("operator %s is not defined for booleans", op)
		}
	}
	return Value{}, evalErrorf("cannot compare values of kind %s", x.Kind())
}

func cmpHolds(op BinaryOp, c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	}
	return false
}

func evalCall(call *Call, env Env) (Value, error) {
	args := make([]Value, len(call.Args))
	for i, a := range call.Args {
		v, err := eval(a, env)
		if err != nil {
			return Value{}, err
		}
		if v.Kind() != KindNumber {
			return Value{}, evalErrorf("%s: argument %d must be a number, got %s", call.Fn, i+1, v.Kind())
		}
		args[i] = v
	}

	switch call.Fn {
	case "abs":
		return Number(args[0].Num().Abs()), nil
	case "ceil":
		return Number(args[0].Num().Ceil()), nil
	case "floor":
		return Number(args[0].Num().Floor()), nil
	case "round":
		// Banker's rounding; optional second argument gives the digit count.
		places := int32(0)
		if len(args) == 2 {
			n := args[1].Num()
			if !n.IsInteger() {
				return Value{}, evalErrorf("round: digit count must be an integer")
			}
			places = int32(n.IntPart())
		}
		return Number(args[0].Num().RoundBank(places)), nil
	case "sqrt":
		f, _ := args[0].Num().Float64()
		if f < 0 {
			return Value{}, evalErrorf("sqrt of negative number")
		}
		root := math.Sqrt(f)
		if math.IsInf(root, 0) || math.IsNaN(root) {
			return Value{}, evalErrorf("sqrt out of range")
		}
		return Number(decimal.NewFromFloat(root)), nil
	case "min":
		return Number(decimal.Min(args[0].Num(), nums(args[1:])...)), nil
	case "max":
		return Number(decimal.Max(args[0].Num(), nums(args[1:])...)), nil
	}
	return Value{}, evalErrorf("unknown function %q", call.Fn)
}

func nums(vals []Value) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = v.Num()
	}
	return out
}
