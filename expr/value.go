package expr

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind identifies the runtime type of a Value.
type Kind int

const (
	KindNumber Kind = iota
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is the result of evaluating an expression: an exact decimal number,
// a boolean, or a string. The zero Value is the number 0.
type Value struct {
	kind Kind
	num  decimal.Decimal
	b    bool
	s    string
}

// Number wraps a decimal as a Value.
func Number(d decimal.Decimal) Value {
	return Value{kind: KindNumber, num: d}
}

// Bool wraps a boolean as a Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// String wraps a string as a Value.
func String(s string) Value {
	return Value{kind: KindString, s: s}
}

// FromGo converts a Go value into a Value. Supported inputs are booleans,
// the usual numeric types (including json.Number-style strings handled by
// the caller), and strings.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case bool:
		return Bool(val), nil
	case int:
		return Number(decimal.NewFromInt(int64(val))), nil
	case int32:
		return Number(decimal.NewFromInt(int64(val))), nil
	case int64:
		return Number(decimal.NewFromInt(val)), nil
	case float64:
		return Number(decimal.NewFromFloat(val)), nil
	case float32:
		return Number(decimal.NewFromFloat32(val)), nil
	case decimal.Decimal:
		return Number(val), nil
	case string:
		return String(val), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func (v Value) Kind() Kind { return v.kind }

// Num returns the numeric payload. Only meaningful when Kind is KindNumber.
func (v Value) Num() decimal.Decimal { return v.num }

// Boolean returns the boolean payload. Only meaningful when Kind is KindBool.
func (v Value) Boolean() bool { return v.b }

// Str returns the string payload. Only meaningful when Kind is KindString.
func (v Value) Str() string { return v.s }

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return v.num.String()
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return v.s
	}
}
