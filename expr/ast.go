package expr

// Node is a node of a compiled expression tree. The set of implementations
// is closed: literal, identifier, flag reference, unary op, binary op and
// function call. Nothing else parses, so nothing else evaluates.
type Node interface {
	node()
}

// Literal is a number, boolean or string constant.
type Literal struct {
	Val Value
}

// Ident is a bare identifier, resolved at evaluation time against the
// environment (prior rule amount, variable, or gross).
type Ident struct {
	Name string
}

// FlagRef is a `flags.<name>` reference.
type FlagRef struct {
	Name string
}

// UnaryOp is the operator of a Unary node.
type UnaryOp int

const (
	OpNeg UnaryOp = iota // -x
	OpPos                // +x
	OpNot                // not x
)

// Unary applies a prefix operator to a single operand.
type Unary struct {
	Op UnaryOp
	X  Node
}

// BinaryOp is the operator of a Binary node.
type BinaryOp int

const (
	OpAdd BinaryOp = iota // +
	OpSub                 // -
	OpMul                 // *
	OpDiv                 // /
	OpFloorDiv            // //
	OpMod                 // %
	OpPow                 // **
	OpEq                  // ==
	OpNe                  // !=
	OpGt                  // >
	OpGe                  // >=
	OpLt                  // <
	OpLe                  // <=
	OpAnd                 // and
	OpOr                  // or
)

var binaryOpNames = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpFloorDiv: "//",
	OpMod: "%", OpPow: "**", OpEq: "==", OpNe: "!=", OpGt: ">",
	OpGe: ">=", OpLt: "<", OpLe: "<=", OpAnd: "and", OpOr: "or",
}

func (op BinaryOp) String() string { return binaryOpNames[op] }

// Binary applies an infix operator to two operands.
type Binary struct {
	Op   BinaryOp
	X, Y Node
}

// Call invokes one of the whitelisted functions.
type Call struct {
	Fn   string
	Args []Node
}

func (*Literal) node() {}
func (*Ident) node()   {}
func (*FlagRef) node() {}
func (*Unary) node()   {}
func (*Binary) node()  {}
func (*Call) node()    {}
