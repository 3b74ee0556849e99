package expr

import "fmt"

// CompileError reports a formula that is not valid under the safe grammar.
// Compilation fails before any evaluation is attempted, so an unsafe or
// malformed formula never reaches the evaluator.
type CompileError struct {
	Src string // the offending source text
	Pos int    // byte offset into Src
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %q: %s (at offset %d)", e.Src, e.Msg, e.Pos)
}

// EvalError reports a failure while evaluating a compiled expression:
// an unresolved reference, an operand type mismatch, or division by zero.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

func evalErrorf(format string, args ...any) *EvalError {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}
