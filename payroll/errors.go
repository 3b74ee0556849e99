package payroll

import "fmt"

// StructuralError reports a rule set that is malformed independently of any
// request data: duplicate ids, missing type-specific fields, invalid
// enum values, or a formula referencing a rule id that does not appear
// strictly earlier in declared order. It is raised by Prepare, never by
// Calculate.
type StructuralError struct {
	RuleID string
	Msg    string
}

func (e *StructuralError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("invalid rule set: %s", e.Msg)
	}
	return fmt.Sprintf("invalid rule %q: %s", e.RuleID, e.Msg)
}

func structuralErrorf(ruleID, format string, args ...any) *StructuralError {
	return &StructuralError{RuleID: ruleID, Msg: fmt.Sprintf(format, args...)}
}

// CompileError reports a formula that the safe grammar rejects, attributed
// to the rule and field it came from. Raised by Prepare.
type CompileError struct {
	RuleID string
	Field  string // "condition", "rate", "base" or "amount"
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rule %q: cannot compile %s: %v", e.RuleID, e.Field, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// EvalError reports a calculation that failed while evaluating a rule's
// condition or amount. The whole calculation is aborted; no partial
// breakdown is returned.
type EvalError struct {
	RuleID string
	Label  string
	Field  string
	Err    error
}

func (e *EvalError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("rule %q (%s): %s: %v", e.RuleID, e.Label, e.Field, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

func evalError(r *compiledRule, field string, err error) *EvalError {
	return &EvalError{RuleID: r.def.ID, Label: r.def.Label, Field: field, Err: err}
}
