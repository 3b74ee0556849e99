// Package payroll computes an employee's net salary and an employer's total
// cost from a gross figure, driven by declarative rule sets. The package
// follows a prepare-once / calculate-many split: Prepare validates a rule
// set's structure and compiles every formula into an immutable Engine, and
// Calculate runs the compiled rules against one request. A prepared Engine
// is safe for arbitrarily many concurrent Calculate calls.
package payroll

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opspay/payroll/expr"
)

// grossRef is the built-in identifier every formula may reference.
const grossRef = "gross"

// formulaField pairs a formula source with the compiled slot it fills.
type formulaField struct {
	name string
	src  string
	dst  **expr.Compiled
}

type compiledRule struct {
	def       RuleDefinition
	condition *expr.Compiled // nil when the rule has no condition
	rate      *expr.Compiled // percentage rules
	base      *expr.Compiled // percentage rules
	amount    *expr.Compiled // credit rules
}

// Engine is a fully prepared, immutable rule set. It holds the compiled
// expression trees for every rule, so each calculation only evaluates.
type Engine struct {
	meta          Meta
	variables     map[string]decimal.Decimal
	rules         []compiledRule
	requiredFlags []string
}

// Prepare validates rs and compiles all of its formulas. Structural
// problems (duplicate ids, missing fields, references to rule ids that do
// not appear strictly earlier in declared order) and formulas outside the
// safe grammar abort preparation: a rule set that cannot be fully compiled
// is not usable for any calculation.
func Prepare(rs RuleSet) (*Engine, error) {
	idIndex := make(map[string]int, len(rs.Rules))
	for i, def := range rs.Rules {
		if def.ID == "" {
			return nil, structuralErrorf("", "rule %d has no id", i)
		}
		if _, dup := idIndex[def.ID]; dup {
			return nil, structuralErrorf(def.ID, "duplicate rule id")
		}
		idIndex[def.ID] = i
	}

	en := &Engine{
		meta:      rs.Meta,
		variables: make(map[string]decimal.Decimal, len(rs.Variables)),
		rules:     make([]compiledRule, 0, len(rs.Rules)),
	}
	for k, v := range rs.Variables {
		en.variables[k] = v
	}

	flagSet := map[string]struct{}{}
	for i, def := range rs.Rules {
		cr := compiledRule{def: def}
		if cr.def.Label == "" {
			cr.def.Label = def.ID
		}

		if !def.Direction.Valid() {
			return nil, structuralErrorf(def.ID, "invalid direction %q", def.Direction)
		}

		var fields []formulaField
		switch def.Type {
		case RuleTypePercentage:
			if def.Rate == "" {
				return nil, structuralErrorf(def.ID, "percentage rule is missing rate")
			}
			if def.Amount != "" {
				return nil, structuralErrorf(def.ID, "percentage rule cannot have an amount")
			}
			base := def.Base
			if base == "" {
				base = grossRef
			}
			fields = append(fields,
				formulaField{"rate", def.Rate, &cr.rate},
				formulaField{"base", base, &cr.base},
			)
		case RuleTypeCredit:
			if def.Amount == "" {
				return nil, structuralErrorf(def.ID, "credit rule is missing amount")
			}
			if def.Rate != "" || def.Base != "" {
				return nil, structuralErrorf(def.ID, "credit rule cannot have rate or base")
			}
			fields = append(fields, formulaField{"amount", def.Amount, &cr.amount})
		default:
			return nil, structuralErrorf(def.ID, "unknown rule type %q", def.Type)
		}
		if def.Condition != "" {
			fields = append(fields, formulaField{"condition", def.Condition, &cr.condition})
		}

		for _, f := range fields {
			compiled, err := expr.Compile(f.src)
			if err != nil {
				return nil, &CompileError{RuleID: def.ID, Field: f.name, Err: err}
			}
			// References may only point strictly backward in declared order.
			// This is a property of the rule list, not of request data, so
			// it is rejected here rather than at calculation time.
			for _, ident := range compiled.Identifiers() {
				if j, isRule := idIndex[ident]; isRule && j >= i {
					if j == i {
						return nil, structuralErrorf(def.ID, "%s references the rule itself", f.name)
					}
					return nil, structuralErrorf(def.ID, "%s references rule %q which is declared later", f.name, ident)
				}
			}
			for _, flag := range compiled.FlagRefs() {
				flagSet[flag] = struct{}{}
			}
			*f.dst = compiled
		}

		en.rules = append(en.rules, cr)
	}

	en.requiredFlags = make([]string, 0, len(flagSet))
	for f := range flagSet {
		en.requiredFlags = append(en.requiredFlags, f)
	}
	sort.Strings(en.requiredFlags)

	return en, nil
}

// Meta returns the rule set's metadata.
func (en *Engine) Meta() Meta { return en.meta }

// RequiredFlags returns the sorted set of flag names referenced anywhere in
// the rule set's formulas, discovered by walking the compiled trees.
func (en *Engine) RequiredFlags() []string {
	out := make([]string, len(en.requiredFlags))
	copy(out, en.requiredFlags)
	return out
}

// Rules returns the rule definitions in declared order.
func (en *Engine) Rules() []RuleDefinition {
	out := make([]RuleDefinition, len(en.rules))
	for i, r := range en.rules {
		out[i] = r.def
	}
	return out
}

// Calculate runs the rule set against one request. Rules execute in
// declared order; a false condition skips the rule entirely, and every
// computed amount becomes referencable by later rules under its rule id.
// Any evaluation failure aborts the whole calculation.
func (en *Engine) Calculate(gross decimal.Decimal, flags Flags) (*Result, error) {
	ctx, err := en.newContext(gross, flags)
	if err != nil {
		return nil, err
	}

	results := make(Breakdown, 0, len(en.rules))
	for i := range en.rules {
		r := &en.rules[i]

		if r.condition != nil {
			v, err := r.condition.Eval(ctx)
			if err != nil {
				return nil, evalError(r, "condition", err)
			}
			if v.Kind() != expr.KindBool {
				return nil, evalError(r, "condition", &expr.EvalError{
					Msg: "condition did not evaluate to a boolean",
				})
			}
			if !v.Boolean() {
				continue
			}
		}

		amount, err := en.ruleAmount(r, ctx)
		if err != nil {
			return nil, err
		}

		ctx.computed[r.def.ID] = amount
		results = append(results, RuleResult{
			ID:        r.def.ID,
			Label:     r.def.Label,
			Amount:    amount,
			Direction: r.def.Direction,
		})
	}

	return buildResult(gross, results), nil
}

func (en *Engine) ruleAmount(r *compiledRule, ctx *evalContext) (decimal.Decimal, error) {
	switch r.def.Type {
	case RuleTypePercentage:
		rate, err := evalNumber(r, "rate", r.rate, ctx)
		if err != nil {
			return decimal.Decimal{}, err
		}
		base, err := evalNumber(r, "base", r.base, ctx)
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw := rate.Mul(base)
		// Employee-direction percentages are deductions; employer and
		// neutral keep the raw sign.
		if r.def.Direction == DirectionEmployee {
			return raw.Neg(), nil
		}
		return raw, nil
	default: // RuleTypeCredit; Prepare rejected everything else
		return evalNumber(r, "amount", r.amount, ctx)
	}
}

func evalNumber(r *compiledRule, field string, c *expr.Compiled, ctx *evalContext) (decimal.Decimal, error) {
	v, err := c.Eval(ctx)
	if err != nil {
		return decimal.Decimal{}, evalError(r, field, err)
	}
	if v.Kind() != expr.KindNumber {
		return decimal.Decimal{}, evalError(r, field, &expr.EvalError{
			Msg: field + " did not evaluate to a number",
		})
	}
	return v.Num(), nil
}

// buildResult aggregates the per-rule amounts: employee-direction amounts
// move net away from gross, employer-direction amounts move the total
// employer cost, neutral amounts only appear in the breakdown. Plain
// addition, no rounding.
func buildResult(gross decimal.Decimal, results Breakdown) *Result {
	net := gross
	superGross := gross
	for _, r := range results {
		switch r.Direction {
		case DirectionEmployee:
			net = net.Add(r.Amount)
		case DirectionEmployer:
			superGross = superGross.Add(r.Amount)
		}
	}
	return &Result{
		Gross:      gross,
		Net:        net,
		SuperGross: superGross,
		Breakdown:  results,
	}
}

// evalContext is the per-request mutable state. It lives for exactly one
// Calculate call and is never shared across calls.
type evalContext struct {
	gross     decimal.Decimal
	variables map[string]decimal.Decimal
	flags     map[string]expr.Value
	computed  map[string]decimal.Decimal
}

// newContext normalizes the request flags. Only flags the rule set actually
// references are converted; unknown extra flags are ignored entirely.
func (en *Engine) newContext(gross decimal.Decimal, flags Flags) (*evalContext, error) {
	ctx := &evalContext{
		gross:     gross,
		variables: en.variables,
		flags:     make(map[string]expr.Value, len(en.requiredFlags)),
		computed:  make(map[string]decimal.Decimal, len(en.rules)),
	}
	for _, name := range en.requiredFlags {
		raw, ok := flags[name]
		if !ok {
			continue // the referencing formula will fail with an unknown-flag error
		}
		v, err := expr.FromGo(raw)
		if err != nil {
			return nil, &EvalError{RuleID: "", Label: "", Field: "flags." + name, Err: err}
		}
		ctx.flags[name] = v
	}
	return ctx, nil
}

// Resolve implements expr.Env. Precedence: already-computed rule amount,
// rule set variable, then gross.
func (c *evalContext) Resolve(name string) (expr.Value, bool) {
	if amt, ok := c.computed[name]; ok {
		return expr.Number(amt), true
	}
	if v, ok := c.variables[name]; ok {
		return expr.Number(v), true
	}
	if name == grossRef {
		return expr.Number(c.gross), true
	}
	return expr.Value{}, false
}

// Flag implements expr.Env.
func (c *evalContext) Flag(name string) (expr.Value, bool) {
	v, ok := c.flags[name]
	return v, ok
}
