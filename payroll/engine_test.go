package payroll

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func simpleRuleSet() RuleSet {
	return RuleSet{
		Meta: Meta{Country: "HU", Year: 2024},
		Variables: map[string]decimal.Decimal{
			"SZJA_RATE": dec("0.15"),
		},
		Rules: []RuleDefinition{
			{ID: "szja", Label: "Personal income tax", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "SZJA_RATE"},
			{ID: "szocho", Label: "Social contribution tax", Type: RuleTypePercentage, Direction: DirectionEmployer, Rate: "0.13"},
		},
	}
}

func TestPrepareCompilesRuleSet(t *testing.T) {
	engine, err := Prepare(simpleRuleSet())
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	if engine == nil {
		t.Fatal("Prepare() should return non-nil engine")
	}
	if got := engine.Meta().Country; got != "HU" {
		t.Errorf("Meta().Country = %q, want HU", got)
	}
	if got := len(engine.Rules()); got != 2 {
		t.Errorf("len(Rules()) = %d, want 2", got)
	}
}

func TestPrepareStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		rules   []RuleDefinition
		wantMsg string
	}{
		{
			name: "duplicate rule id",
			rules: []RuleDefinition{
				{ID: "x", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "0.1"},
				{ID: "x", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "100"},
			},
			wantMsg: "duplicate rule id",
		},
		{
			name: "empty rule id",
			rules: []RuleDefinition{
				{ID: "", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "0.1"},
			},
			wantMsg: "has no id",
		},
		{
			name: "invalid direction",
			rules: []RuleDefinition{
				{ID: "x", Type: RuleTypePercentage, Direction: "sideways", Rate: "0.1"},
			},
			wantMsg: "invalid direction",
		},
		{
			name: "unknown rule type",
			rules: []RuleDefinition{
				{ID: "x", Type: "multiplier", Direction: DirectionEmployee, Rate: "0.1"},
			},
			wantMsg: "unknown rule type",
		},
		{
			name: "percentage rule without rate",
			rules: []RuleDefinition{
				{ID: "x", Type: RuleTypePercentage, Direction: DirectionEmployee},
			},
			wantMsg: "missing rate",
		},
		{
			name: "percentage rule with amount",
			rules: []RuleDefinition{
				{ID: "x", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "0.1", Amount: "100"},
			},
			wantMsg: "cannot have an amount",
		},
		{
			name: "credit rule without amount",
			rules: []RuleDefinition{
				{ID: "x", Type: RuleTypeCredit, Direction: DirectionEmployee},
			},
			wantMsg: "missing amount",
		},
		{
			name: "credit rule with rate",
			rules: []RuleDefinition{
				{ID: "x", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "100", Rate: "0.1"},
			},
			wantMsg: "cannot have rate or base",
		},
		{
			name: "forward reference",
			rules: []RuleDefinition{
				{ID: "a", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "b * 2"},
				{ID: "b", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "100"},
			},
			wantMsg: "declared later",
		},
		{
			name: "self reference",
			rules: []RuleDefinition{
				{ID: "a", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "a + 1"},
			},
			wantMsg: "references the rule itself",
		},
		{
			name: "forward reference in condition",
			rules: []RuleDefinition{
				{ID: "a", Type: RuleTypeCredit, Direction: DirectionEmployee, Condition: "b > 0", Amount: "1"},
				{ID: "b", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "100"},
			},
			wantMsg: "declared later",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(RuleSet{Rules: tt.rules})
			if err == nil {
				t.Fatal("Prepare() should fail")
			}
			var se *StructuralError
			if !errors.As(err, &se) {
				t.Fatalf("Prepare() error = %T, want *StructuralError", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestPrepareCompileError(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "bad", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "import os"},
		},
	}

	_, err := Prepare(rs)
	if err == nil {
		t.Fatal("Prepare() should reject an uncompilable formula")
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Prepare() error = %T, want *CompileError", err)
	}
	if ce.RuleID != "bad" || ce.Field != "amount" {
		t.Errorf("CompileError identifies rule %q field %q, want bad/amount", ce.RuleID, ce.Field)
	}
}

func TestPrepareRejectsWholeSetOnOneBadRule(t *testing.T) {
	rs := simpleRuleSet()
	rs.Rules = append(rs.Rules, RuleDefinition{
		ID: "broken", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "0.1 +",
	})

	engine, err := Prepare(rs)
	if err == nil {
		t.Fatal("Prepare() should fail when any rule is broken")
	}
	if engine != nil {
		t.Error("Prepare() should not return a partial engine")
	}
}

func TestCalculateBasicPercentages(t *testing.T) {
	engine, err := Prepare(simpleRuleSet())
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	res, err := engine.Calculate(dec("500000"), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	szja, ok := res.Breakdown.Get("szja")
	if !ok {
		t.Fatal("breakdown is missing szja")
	}
	if !szja.Amount.Equal(dec("-75000")) {
		t.Errorf("szja amount = %s, want -75000", szja.Amount)
	}

	szocho, ok := res.Breakdown.Get("szocho")
	if !ok {
		t.Fatal("breakdown is missing szocho")
	}
	if !szocho.Amount.Equal(dec("65000")) {
		t.Errorf("szocho amount = %s, want 65000", szocho.Amount)
	}

	if !res.Net.Equal(dec("425000")) {
		t.Errorf("net = %s, want 425000", res.Net)
	}
	if !res.SuperGross.Equal(dec("565000")) {
		t.Errorf("super gross = %s, want 565000", res.SuperGross)
	}
}

func TestCalculatePercentageBaseDefaultsToGross(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "defaulted", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "0.1"},
			{ID: "explicit", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "0.1", Base: "gross / 2"},
		},
	}
	engine, err := Prepare(rs)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	res, err := engine.Calculate(dec("1000"), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	defaulted, _ := res.Breakdown.Get("defaulted")
	if !defaulted.Amount.Equal(dec("-100")) {
		t.Errorf("defaulted amount = %s, want -100", defaulted.Amount)
	}
	explicit, _ := res.Breakdown.Get("explicit")
	if !explicit.Amount.Equal(dec("-50")) {
		t.Errorf("explicit amount = %s, want -50", explicit.Amount)
	}
}

func TestCalculateEmployeePercentageIsNegated(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "emp", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "0.2"},
			{ID: "er", Type: RuleTypePercentage, Direction: DirectionEmployer, Rate: "0.2"},
			{ID: "info", Type: RuleTypePercentage, Direction: DirectionNeutral, Rate: "0.2"},
		},
	}
	engine, err := Prepare(rs)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	res, err := engine.Calculate(dec("100"), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	for _, tc := range []struct {
		id   string
		want string
	}{
		{"emp", "-20"},
		{"er", "20"},
		{"info", "20"},
	} {
		r, _ := res.Breakdown.Get(tc.id)
		if !r.Amount.Equal(dec(tc.want)) {
			t.Errorf("%s amount = %s, want %s", tc.id, r.Amount, tc.want)
		}
	}

	// Neutral lands in the breakdown but moves neither aggregate.
	if !res.Net.Equal(dec("80")) {
		t.Errorf("net = %s, want 80", res.Net)
	}
	if !res.SuperGross.Equal(dec("120")) {
		t.Errorf("super gross = %s, want 120", res.SuperGross)
	}
}

func TestCalculateCreditKeepsComputedSign(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "bonus", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "5000"},
			{ID: "clawback", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "-2000"},
		},
	}
	engine, err := Prepare(rs)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	res, err := engine.Calculate(dec("100000"), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if !res.Net.Equal(dec("103000")) {
		t.Errorf("net = %s, want 103000", res.Net)
	}
}

func TestCalculateBackwardReference(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "tax", Type: RuleTypePercentage, Direction: DirectionEmployee, Rate: "0.15"},
			{ID: "rebate", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "abs(tax) * 0.1"},
		},
	}
	engine, err := Prepare(rs)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	res, err := engine.Calculate(dec("1000"), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	// tax resolves to its stored amount, -150, so the rebate sees 150.
	rebate, _ := res.Breakdown.Get("rebate")
	if !rebate.Amount.Equal(dec("15")) {
		t.Errorf("rebate amount = %s, want 15", rebate.Amount)
	}
}

func TestCalculateConditionSkipsRule(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "credit", Type: RuleTypeCredit, Direction: DirectionEmployee, Condition: "flags.eligible", Amount: "1000"},
		},
	}
	engine, err := Prepare(rs)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	res, err := engine.Calculate(dec("100"), Flags{"eligible": false})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if _, ok := res.Breakdown.Get("credit"); ok {
		t.Error("skipped rule should not appear in the breakdown")
	}
	if !res.Net.Equal(dec("100")) {
		t.Errorf("net = %s, want 100", res.Net)
	}

	res, err = engine.Calculate(dec("100"), Flags{"eligible": true})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if _, ok := res.Breakdown.Get("credit"); !ok {
		t.Error("applied rule should appear in the breakdown")
	}
}

func TestCalculateReferenceToSkippedRuleFails(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "maybe", Type: RuleTypeCredit, Direction: DirectionEmployee, Condition: "flags.on", Amount: "100"},
			{ID: "follow", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "maybe * 2"},
		},
	}
	engine, err := Prepare(rs)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	// Skipped rule leaves its id unresolved for later formulas.
	_, err = engine.Calculate(dec("100"), Flags{"on": false})
	if err == nil {
		t.Fatal("Calculate() should fail when referencing a skipped rule")
	}
	var ee *EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("Calculate() error = %T, want *EvalError", err)
	}
	if ee.RuleID != "follow" {
		t.Errorf("EvalError identifies rule %q, want follow", ee.RuleID)
	}

	res, err := engine.Calculate(dec("100"), Flags{"on": true})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	follow, _ := res.Breakdown.Get("follow")
	if !follow.Amount.Equal(dec("200")) {
		t.Errorf("follow amount = %s, want 200", follow.Amount)
	}
}

func TestCalculateZeroAmountStaysInBreakdown(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "nothing", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "0"},
		},
	}
	engine, err := Prepare(rs)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	res, err := engine.Calculate(dec("100"), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	r, ok := res.Breakdown.Get("nothing")
	if !ok {
		t.Fatal("zero-amount rule should still appear in the breakdown")
	}
	if !r.Amount.IsZero() {
		t.Errorf("amount = %s, want 0", r.Amount)
	}
}

func TestCalculateEvalErrors(t *testing.T) {
	tests := []struct {
		name     string
		rules    []RuleDefinition
		flags    Flags
		wantRule string
		wantMsg  string
	}{
		{
			name: "division by zero names the rule",
			rules: []RuleDefinition{
				{ID: "per_child", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "10000 / flags.children"},
			},
			flags:    Flags{"children": 0},
			wantRule: "per_child",
			wantMsg:  "division by zero",
		},
		{
			name: "missing required flag",
			rules: []RuleDefinition{
				{ID: "gated", Type: RuleTypeCredit, Direction: DirectionEmployee, Condition: "flags.under25", Amount: "1"},
			},
			flags:    Flags{},
			wantRule: "gated",
			wantMsg:  "unknown flag",
		},
		{
			name: "unresolved identifier",
			rules: []RuleDefinition{
				{ID: "lonely", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "NOT_A_VARIABLE"},
			},
			wantRule: "lonely",
			wantMsg:  "unresolved reference",
		},
		{
			name: "non-boolean condition",
			rules: []RuleDefinition{
				{ID: "odd", Type: RuleTypeCredit, Direction: DirectionEmployee, Condition: "1 + 1", Amount: "1"},
			},
			wantRule: "odd",
			wantMsg:  "boolean",
		},
		{
			name: "non-numeric amount",
			rules: []RuleDefinition{
				{ID: "odd", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "1 > 0"},
			},
			wantRule: "odd",
			wantMsg:  "number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := Prepare(RuleSet{Rules: tt.rules})
			if err != nil {
				t.Fatalf("Prepare() failed: %v", err)
			}

			res, err := engine.Calculate(dec("100000"), tt.flags)
			if err == nil {
				t.Fatal("Calculate() should fail")
			}
			if res != nil {
				t.Error("Calculate() should not return a partial result")
			}
			var ee *EvalError
			if !errors.As(err, &ee) {
				t.Fatalf("Calculate() error = %T, want *EvalError", err)
			}
			if ee.RuleID != tt.wantRule {
				t.Errorf("EvalError identifies rule %q, want %q", ee.RuleID, tt.wantRule)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCalculateUnknownFlagsIgnored(t *testing.T) {
	engine, err := Prepare(simpleRuleSet())
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	_, err = engine.Calculate(dec("500000"), Flags{"never_referenced": true, "also_unused": 42})
	if err != nil {
		t.Fatalf("Calculate() should ignore flags no formula references: %v", err)
	}
}

func TestRequiredFlags(t *testing.T) {
	rs := RuleSet{
		Rules: []RuleDefinition{
			{ID: "a", Type: RuleTypeCredit, Direction: DirectionEmployee, Condition: "flags.under25", Amount: "1"},
			{ID: "b", Type: RuleTypeCredit, Direction: DirectionEmployee, Condition: "flags.entrant and flags.months_on_job <= 12", Amount: "1"},
			{ID: "c", Type: RuleTypeCredit, Direction: DirectionEmployee, Amount: "min(flags.months_on_job, 12)"},
		},
	}
	engine, err := Prepare(rs)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	got := engine.RequiredFlags()
	want := []string{"entrant", "months_on_job", "under25"}
	if len(got) != len(want) {
		t.Fatalf("RequiredFlags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RequiredFlags() = %v, want %v", got, want)
		}
	}
}

func TestCalculateConcurrent(t *testing.T) {
	engine, err := Prepare(simpleRuleSet())
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}

	const goroutines = 50
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Calculate(dec("500000"), nil)
			if err != nil {
				errs <- err
				return
			}
			if !res.Net.Equal(dec("425000")) {
				errs <- errors.New("wrong net: " + res.Net.String())
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Calculate(): %v", err)
	}
}
