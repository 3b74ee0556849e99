package expr

import (
	"strings"
	"testing"
)

func TestCompileAccepts(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{"Integer literal", `42`},
		{"Decimal literal", `0.185`},
		{"Scientific literal", `1e3`},
		{"Boolean literal", `true`},
		{"String literal", `"2025-01-01"`},
		{"Bare reference", `gross`},
		{"Variable reference", `MINIMUM_WAGE`},
		{"Flag reference", `flags.under25`},
		{"Arithmetic", `gross * 0.185 + 100`},
		{"Floor division", `gross // 12`},
		{"Modulo", `gross % 10`},
		{"Power", `2 ** 10`},
		{"Unary minus", `-round(gross * 0.13)`},
		{"Comparison", `flags.months_on_job <= 12`},
		{"Boolean logic", `flags.under25 and not flags.entrant or gross > 0`},
		{"Function call", `min(gross, MINIMUM_WAGE)`},
		{"Variadic min", `min(1, 2, 3, 4)`},
		{"Round with digits", `round(gross / 3, 2)`},
		{"Nested parens", `((gross - 100) * (0.15))`},
		{"Date comparison", `flags.date >= "2025-01-01"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compile(tc.src); err != nil {
				t.Errorf("Compile(%q) failed: %v", tc.src, err)
			}
		})
	}
}

func TestCompileRejects(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"Assignment", `x = 1`, "assignment"},
		{"Unknown function", `open("/etc/passwd")`, "unknown function"},
		{"Exec-style call", `eval(1)`, "unknown function"},
		{"Attribute on gross", `gross.value`, "attribute access"},
		{"Nested flag attribute", `flags.under25.x`, "no attributes"},
		{"Bare flags", `flags`, "flags.<name>"},
		{"Chained comparison", `1 < gross < 100`, "chained"},
		{"Unterminated string", `"abc`, "unterminated"},
		{"List literal", `[1, 2]`, "unexpected"},
		{"Dict literal", `{1: 2}`, "unexpected"},
		{"Trailing operator", `1 +`, "unexpected"},
		{"Empty input", ``, "unexpected"},
		{"Bang", `!flag`, "unexpected character"},
		{"Statement separator", `1; 2`, "unexpected"},
		{"Too many args to abs", `abs(1, 2)`, "wrong number of arguments"},
		{"No args to min", `min()`, "wrong number of arguments"},
		{"Lambda-ish", `lambda: 1`, "unexpected"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src)
			if err == nil {
				t.Fatalf("Compile(%q) should have failed", tc.src)
			}
			if _, ok := err.(*CompileError); !ok {
				t.Fatalf("Compile(%q) returned %T, want *CompileError", tc.src, err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("Compile(%q) error = %q, want it to mention %q", tc.src, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	src := `round(min(gross, MINIMUM_WAGE) * 0.13) + flags.bonus`

	a, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	b, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	if a.Source() != b.Source() {
		t.Error("Source() should round-trip the input")
	}

	gotIdents := a.Identifiers()
	wantIdents := []string{"MINIMUM_WAGE", "gross"}
	if len(gotIdents) != len(wantIdents) {
		t.Fatalf("Identifiers() = %v, want %v", gotIdents, wantIdents)
	}
	for i := range wantIdents {
		if gotIdents[i] != wantIdents[i] {
			t.Errorf("Identifiers()[%d] = %q, want %q", i, gotIdents[i], wantIdents[i])
		}
	}

	gotFlags := a.FlagRefs()
	if len(gotFlags) != 1 || gotFlags[0] != "bonus" {
		t.Errorf("FlagRefs() = %v, want [bonus]", gotFlags)
	}
}

func TestIdentifiersExcludeFunctionNames(t *testing.T) {
	c, err := Compile(`max(tb, szja) + floor(gross)`)
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	for _, id := range c.Identifiers() {
		if id == "max" || id == "floor" {
			t.Errorf("Identifiers() should not contain function name %q", id)
		}
	}
}
