package dsl

import (
	"strings"
	"testing"

	"github.com/opspay/payroll/payroll"
)

func TestParseDocument(t *testing.T) {
	doc := []byte(`
	// annotated rules
	{
	  "meta": {"country": "HU", "year": 2024},
	  "variables": {
	    "SZJA_RATE": 0.15 /* personal income tax */
	  },
	  "rules": [
	    {"id": "szja", "type": "percentage", "direction": "employee", "rate": "SZJA_RATE"}
	  ]
	}`)

	rs, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if rs.Meta.Country != "HU" || rs.Meta.Year != 2024 {
		t.Errorf("meta = %+v, want HU/2024", rs.Meta)
	}
	if v, ok := rs.Variables["SZJA_RATE"]; !ok || v.String() != "0.15" {
		t.Errorf("SZJA_RATE = %s, want 0.15", v)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].ID != "szja" {
		t.Errorf("rules = %+v, want one szja rule", rs.Rules)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{
			name:    "missing country",
			doc:     `{"meta": {"year": 2024}, "rules": [{"id": "x", "type": "credit", "direction": "employee", "amount": "1"}]}`,
			wantMsg: "meta.country",
		},
		{
			name:    "missing year",
			doc:     `{"meta": {"country": "HU"}, "rules": [{"id": "x", "type": "credit", "direction": "employee", "amount": "1"}]}`,
			wantMsg: "meta.year",
		},
		{
			name:    "no rules",
			doc:     `{"meta": {"country": "HU", "year": 2024}, "rules": []}`,
			wantMsg: "no rules",
		},
		{
			name:    "unknown field",
			doc:     `{"meta": {"country": "HU", "year": 2024}, "rules": [{"id": "x", "type": "credit", "direction": "employee", "ammount": "1"}]}`,
			wantMsg: "unknown field",
		},
		{
			name:    "malformed json",
			doc:     `{"meta": {`,
			wantMsg: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line comment", "1 // note\n2", "1        \n2"},
		{"block comment", "1 /* note */ 2", "1           2"},
		{"slashes inside string", `{"a": "http://x"}`, `{"a": "http://x"}`},
		{"comment markers inside string", `{"a": "/* not a comment */"}`, `{"a": "/* not a comment */"}`},
		{"escaped quote", `{"a": "say \" // this stays"}`, `{"a": "say \" // this stays"}`},
		{"multiline block keeps newlines", "a /* x\ny */ b", "a    \n     b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(StripComments([]byte(tt.in)))
			if got != tt.want {
				t.Errorf("StripComments(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadFileFixturesPrepare(t *testing.T) {
	for _, path := range []string{"hu2024/rules.jsonc", "hu2025/rules.jsonc"} {
		t.Run(path, func(t *testing.T) {
			rs, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() failed: %v", err)
			}
			if _, err := payroll.Prepare(rs); err != nil {
				t.Errorf("fixture does not prepare: %v", err)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("does/not/exist.jsonc"); err == nil {
		t.Fatal("LoadFile() should fail for a missing file")
	}
}
