// Package dsl reads rule set documents from disk. Documents are JSON with
// comments (JSONC): // line comments and /* */ block comments are stripped
// before decoding, so tax rules can be annotated in place.
package dsl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/opspay/payroll/payroll"
)

// Parse decodes one rule set document. Unknown top-level or rule fields are
// rejected so a typo in a field name fails loudly instead of silently
// dropping a formula.
func Parse(data []byte) (payroll.RuleSet, error) {
	var rs payroll.RuleSet

	dec := json.NewDecoder(bytes.NewReader(StripComments(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rs); err != nil {
		return payroll.RuleSet{}, fmt.Errorf("failed to decode rule set: %w", err)
	}

	if rs.Meta.Country == "" {
		return payroll.RuleSet{}, fmt.Errorf("rule set has no meta.country")
	}
	if rs.Meta.Year == 0 {
		return payroll.RuleSet{}, fmt.Errorf("rule set has no meta.year")
	}
	if len(rs.Rules) == 0 {
		return payroll.RuleSet{}, fmt.Errorf("rule set has no rules")
	}

	return rs, nil
}

// LoadFile reads and decodes a rule set document from path.
func LoadFile(path string) (payroll.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return payroll.RuleSet{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rs, err := Parse(data)
	if err != nil {
		return payroll.RuleSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// StripComments removes // and /* */ comments from JSONC input, leaving
// string literals untouched. Comment bytes are replaced with spaces (and
// newlines kept) so decode error offsets still point at the right line.
func StripComments(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)

	const (
		code = iota
		inString
		lineComment
		blockComment
	)

	state := code
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case code:
			switch {
			case c == '"':
				state = inString
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = lineComment
				out[i] = ' '
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = blockComment
				out[i] = ' '
			}
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				state = code
			}
		case lineComment:
			if c == '\n' {
				state = code
			} else {
				out[i] = ' '
			}
		case blockComment:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i] = ' '
				out[i+1] = ' '
				i++
				state = code
			} else if c != '\n' {
				out[i] = ' '
			}
		}
	}

	return out
}
