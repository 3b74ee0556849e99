package payroll

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Direction says whose side of the payslip a rule's amount lands on.
type Direction string

const (
	DirectionEmployee Direction = "employee"
	DirectionEmployer Direction = "employer"
	DirectionNeutral  Direction = "neutral"
)

// Valid reports whether d is one of the three known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionEmployee, DirectionEmployer, DirectionNeutral:
		return true
	}
	return false
}

// RuleType is the kind of a rule. The set is closed: a percentage of a base,
// or a direct credit amount.
type RuleType string

const (
	RuleTypePercentage RuleType = "percentage"
	RuleTypeCredit     RuleType = "credit"
)

// Meta describes which jurisdiction and year a rule set applies to.
type Meta struct {
	Country     string `json:"country"`
	Year        int    `json:"year"`
	Description string `json:"description,omitempty"`
}

// RuleDefinition is one declarative rule. Formula fields hold untrusted
// configuration text; they are only interpreted through the expr compiler.
type RuleDefinition struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	Type      RuleType  `json:"type"`
	Direction Direction `json:"direction"`

	// Condition gates the rule. Empty means the rule always applies.
	Condition string `json:"condition,omitempty"`

	// Rate and Base belong to percentage rules; Base defaults to "gross".
	Rate string `json:"rate,omitempty"`
	Base string `json:"base,omitempty"`

	// Amount belongs to credit rules. Its sign is taken as computed.
	Amount string `json:"amount,omitempty"`
}

// RuleSet is the full ordered configuration for one jurisdiction and year.
// Order is significant: it fixes both evaluation order and which earlier
// rule ids a formula may reference. A RuleSet is treated as read-only once
// handed to Prepare.
type RuleSet struct {
	Meta      Meta                       `json:"meta"`
	Variables map[string]decimal.Decimal `json:"variables,omitempty"`
	Rules     []RuleDefinition           `json:"rules"`
}

// Flags are the per-request attributes formulas may reference as
// flags.<name>. Values may be booleans, numbers, or strings (dates travel
// as ISO strings). Flags present but never referenced are ignored.
type Flags map[string]any

// RuleResult is one line of the breakdown.
type RuleResult struct {
	ID        string          `json:"-"`
	Label     string          `json:"label"`
	Amount    decimal.Decimal `json:"amount"`
	Direction Direction       `json:"direction"`
}

// Breakdown preserves the executor's emission order (declared rule order,
// skipping non-applicable rules) while serializing as an object keyed by
// rule id.
type Breakdown []RuleResult

// Get returns the result for a rule id, if present.
func (b Breakdown) Get(id string) (RuleResult, bool) {
	for _, r := range b {
		if r.ID == id {
			return r, true
		}
	}
	return RuleResult{}, false
}

// MarshalJSON renders the breakdown as {"<ruleID>": {...}, ...} in emission
// order.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, r := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(r.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON accepts the object form. Map iteration order is not
// defined, so round-tripped breakdowns keep their entries but not
// necessarily their order; the engine itself never unmarshals results.
func (b *Breakdown) UnmarshalJSON(data []byte) error {
	var m map[string]RuleResult
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*b = (*b)[:0]
	for id, r := range m {
		r.ID = id
		*b = append(*b, r)
	}
	return nil
}

// Result is the outcome of one calculation. It is constructed fresh per
// request and immutable once returned.
type Result struct {
	Gross      decimal.Decimal `json:"gross"`
	Net        decimal.Decimal `json:"net"`
	SuperGross decimal.Decimal `json:"super_gross"`
	Breakdown  Breakdown       `json:"breakdown"`
}

func (r *Result) String() string {
	return fmt.Sprintf("gross=%s net=%s super_gross=%s rules=%d",
		r.Gross, r.Net, r.SuperGross, len(r.Breakdown))
}
