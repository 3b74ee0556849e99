package main

import (
	"github.com/shopspring/decimal"

	"github.com/opspay/payroll/payroll"
)

// CalculateRequest is the body of POST /api/v1/calculate. Gross accepts a
// JSON number or a numeric string. Date is optional; when set it is made
// available to formulas as flags.date, otherwise today's date is injected.
type CalculateRequest struct {
	Country string          `json:"country"`
	Year    int             `json:"year"`
	Gross   decimal.Decimal `json:"gross"`
	Date    string          `json:"date,omitempty"`
	Flags   payroll.Flags   `json:"flags,omitempty"`
}

// CalculateResponse is the body of a successful calculation.
type CalculateResponse struct {
	CalculationID string            `json:"calculationId"`
	Country       string            `json:"country"`
	Year          int               `json:"year"`
	Gross         decimal.Decimal   `json:"gross"`
	Net           decimal.Decimal   `json:"net"`
	SuperGross    decimal.Decimal   `json:"superGross"`
	Breakdown     payroll.Breakdown `json:"breakdown"`
}

// FlagsResponse lists the flags a rule set's formulas reference.
type FlagsResponse struct {
	Country       string   `json:"country"`
	Year          int      `json:"year"`
	RequiredFlags []string `json:"requiredFlags"`
}

// RuleSetSummary is one entry of GET /api/v1/rulesets.
type RuleSetSummary struct {
	Country     string `json:"country"`
	Year        int    `json:"year"`
	Description string `json:"description,omitempty"`
	Rules       int    `json:"rules"`
}
