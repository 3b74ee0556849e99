package payroll_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/opspay/payroll/payroll"
)

// For any gross and any flag combination, the breakdown must reconcile with
// the aggregates: net moves by exactly the employee amounts and super gross
// by exactly the employer amounts.
func TestCalculateReconciles_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	engine := prepareHU2025(t)

	properties.Property("breakdown sums reconcile with net and super gross", prop.ForAll(
		func(grossCents int64, under25, entrant bool, months int) bool {
			gross := decimal.NewFromInt(grossCents).Div(decimal.NewFromInt(100))
			res, err := engine.Calculate(gross, payroll.Flags{
				"under25":       under25,
				"entrant":       entrant,
				"months_on_job": months,
			})
			if err != nil {
				t.Logf("Calculate() failed: %v", err)
				return false
			}

			employeeSum := decimal.Zero
			employerSum := decimal.Zero
			for _, r := range res.Breakdown {
				switch r.Direction {
				case payroll.DirectionEmployee:
					employeeSum = employeeSum.Add(r.Amount)
				case payroll.DirectionEmployer:
					employerSum = employerSum.Add(r.Amount)
				}
			}

			return res.Net.Sub(res.Gross).Equal(employeeSum) &&
				res.SuperGross.Sub(res.Gross).Equal(employerSum)
		},
		gen.Int64Range(0, 5_000_000_00),
		gen.Bool(),
		gen.Bool(),
		gen.IntRange(0, 480),
	))

	properties.Property("statutory deductions never exceed gross", prop.ForAll(
		func(grossUnits int64) bool {
			gross := decimal.NewFromInt(grossUnits)
			res, err := engine.Calculate(gross, payroll.Flags{
				"under25":       false,
				"entrant":       false,
				"months_on_job": 0,
			})
			if err != nil {
				t.Logf("Calculate() failed: %v", err)
				return false
			}
			return res.Net.Sign() >= 0 && res.Net.LessThanOrEqual(gross)
		},
		gen.Int64Range(0, 100_000_000),
	))

	properties.TestingRun(t)
}

// Calculate never mutates engine state: repeating the same request must
// produce the same result, interleaved with other requests or not.
func TestCalculateIdempotent_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	engine := prepareHU2025(t)

	properties.Property("same request always yields the same result", prop.ForAll(
		func(grossUnits int64, under25 bool) bool {
			gross := decimal.NewFromInt(grossUnits)
			flags := payroll.Flags{
				"under25":       under25,
				"entrant":       false,
				"months_on_job": 0,
			}

			first, err := engine.Calculate(gross, flags)
			if err != nil {
				t.Logf("Calculate() failed: %v", err)
				return false
			}

			// A different request in between must not disturb anything.
			if _, err := engine.Calculate(gross.Add(decimal.NewFromInt(1)), flags); err != nil {
				t.Logf("Calculate() failed: %v", err)
				return false
			}

			second, err := engine.Calculate(gross, flags)
			if err != nil {
				t.Logf("Calculate() failed: %v", err)
				return false
			}

			if !first.Net.Equal(second.Net) || !first.SuperGross.Equal(second.SuperGross) {
				return false
			}
			if len(first.Breakdown) != len(second.Breakdown) {
				return false
			}
			for i := range first.Breakdown {
				if first.Breakdown[i].ID != second.Breakdown[i].ID ||
					!first.Breakdown[i].Amount.Equal(second.Breakdown[i].Amount) {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 10_000_000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func prepareHU2025(t *testing.T) *payroll.Engine {
	t.Helper()
	return loadEngine(t, "../dsl/hu2025/rules.jsonc")
}
