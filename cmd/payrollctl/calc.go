package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/opspay/payroll/payroll"
	"github.com/opspay/payroll/registry"
)

var (
	calcRulesDir string
	calcCountry  string
	calcYear     int
	calcGross    string
	calcFlags    []string
	calcJSON     bool
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Run one payroll calculation",
	Long: `Load rule set documents from a directory and calculate net and
employer cost for one gross salary.

Flag values are parsed as booleans or numbers where possible, otherwise
kept as strings.`,
	RunE: runCalc,
}

func init() {
	calcCmd.Flags().StringVar(&calcRulesDir, "rules", "dsl", "directory holding .jsonc rule set documents")
	calcCmd.Flags().StringVar(&calcCountry, "country", "", "country code, e.g. HU")
	calcCmd.Flags().IntVar(&calcYear, "year", 0, "tax year")
	calcCmd.Flags().StringVar(&calcGross, "gross", "", "gross salary")
	calcCmd.Flags().StringArrayVar(&calcFlags, "flag", nil, "request flag as name=value (repeatable)")
	calcCmd.Flags().BoolVar(&calcJSON, "json", false, "emit the full result as JSON")
	calcCmd.MarkFlagRequired("country")
	calcCmd.MarkFlagRequired("year")
	calcCmd.MarkFlagRequired("gross")
}

func runCalc(cmd *cobra.Command, args []string) error {
	gross, err := decimal.NewFromString(calcGross)
	if err != nil {
		return fmt.Errorf("invalid gross %q: %w", calcGross, err)
	}
	if gross.Sign() < 0 {
		return fmt.Errorf("gross must not be negative")
	}

	flags, err := parseFlags(calcFlags)
	if err != nil {
		return err
	}

	reg := registry.New(nil)
	if err := reg.LoadDir(calcRulesDir); err != nil {
		return err
	}
	engine, ok := reg.Engine(calcCountry, calcYear)
	if !ok {
		return fmt.Errorf("no rule set for %s/%d under %s", calcCountry, calcYear, calcRulesDir)
	}

	result, err := engine.Calculate(gross, flags)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if calcJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "%s %d\n", engine.Meta().Country, engine.Meta().Year)
	fmt.Fprintf(out, "gross        %12s\n", gross)
	for _, r := range result.Breakdown {
		fmt.Fprintf(out, "  %-28s %12s\n", r.Label, r.Amount)
	}
	fmt.Fprintf(out, "net          %12s\n", result.Net)
	fmt.Fprintf(out, "employer cost %11s\n", result.SuperGross)
	return nil
}

// parseFlags turns name=value pairs into typed flag values: true/false
// become booleans, numeric strings become numbers, the rest stay strings.
func parseFlags(pairs []string) (payroll.Flags, error) {
	flags := make(payroll.Flags, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid flag %q, expected name=value", pair)
		}
		switch {
		case value == "true" || value == "false":
			flags[name] = value == "true"
		default:
			if d, err := decimal.NewFromString(value); err == nil {
				flags[name] = d
			} else {
				flags[name] = value
			}
		}
	}
	return flags, nil
}
