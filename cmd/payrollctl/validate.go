package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opspay/payroll/dsl"
	"github.com/opspay/payroll/payroll"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate rule set documents",
	Long: `Parse each document and run full preparation: structural checks,
formula compilation, and reference ordering. Exits non-zero if any
document fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	var failed int
	for _, path := range args {
		rs, err := dsl.LoadFile(path)
		if err == nil {
			_, err = payroll.Prepare(rs)
		}
		if err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK   %s (%s/%d, %d rules)\n",
			path, rs.Meta.Country, rs.Meta.Year, len(rs.Rules))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed validation", failed, len(args))
	}
	return nil
}
