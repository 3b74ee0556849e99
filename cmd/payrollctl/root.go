package main

import (
	"github.com/spf13/cobra"

	"github.com/opspay/payroll/internal/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "payrollctl",
	Short: "Work with payroll rule set documents",
	Long: `payrollctl validates declarative payroll rule sets and runs
calculations against them without a running server.

Examples:
  payrollctl validate dsl/hu2024/rules.jsonc
  payrollctl calc --rules dsl --country HU --year 2024 --gross 500000
  payrollctl calc --rules dsl --country HU --year 2025 --gross 480000 \
      --flag under25=true --flag entrant=true --flag months_on_job=6`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cobra.OnInitialize(func() {
		if verbose {
			logger.SetLevel(logger.LevelDebug)
		}
	})

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(calcCmd)
}
