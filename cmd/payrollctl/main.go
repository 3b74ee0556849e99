// Command payrollctl validates rule set documents and runs calculations
// from the terminal.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
