// Package cmd is the CLI surface, grounded on the teacher's cmd/root.go:
// a rootCmd/runCmd cobra pair, package-level flag variables bound in init,
// and an Execute() entrypoint main.go calls.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parasim",
	Short: "Parallel discrete-event network scheduler",
}

// Execute runs the CLI, exiting the process with status 1 on any command
// error (matching the teacher's Execute).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
