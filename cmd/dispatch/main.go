package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set by the release process; "dev" outside a tagged build.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "dispatch",
	Short:   "Event-driven agent dispatcher for source-control automation",
	Version: version,
	Long: `dispatch wires the descriptor registry, trigger engine, prompt
assembler, and execution orchestrator together and runs them against a
single repository event.

Common tasks:
  dispatch run --event-kind pull_request --event-path event.json
  dispatch run --event-kind scheduled-tick --cron "0 * * * *"`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose subprocess output")
	rootCmd.SetOut(os.Stderr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
