package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "exec-guard",
	Short: "Human approval gate for agent exec requests",
	Long: `exec-guard connects to an agent gateway as an operator device and decides
every exec request it forwards: restricted commands wait for a human,
network commands are denied while network access is off, and everything
else runs.

Settings come from the environment (MASTER_SECRET, GATEWAY_URL,
GATEWAY_TOKEN, EXEC_GUARD_HOME, ...).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, keygenCmd, tokenCmd, versionCmd)
}
