package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"exec-guard/internal/handler"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), handler.Version)
	},
}
