package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"exec-guard/internal/auth"
	"exec-guard/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token <operator>",
	Short: "Issue a control API token for an operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		tok, err := auth.CreateToken(args[0], tokenConfig(cfg))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
