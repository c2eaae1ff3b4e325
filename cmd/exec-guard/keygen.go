package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"exec-guard/internal/auth"
	"exec-guard/internal/config"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the device identity used to pair with the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.ProcessEnv)
		if err != nil {
			return err
		}
		file := auth.IdentityFile{Path: cfg.DeviceIdentityFile}
		id, created, err := file.LoadOrCreate()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if created {
			fmt.Fprintf(out, "created %s\n", file.Path)
		} else {
			fmt.Fprintf(out, "using existing %s\n", file.Path)
		}
		fmt.Fprintf(out, "device id: %s\n", id.DeviceID)
		fmt.Fprint(out, id.PublicKeyPEM)
		return nil
	},
}
