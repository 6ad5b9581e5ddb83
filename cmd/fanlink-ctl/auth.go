package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Check that the device accepts our credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		c, info, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "Connected: %s\nAuthentication: %s OK\n", info, authMode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
