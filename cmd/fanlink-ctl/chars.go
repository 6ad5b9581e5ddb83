package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fanlink/fanlink-go/pkg/gatt"
	"github.com/fanlink/fanlink-go/pkg/version"
)

var charsCmd = &cobra.Command{
	Use:   "chars",
	Short: "List the characteristics of the current protocol version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printChars(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(charsCmd)
}

func printChars(w io.Writer) error {
	profile, err := version.LoadCurrentProfile()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "FanLink %s, service %s\n\n", profile.Version, gatt.ServiceUUID)
	fmt.Fprintf(w, "%-6s %-14s %-18s %-4s %s\n", "HANDLE", "NAME", "ACCESS", "MAX", "AUTH")
	for _, def := range gatt.Describe() {
		auth := "-"
		if def.Gated {
			auth = "required"
		}
		fmt.Fprintf(w, "0x%02x   %-14s %-18s %-4d %s\n",
			def.ID, def.Name, strings.Join(def.Access, ","), def.MaxSize, auth)
	}
	return nil
}
