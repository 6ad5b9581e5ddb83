package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fanlink/fanlink-go/pkg/discovery"
)

var (
	discoverTimeout   time.Duration
	discoverInterface string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find devices on the local network over mDNS",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().DurationVar(&discoverTimeout, "browse-timeout", 3*time.Second, "How long to browse")
	discoverCmd.Flags().StringVar(&discoverInterface, "interface", "", "Network interface to browse on")
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: discoverInterface})
	n := 0
	for svc := range browser.Browse(ctx) {
		printService(cmd.OutOrStdout(), svc)
		n++
	}
	if n == 0 {
		return fmt.Errorf("no devices found within %s", discoverTimeout)
	}
	return nil
}

func printService(w io.Writer, svc *discovery.Service) {
	fmt.Fprintf(w, "%s (%s)\n", svc.DeviceID, svc.InstanceName)
	if svc.Name != "" {
		fmt.Fprintf(w, "  Name:    %s\n", svc.Name)
	}
	fmt.Fprintf(w, "  Version: %s\n", svc.Version)
	fmt.Fprintf(w, "  Auth:    %s\n", strings.Join(svc.AuthMethods, ","))
	if addr, err := serviceAddress(svc); err == nil {
		fmt.Fprintf(w, "  Address: %s\n", addr)
	}
	if svc.WebSocketPath != "" {
		fmt.Fprintf(w, "  WebSocket path: %s\n", svc.WebSocketPath)
	}
}
