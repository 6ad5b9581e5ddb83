package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fanlink/fanlink-go/pkg/version"
)

var (
	// Connection flags
	deviceAddr string
	wsURL      string
	deviceID   string
	useTLS     bool
	insecure   bool
	pin        string
	timeout    time.Duration

	// Authentication flags
	authMode string
	keySalt  string
)

var rootCmd = &cobra.Command{
	Use:   "fanlink-ctl",
	Short: "FanLink device client",
	Long: `fanlink-ctl reads and writes FanLink characteristics.

Connection modes:
  TCP:       --addr host:7420 [--tls [--insecure | --pin <sha256>]]
  WebSocket: --url ws://host:7421/ws
  mDNS:      --device <id>   (resolves the TCP address by device ID)

Authentication (--auth):
  hmac        answer the connection nonce with HMAC-SHA256(key, nonce)
  passphrase  write the pass-phrase to the auth_key characteristic
  none        skip authentication

The key is read from FANLINK_KEY and the pass-phrase from FANLINK_PASSPHRASE,
or prompted for when unset. There are no flags for them, to keep secrets out
of shell history.`,
	Version:      version.Current,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceAddr, "addr", "a", "", "Device TCP address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Device WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVarP(&deviceID, "device", "d", "", "Resolve the device by ID over mDNS")
	rootCmd.PersistentFlags().BoolVar(&useTLS, "tls", false, "Use TLS for TCP connections")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip certificate verification (self-signed devices)")
	rootCmd.PersistentFlags().StringVar(&pin, "pin", "", "Accept only the device certificate with this SHA-256 fingerprint (implies --tls)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Connect and request timeout")

	rootCmd.PersistentFlags().StringVar(&authMode, "auth", authHMAC, "Authentication mode (hmac, passphrase, none)")
	rootCmd.PersistentFlags().StringVar(&keySalt, "key-salt", "", "Derive the device key from FANLINK_KEY with this salt (usually the device ID)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
