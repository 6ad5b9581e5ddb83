// Command fanlink-device runs a FanLink device.
//
// The device exposes the authenticated command channel over TCP and,
// optionally, WebSocket. Clients read the per-connection nonce, answer it
// with an HMAC digest (or send the pass-phrase packet) and then write
// control values or JSON packets.
//
// Usage:
//
//	fanlink-device [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-id string          Device id (overrides config)
//	-listen string      TCP listen address (overrides config)
//	-ws string          WebSocket listen address (overrides config)
//	-state string       State file path (overrides config)
//	-capture string     CBOR capture file (overrides config)
//	-log-level string   Log level: debug, info, warn, error
//	-no-mdns            Disable mDNS advertising
//	-tls-self-signed    Serve TLS with a generated, persisted identity
//	-interactive        Enable the interactive console
//	-print-config       Print the effective configuration and exit
//
// Examples:
//
//	# Start with defaults
//	fanlink-device
//
//	# Start with config file and WebSocket endpoint
//	fanlink-device -config /etc/fanlink/device.yaml -ws :8080
//
//	# Capture protocol traffic for fanlink-log
//	fanlink-device -capture /tmp/fanlink.cbor -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fanlink/fanlink-go/cmd/fanlink-device/interactive"
	"github.com/fanlink/fanlink-go/pkg/config"
)

var (
	configFile  = flag.String("config", "", "Configuration file path (YAML)")
	deviceID    = flag.String("id", "", "Device id")
	listenAddr  = flag.String("listen", "", "TCP listen address")
	wsAddr      = flag.String("ws", "", "WebSocket listen address")
	stateFile   = flag.String("state", "", "State file path")
	captureFile = flag.String("capture", "", "CBOR capture file")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertising")
	selfSigned  = flag.Bool("tls-self-signed", false, "Serve TLS with a generated, persisted identity")
	interact    = flag.Bool("interactive", false, "Enable the interactive console")
	printConfig = flag.Bool("print-config", false, "Print the effective configuration and exit")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	if *printConfig {
		data, err := cfg.Encode()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode configuration: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var console *interactive.Console
	out := io.Writer(os.Stderr)
	if *interact {
		console, err = interactive.New()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create console: %v\n", err)
			os.Exit(1)
		}
		// Keep log output from tearing the prompt.
		out = console.Stderr()
	}
	logger := newLogger(cfg.Log, out)
	slog.SetDefault(logger)

	dev, err := NewDevice(cfg, logger)
	if err != nil {
		logger.Error("failed to create device", "error", err)
		os.Exit(1)
	}
	if err := dev.Start(ctx); err != nil {
		logger.Error("failed to start device", "error", err)
		os.Exit(1)
	}

	if console != nil {
		console.Attach(dev.Controls())
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancel()
	dev.Stop()
}

// loadConfig reads the config file (if any) and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return config.Config{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "id":
			cfg.Device.ID = *deviceID
		case "listen":
			cfg.Transport.Listen = *listenAddr
		case "ws":
			cfg.Transport.WebSocketListen = *wsAddr
		case "state":
			cfg.Device.StateFile = *stateFile
		case "capture":
			cfg.Capture.File = *captureFile
		case "log-level":
			cfg.Log.Level = *logLevel
		case "no-mdns":
			cfg.Discovery.Enabled = !*noMDNS
		case "tls-self-signed":
			cfg.Transport.TLSSelfSigned = *selfSigned
		}
	})
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Log, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
