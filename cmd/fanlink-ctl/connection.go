package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/fanlink/fanlink-go/pkg/cert"
	"github.com/fanlink/fanlink-go/pkg/discovery"
	"github.com/fanlink/fanlink-go/pkg/gatt"
	"github.com/fanlink/fanlink-go/pkg/packet"
	"github.com/fanlink/fanlink-go/pkg/security"
	"github.com/fanlink/fanlink-go/pkg/transport"
)

// Authentication modes.
const (
	authHMAC       = "hmac"
	authPassphrase = "passphrase"
	authNone       = "none"
)

// Secret environment variables.
const (
	envKey        = "FANLINK_KEY"
	envPassphrase = "FANLINK_PASSPHRASE"
)

var errNoTarget = errors.New("no device given: use --addr, --url or --device")

// openClient connects to the device named by the connection flags and
// authenticates according to --auth. It returns a description of the
// connection for display.
func openClient(ctx context.Context) (*transport.Client, string, error) {
	addr := deviceAddr
	if addr == "" && wsURL == "" && deviceID != "" {
		svc, err := discovery.NewMDNSBrowser(discovery.BrowserConfig{}).Find(ctx, deviceID)
		if err != nil {
			return nil, "", fmt.Errorf("resolve %s: %w", deviceID, err)
		}
		addr, err = serviceAddress(svc)
		if err != nil {
			return nil, "", err
		}
	}

	tlsConf := clientTLS(useTLS, insecure, pin, wsURL)
	c, info, err := dial(ctx, addr, wsURL, transport.ClientConfig{TLS: tlsConf, ConnectTimeout: timeout})
	if err != nil {
		return nil, "", err
	}

	secret, err := authSecret()
	if err != nil {
		c.Close()
		return nil, "", err
	}
	if err := authenticate(ctx, c, authMode, secret); err != nil {
		c.Close()
		return nil, "", err
	}
	return c, info, nil
}

// clientTLS returns the TLS configuration for the connection flags, or nil
// for a plain connection. A pin replaces chain verification.
func clientTLS(enabled, skipVerify bool, fingerprint, url string) *tls.Config {
	if !enabled && fingerprint == "" && !strings.HasPrefix(url, "wss://") {
		return nil
	}
	if fingerprint == "" {
		return transport.NewClientTLSConfig(skipVerify)
	}
	conf := transport.NewClientTLSConfig(true)
	conf.VerifyPeerCertificate = cert.PinnedVerifier(fingerprint)
	return conf
}

func dial(ctx context.Context, addr, url string, cfg transport.ClientConfig) (*transport.Client, string, error) {
	switch {
	case url != "":
		c, err := transport.DialWebSocketClient(ctx, url, cfg)
		if err != nil {
			return nil, "", fmt.Errorf("connect %s: %w", url, err)
		}
		return c, "WebSocket " + url, nil
	case addr != "":
		c, err := transport.DialTCP(ctx, addr, cfg)
		if err != nil {
			return nil, "", fmt.Errorf("connect %s: %w", addr, err)
		}
		mode := "TCP "
		if cfg.TLS != nil {
			mode = "TLS "
		}
		return c, mode + addr, nil
	default:
		return nil, "", errNoTarget
	}
}

// serviceAddress picks a dialable address for a discovered device.
func serviceAddress(svc *discovery.Service) (string, error) {
	port := strconv.Itoa(discovery.DefaultPort)
	if svc.Port != 0 {
		port = strconv.Itoa(int(svc.Port))
	}
	if len(svc.Addresses) > 0 {
		return net.JoinHostPort(svc.Addresses[0], port), nil
	}
	if svc.Host != "" {
		return net.JoinHostPort(strings.TrimSuffix(svc.Host, "."), port), nil
	}
	return "", fmt.Errorf("device %s has no address", svc.DeviceID)
}

// authSecret returns the key or pass-phrase for the selected mode.
func authSecret() ([]byte, error) {
	switch authMode {
	case authNone:
		return nil, nil
	case authPassphrase:
		pass, err := readSecret(envPassphrase, "Pass-phrase: ")
		if err != nil {
			return nil, err
		}
		return []byte(pass), nil
	case authHMAC:
		key, err := readSecret(envKey, "Key: ")
		if err != nil {
			return nil, err
		}
		return deviceKey([]byte(key), keySalt)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", authMode)
	}
}

// deviceKey applies the optional HKDF derivation. An empty secret selects the
// factory key.
func deviceKey(secret []byte, salt string) ([]byte, error) {
	if len(secret) == 0 {
		secret = security.DefaultKey
	}
	if salt == "" {
		return secret, nil
	}
	return security.DeriveKey(secret, []byte(salt))
}

// readSecret reads env, or prompts without echo on a terminal.
func readSecret(env, prompt string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}

	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// authenticate runs one authentication exchange on c.
func authenticate(ctx context.Context, c *transport.Client, mode string, secret []byte) error {
	switch mode {
	case authNone:
		return nil
	case authHMAC:
		nonce, err := c.Read(ctx, gatt.CharNonce)
		if err != nil {
			return fmt.Errorf("read nonce: %w", err)
		}
		digest := security.ComputeDigest(secret, nonce)
		if err := c.Write(ctx, gatt.CharNonce, digest[:]); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		return nil
	case authPassphrase:
		msg, err := authKeyPacket(string(secret))
		if err != nil {
			return err
		}
		if err := c.Write(ctx, gatt.CharAuthKey, msg); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown auth mode %q", mode)
	}
}

// Packet builders. encoding/json sorts map keys, so output is stable.

func authKeyPacket(pass string) ([]byte, error) {
	return encodePacket(map[string]string{"AuthKey": pass})
}

func wifiPacket(ssid, password string) ([]byte, error) {
	return encodePacket(map[string]string{"ssid": ssid, "pass": password})
}

func controlPacket(values map[string]int64) ([]byte, error) {
	if len(values) == 0 {
		return nil, errors.New("no control values")
	}
	return encodePacket(values)
}

func encodePacket(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(b) > packet.MaxSize {
		return nil, fmt.Errorf("packet is %d bytes, limit is %d", len(b), packet.MaxSize)
	}
	return b, nil
}
