package transport

import (
	"crypto/tls"
	"fmt"

	"github.com/fanlink/fanlink-go/pkg/version"
)

// TLSConfig names the certificate files for an optional TLS listener.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// NewServerTLSConfig loads the key pair and returns a TLS 1.3 server config
// that advertises the supported protocol versions over ALPN.
func NewServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return ServerTLSConfig(cert), nil
}

// ServerTLSConfig returns the server config for an in-memory certificate,
// such as a generated device identity.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   version.SupportedSubprotocols(),
	}
}

// NewClientTLSConfig returns a TLS 1.3 client config. Devices use
// self-signed certificates; authentication happens above TLS, so insecure
// skips chain verification.
func NewClientTLSConfig(insecure bool) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS13,
		NextProtos:         version.SupportedSubprotocols(),
		InsecureSkipVerify: insecure, //nolint:gosec // opt-in for self-signed devices
	}
}
