// Package config loads the device daemon configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fanlink/fanlink-go/pkg/dispatch"
	"github.com/fanlink/fanlink-go/pkg/provision"
	"github.com/fanlink/fanlink-go/pkg/security"
	"github.com/fanlink/fanlink-go/pkg/transport"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration string ("50ms").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the daemon configuration.
type Config struct {
	Device       Device       `yaml:"device"`
	Auth         Auth         `yaml:"auth"`
	Provisioning Provisioning `yaml:"provisioning"`
	Transport    Transport    `yaml:"transport"`
	Discovery    Discovery    `yaml:"discovery"`
	Telemetry    Telemetry    `yaml:"telemetry"`
	Capture      Capture      `yaml:"capture"`
	Update       Update       `yaml:"update"`
	Log          Log          `yaml:"log"`
}

// Device identifies the device.
type Device struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name,omitempty"`
	StateFile string `yaml:"state_file"`
}

// Auth configures the authentication table and secrets.
type Auth struct {
	// Key is the shared HMAC key.
	Key string `yaml:"key"`

	// KeySalt, when set, derives the HMAC key from Key with HKDF.
	KeySalt string `yaml:"key_salt,omitempty"`

	Passphrase    string   `yaml:"passphrase"`
	Slots         int      `yaml:"slots"`
	NonceLength   int      `yaml:"nonce_length"`
	NonceLifetime Duration `yaml:"nonce_lifetime"`
}

// Provisioning configures the credential hand-off queue.
type Provisioning struct {
	QueueCapacity int      `yaml:"queue_capacity"`
	SendTimeout   Duration `yaml:"send_timeout"`
}

// Transport configures the listeners.
type Transport struct {
	Listen          string   `yaml:"listen"`
	WebSocketListen string   `yaml:"websocket_listen,omitempty"`
	WebSocketPath   string   `yaml:"websocket_path"`
	TLSCert         string   `yaml:"tls_cert,omitempty"`
	TLSKey          string   `yaml:"tls_key,omitempty"`
	TLSSelfSigned   bool     `yaml:"tls_self_signed,omitempty"`
	TLSDir          string   `yaml:"tls_dir,omitempty"`
	MaxMessageSize  uint32   `yaml:"max_message_size"`
	MaxConnections  int      `yaml:"max_connections"`
	PingInterval    Duration `yaml:"ping_interval"`
	PongTimeout     Duration `yaml:"pong_timeout"`
}

// Discovery configures mDNS advertising.
type Discovery struct {
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface,omitempty"`
}

// Telemetry configures status publishing. An empty NATSURL disables it.
type Telemetry struct {
	NATSURL       string `yaml:"nats_url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Capture configures the protocol capture log.
type Capture struct {
	// File is the CBOR capture file. Empty disables file capture.
	File string `yaml:"file,omitempty"`

	// Slog mirrors capture events to the operational log at debug level.
	Slog bool `yaml:"slog"`
}

// Update configures firmware update checks at boot.
type Update struct {
	URL string `yaml:"url,omitempty"`
}

// Log configures operational logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Device: Device{
			ID:        "fanlink",
			StateFile: "fanlink-state.json",
		},
		Auth: Auth{
			Key:           string(security.DefaultKey),
			Passphrase:    dispatch.DefaultPassphrase,
			Slots:         security.DefaultCapacity,
			NonceLength:   security.DefaultNonceLength,
			NonceLifetime: Duration(security.DefaultNonceLifetime),
		},
		Provisioning: Provisioning{
			QueueCapacity: provision.DefaultCapacity,
			SendTimeout:   Duration(provision.DefaultSendTimeout),
		},
		Transport: Transport{
			Listen:         fmt.Sprintf(":%d", transport.DefaultPort),
			WebSocketPath:  transport.DefaultWebSocketPath,
			MaxMessageSize: transport.DefaultMaxMessageSize,
			MaxConnections: transport.DefaultMaxConnections,
			PingInterval:   Duration(transport.DefaultPingInterval),
			PongTimeout:    Duration(transport.DefaultPongTimeout),
		},
		Discovery: Discovery{Enabled: true},
		Telemetry: Telemetry{SubjectPrefix: "fanlink"},
		Log:       Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML over the defaults and validates the result. Unknown
// keys are errors.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode writes cfg as YAML.
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks the configuration. All problems are reported together.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Device.ID == "" {
		add("device.id is required")
	}
	if c.Device.StateFile == "" {
		add("device.state_file is required")
	}

	if c.Auth.Key == "" {
		add("auth.key is required")
	}
	if c.Auth.Slots <= 0 {
		add("auth.slots must be positive, got %d", c.Auth.Slots)
	}
	if c.Auth.NonceLength <= 0 || c.Auth.NonceLength > security.MaxNonceLength {
		add("auth.nonce_length must be 1..%d, got %d", security.MaxNonceLength, c.Auth.NonceLength)
	}
	if c.Auth.NonceLifetime <= 0 {
		add("auth.nonce_lifetime must be positive")
	}

	if c.Provisioning.QueueCapacity < provision.MinCapacity {
		add("provisioning.queue_capacity must be at least %d, got %d", provision.MinCapacity, c.Provisioning.QueueCapacity)
	}
	if c.Provisioning.SendTimeout <= 0 {
		add("provisioning.send_timeout must be positive")
	}

	if c.Transport.Listen == "" && c.Transport.WebSocketListen == "" {
		add("transport.listen or transport.websocket_listen is required")
	}
	if c.Transport.WebSocketListen != "" && !strings.HasPrefix(c.Transport.WebSocketPath, "/") {
		add("transport.websocket_path must start with /, got %q", c.Transport.WebSocketPath)
	}
	if (c.Transport.TLSCert == "") != (c.Transport.TLSKey == "") {
		add("transport.tls_cert and transport.tls_key must be set together")
	}
	if c.Transport.TLSSelfSigned && c.Transport.TLSCert != "" {
		add("transport.tls_self_signed and transport.tls_cert are mutually exclusive")
	}
	if c.Transport.MaxMessageSize < 2 {
		add("transport.max_message_size too small: %d", c.Transport.MaxMessageSize)
	}
	if c.Transport.MaxConnections <= 0 {
		add("transport.max_connections must be positive")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		add("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// TableConfig returns the authentication table configuration.
func (a Auth) TableConfig() security.TableConfig {
	return security.TableConfig{
		Capacity:      a.Slots,
		NonceLength:   a.NonceLength,
		NonceLifetime: a.NonceLifetime.D(),
	}
}

// HMACKey returns the effective HMAC key.
func (a Auth) HMACKey() ([]byte, error) {
	if a.KeySalt == "" {
		return []byte(a.Key), nil
	}
	return security.DeriveKey([]byte(a.Key), []byte(a.KeySalt))
}

// IdentityDir returns where the self-signed identity lives: TLSDir, or the
// directory of stateFile.
func (t Transport) IdentityDir(stateFile string) string {
	if t.TLSDir != "" {
		return t.TLSDir
	}
	return filepath.Dir(stateFile)
}

// KeepAlive returns the WebSocket keepalive configuration.
func (t Transport) KeepAlive() transport.KeepAliveConfig {
	return transport.KeepAliveConfig{
		PingInterval: t.PingInterval.D(),
		PongTimeout:  t.PongTimeout.D(),
	}
}
