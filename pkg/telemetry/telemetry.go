// Package telemetry publishes reported control values to NATS.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fanlink/fanlink-go/pkg/control"
)

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "fanlink"

// ErrInvalidSubject is returned for subject tokens containing separators or
// wildcards.
var ErrInvalidSubject = errors.New("invalid subject token")

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// StatusMessage is the JSON body of a status publication.
type StatusMessage struct {
	Field string    `json:"field"`
	Value uint32    `json:"value"`
	TS    time.Time `json:"ts"`
}

// Config configures a NATSPublisher.
type Config struct {
	// Prefix is the first subject token. Default DefaultSubjectPrefix.
	Prefix string

	// DeviceID is the second subject token. Required.
	DeviceID string

	Logger *slog.Logger
}

// NATSPublisher publishes every applied control field to
// "<prefix>.<device>.status". It implements control.Notifier.
type NATSPublisher struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
	conn    *nats.Conn

	timeNow func() time.Time
}

// Connect dials a NATS server and returns a publisher on it. Close releases
// the connection.
func Connect(url string, cfg Config) (*NATSPublisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.logger()

	nc, err := nats.Connect(url,
		nats.Name("fanlink-"+cfg.DeviceID),
		nats.PingInterval(5*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("telemetry disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("telemetry reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	p, err := NewNATSPublisher(nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.conn = nc
	return p, nil
}

// NewNATSPublisher creates a publisher on an existing connection.
func NewNATSPublisher(pub Publisher, cfg Config) (*NATSPublisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &NATSPublisher{
		pub:     pub,
		subject: cfg.prefix() + "." + cfg.DeviceID + ".status",
		logger:  cfg.logger(),
		timeNow: time.Now,
	}, nil
}

// Subject returns the status subject.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Notify publishes one status message. Failures are logged; the control
// path never sees them.
func (p *NATSPublisher) Notify(field control.Field, value uint32) {
	data, err := json.Marshal(StatusMessage{Field: field.String(), Value: value, TS: p.timeNow().UTC()})
	if err != nil {
		p.logger.Warn("telemetry encode failed", "field", field.String(), "error", err)
		return
	}
	if err := p.pub.Publish(p.subject, data); err != nil {
		p.logger.Warn("telemetry publish failed", "subject", p.subject, "error", err)
		return
	}
	p.logger.Debug("telemetry published", "subject", p.subject, "field", field.String(), "value", value)
}

// Close flushes and closes a connection opened by Connect.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Flush(); err != nil {
		p.logger.Debug("telemetry flush failed", "error", err)
	}
	p.conn.Close()
}

func (c Config) prefix() string {
	if c.Prefix == "" {
		return DefaultSubjectPrefix
	}
	return c.Prefix
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Config) validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrInvalidSubject)
	}
	for _, tok := range []string{c.prefix(), c.DeviceID} {
		if strings.ContainsAny(tok, ". *>\t") {
			return fmt.Errorf("%w: %q", ErrInvalidSubject, tok)
		}
	}
	return nil
}

var _ control.Notifier = (*NATSPublisher)(nil)
