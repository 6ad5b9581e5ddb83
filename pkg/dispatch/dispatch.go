package dispatch

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/log"
	"github.com/fanlink/fanlink-go/pkg/packet"
	"github.com/fanlink/fanlink-go/pkg/provision"
	"github.com/fanlink/fanlink-go/pkg/security"
)

// DefaultPassphrase is the factory pass-phrase.
const DefaultPassphrase = "fan12345"

// Dispatch errors. They are reported in Result.Err for logging; none of them
// is fatal.
var (
	ErrBadPassphrase      = errors.New("pass-phrase mismatch")
	ErrInvalidCredentials = errors.New("invalid wifi credentials")
	ErrUnrecognized       = errors.New("unrecognized packet")
	ErrNothingApplied     = errors.New("no control field applied")
	ErrMissingDependency  = errors.New("device context incomplete")
)

// Handoff accepts validated credentials. *provision.Queue implements it.
type Handoff interface {
	Submit(ctx context.Context, rec provision.Record) error
}

// Device is the context every dispatch runs against.
type Device struct {
	Auth       *security.Table
	State      *control.State
	Handoff    Handoff
	Passphrase []byte
}

// Conn identifies the connection a packet arrived on.
type Conn struct {
	ID         security.ConnID
	SessionID  string
	RemoteAddr string
}

// Result describes what a dispatch did. Handled is the answer reported back
// to the client.
type Result struct {
	Kind     packet.Kind
	Handled  bool
	Applied  []control.Field
	Rejected []control.Field
	Err      error
}

// Dispatcher routes intents to the device.
type Dispatcher struct {
	dev      Device
	deviceID string
	logger   *slog.Logger
	capture  log.Logger
	timeNow  func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithCapture sets the protocol capture logger.
func WithCapture(l log.Logger) Option {
	return func(d *Dispatcher) { d.capture = log.OrNoop(l) }
}

// WithDeviceID tags capture events with the device id.
func WithDeviceID(id string) Option {
	return func(d *Dispatcher) { d.deviceID = id }
}

// New creates a Dispatcher. An empty pass-phrase selects DefaultPassphrase.
func New(dev Device, opts ...Option) (*Dispatcher, error) {
	if dev.Auth == nil || dev.State == nil || dev.Handoff == nil {
		return nil, ErrMissingDependency
	}
	if len(dev.Passphrase) == 0 {
		dev.Passphrase = []byte(DefaultPassphrase)
	} else {
		dev.Passphrase = append([]byte(nil), dev.Passphrase...)
	}

	d := &Dispatcher{
		dev:     dev,
		logger:  slog.Default(),
		capture: log.NoopLogger{},
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Device returns the dispatcher's context.
func (d *Dispatcher) Device() Device {
	return d.dev
}

// Dispatch applies intent on behalf of conn.
func (d *Dispatcher) Dispatch(ctx context.Context, conn security.ConnID, intent packet.Intent) Result {
	res := Result{Kind: intent.Kind}

	switch intent.Kind {
	case packet.KindAuthKey:
		res.Err = d.authenticate(conn, intent.AuthKey)
	case packet.KindWifiCredentials:
		res.Err = d.provision(ctx, conn, intent.Credentials)
	case packet.KindControl:
		d.applyControls(conn, intent.Controls, &res)
		return res
	default:
		res.Err = ErrUnrecognized
	}

	res.Handled = res.Err == nil
	return res
}

// HandlePacket parses raw, dispatches it and records a capture event.
func (d *Dispatcher) HandlePacket(ctx context.Context, conn Conn, raw []byte) Result {
	start := d.timeNow()
	intent := packet.Parse(raw)
	d.logger.Debug("packet parsed", "conn", conn.ID, "size", len(raw), "intent", intent.String())
	return d.handle(ctx, conn, intent, start)
}

// HandleIntent dispatches an already parsed intent and records a capture
// event.
func (d *Dispatcher) HandleIntent(ctx context.Context, conn Conn, intent packet.Intent) Result {
	return d.handle(ctx, conn, intent, d.timeNow())
}

func (d *Dispatcher) handle(ctx context.Context, conn Conn, intent packet.Intent, start time.Time) Result {
	res := d.Dispatch(ctx, conn.ID, intent)

	d.capture.Log(log.Event{
		Timestamp:  start,
		SessionID:  conn.SessionID,
		Handle:     uint16(conn.ID),
		Direction:  log.DirectionIn,
		Layer:      log.LayerCommand,
		Category:   log.CategoryCommand,
		RemoteAddr: conn.RemoteAddr,
		DeviceID:   d.deviceID,
		Command: &log.CommandEvent{
			Intent:   intent.String(),
			Handled:  res.Handled,
			Applied:  fieldNames(res.Applied),
			Rejected: fieldNames(res.Rejected),
			Duration: d.timeNow().Sub(start),
		},
	})
	if intent.Kind == packet.KindAuthKey {
		d.capture.Log(log.Event{
			Timestamp: start,
			SessionID: conn.SessionID,
			Handle:    uint16(conn.ID),
			Layer:     log.LayerCommand,
			Category:  log.CategoryAuth,
			DeviceID:  d.deviceID,
			Auth:      authEvent(res),
		})
	}
	return res
}

func (d *Dispatcher) authenticate(conn security.ConnID, key string) error {
	if subtle.ConstantTimeCompare([]byte(key), d.dev.Passphrase) != 1 {
		d.logger.Warn("pass-phrase rejected", "conn", conn)
		return ErrBadPassphrase
	}
	if err := d.dev.Auth.MarkAuthenticated(conn, security.MethodPassphrase); err != nil {
		return fmt.Errorf("mark authenticated: %w", err)
	}
	return nil
}

func (d *Dispatcher) provision(ctx context.Context, conn security.ConnID, rec provision.Record) error {
	if err := rec.Validate(); err != nil {
		d.logger.Warn("wifi credentials rejected", "conn", conn, "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if err := d.dev.Handoff.Submit(ctx, rec); err != nil {
		d.logger.Warn("wifi credentials not queued", "conn", conn, "error", err)
		return err
	}
	d.logger.Info("wifi credentials queued", "conn", conn, "record", rec.String())
	return nil
}

func (d *Dispatcher) applyControls(conn security.ConnID, updates []packet.ControlUpdate, res *Result) {
	for _, u := range updates {
		if err := d.dev.State.Apply(u.Field, u.Value); err != nil {
			d.logger.Warn("control value rejected", "conn", conn, "field", u.Field, "value", u.Value, "error", err)
			res.Rejected = append(res.Rejected, u.Field)
			res.Err = errors.Join(res.Err, err)
			continue
		}
		res.Applied = append(res.Applied, u.Field)
	}
	res.Handled = len(res.Applied) > 0
	if len(updates) == 0 {
		res.Err = ErrNothingApplied
	}
}

func fieldNames(fields []control.Field) []string {
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return names
}

func authEvent(res Result) *log.AuthEvent {
	ev := &log.AuthEvent{
		Step:    "passphrase",
		Method:  security.MethodPassphrase.String(),
		Success: res.Handled,
	}
	if res.Err != nil {
		ev.Reason = res.Err.Error()
	}
	return ev
}
