package gatt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/dispatch"
	"github.com/fanlink/fanlink-go/pkg/log"
	"github.com/fanlink/fanlink-go/pkg/packet"
	"github.com/fanlink/fanlink-go/pkg/security"
)

// Gateway errors.
var (
	ErrDuplicateConnection = errors.New("connection already open")
)

// Sink delivers notifications to one connection. The transport implements it.
type Sink interface {
	Notify(conn security.ConnID, char Characteristic, value []byte)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(conn security.ConnID, char Characteristic, value []byte)

// Notify calls fn.
func (fn SinkFunc) Notify(conn security.ConnID, char Characteristic, value []byte) {
	fn(conn, char, value)
}

// Gateway mediates every characteristic access.
type Gateway struct {
	disp  *dispatch.Dispatcher
	auth  *security.Table
	state *control.State

	mu       sync.RWMutex
	sessions map[security.ConnID]dispatch.Conn
	sink     Sink

	logger  *slog.Logger
	capture log.Logger
	timeNow func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithCapture sets the protocol capture logger.
func WithCapture(l log.Logger) Option {
	return func(g *Gateway) { g.capture = log.OrNoop(l) }
}

// New creates a gateway over the dispatcher's device. It registers itself
// as the nonce notifier of the auth table and as a control state notifier.
func New(disp *dispatch.Dispatcher, opts ...Option) *Gateway {
	dev := disp.Device()
	g := &Gateway{
		disp:     disp,
		auth:     dev.Auth,
		state:    dev.State,
		sessions: make(map[security.ConnID]dispatch.Conn),
		logger:   slog.Default(),
		capture:  log.NoopLogger{},
		timeNow:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.auth.OnNonce(g.notifyNonce)
	g.state.AddNotifier(control.NotifierFunc(g.notifyStatus))
	return g
}

// SetSink installs the notification sink.
func (g *Gateway) SetSink(s Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = s
}

// Connect registers a connection and issues its nonce. The nonce is pushed
// through the sink before Connect returns.
func (g *Gateway) Connect(conn dispatch.Conn) error {
	g.mu.Lock()
	if _, ok := g.sessions[conn.ID]; ok {
		g.mu.Unlock()
		return ErrDuplicateConnection
	}
	g.sessions[conn.ID] = conn
	g.mu.Unlock()

	if err := g.auth.OnConnect(conn.ID); err != nil {
		g.mu.Lock()
		delete(g.sessions, conn.ID)
		g.mu.Unlock()
		g.logState(conn, "", "REFUSED", err.Error())
		return err
	}
	g.logState(conn, "", "CONNECTED", "")
	return nil
}

// Disconnect clears the connection's auth entry.
func (g *Gateway) Disconnect(id security.ConnID) {
	g.mu.Lock()
	conn, ok := g.sessions[id]
	delete(g.sessions, id)
	g.mu.Unlock()

	g.auth.Clear(id)
	if ok {
		g.logState(conn, "CONNECTED", "DISCONNECTED", "")
	}
}

// Connections returns the number of registered connections.
func (g *Gateway) Connections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Read returns the value of char for conn.
func (g *Gateway) Read(_ context.Context, id security.ConnID, char Characteristic) ([]byte, Status) {
	value, status := g.read(id, char)
	g.logAccess(id, "READ", char, status, len(value))
	return value, status
}

func (g *Gateway) read(id security.ConnID, char Characteristic) ([]byte, Status) {
	if !char.Known() {
		return nil, StatusAttributeNotFound
	}
	if char == CharAuthKey || char == CharPacket {
		return nil, StatusReadNotPermitted
	}
	if char == CharNonce {
		nonce, ok := g.auth.Nonce(id)
		if !ok {
			return nil, StatusUnlikely
		}
		return nonce, StatusOK
	}

	if !g.auth.IsAuthenticated(id) {
		return nil, StatusInsufficientAuthentication
	}
	field, _ := char.controlField()
	if char.isControl() {
		return EncodeValue(field, g.state.Desired().Get(field)), StatusOK
	}
	return EncodeValue(field, g.state.Reported().Get(field)), StatusOK
}

// Write applies value to char on behalf of conn.
func (g *Gateway) Write(ctx context.Context, id security.ConnID, char Characteristic, value []byte) Status {
	status := g.write(ctx, id, char, value)
	g.logAccess(id, "WRITE", char, status, len(value))
	return status
}

func (g *Gateway) write(ctx context.Context, id security.ConnID, char Characteristic, value []byte) Status {
	if !char.Known() {
		return StatusAttributeNotFound
	}
	if char.isStatus() {
		return StatusWriteNotPermitted
	}

	switch char {
	case CharNonce:
		return g.writeDigest(id, value)
	case CharAuthKey:
		return g.writeAuthKey(ctx, id, value)
	}

	if !g.auth.IsAuthenticated(id) {
		g.logger.Warn("write rejected, not authenticated", "conn", id, "char", char.String())
		return StatusInsufficientAuthentication
	}

	if char == CharPacket {
		if len(value) == 0 || len(value) > packet.MaxSize {
			return StatusInvalidLength
		}
		if res := g.disp.HandlePacket(ctx, g.session(id), value); !res.Handled {
			return StatusUnlikely
		}
		return StatusOK
	}

	field, _ := char.controlField()
	v, ok := DecodeValue(field, value)
	if !ok {
		return StatusInvalidLength
	}
	if err := g.state.Apply(field, int64(v)); err != nil {
		return StatusUnlikely
	}
	return StatusOK
}

func (g *Gateway) writeDigest(id security.ConnID, value []byte) Status {
	if len(value) != security.DigestSize {
		return StatusInvalidLength
	}
	err := g.auth.VerifyResponse(id, value)

	ev := &log.AuthEvent{Step: "digest-verified", Method: security.MethodNonceHMAC.String(), Success: err == nil}
	if err != nil {
		ev.Reason = err.Error()
	}
	g.logAuth(id, ev)

	if err != nil {
		return StatusInsufficientAuthentication
	}
	return StatusOK
}

func (g *Gateway) writeAuthKey(ctx context.Context, id security.ConnID, value []byte) Status {
	if len(value) == 0 || len(value) > packet.MaxSize {
		return StatusInvalidLength
	}
	intent := packet.Parse(value)
	if intent.Kind != packet.KindAuthKey {
		return StatusUnlikely
	}
	if res := g.disp.HandleIntent(ctx, g.session(id), intent); !res.Handled {
		return StatusInsufficientAuthentication
	}
	return StatusOK
}

func (g *Gateway) session(id security.ConnID) dispatch.Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if conn, ok := g.sessions[id]; ok {
		return conn
	}
	return dispatch.Conn{ID: id}
}

func (g *Gateway) notifyNonce(id security.ConnID, nonce []byte) {
	g.mu.RLock()
	sink := g.sink
	g.mu.RUnlock()

	g.logAuth(id, &log.AuthEvent{Step: "nonce-issued", Success: true})
	if sink != nil {
		sink.Notify(id, CharNonce, nonce)
	}
}

// notifyStatus pushes a reported value to every authenticated connection.
func (g *Gateway) notifyStatus(field control.Field, v uint32) {
	g.mu.RLock()
	sink := g.sink
	ids := make([]security.ConnID, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	if sink == nil {
		return
	}
	char := StatusCharacteristic(field)
	value := EncodeValue(field, v)
	for _, id := range ids {
		if g.auth.IsAuthenticated(id) {
			sink.Notify(id, char, value)
		}
	}
}

func (g *Gateway) logAccess(id security.ConnID, op string, char Characteristic, status Status, size int) {
	conn := g.session(id)
	g.capture.Log(log.Event{
		Timestamp: g.timeNow(),
		SessionID: conn.SessionID,
		Handle:    uint16(id),
		Direction: log.DirectionIn,
		Layer:     log.LayerGateway,
		Category:  log.CategoryAccess,
		Access: &log.AccessEvent{
			Operation:      op,
			Characteristic: char.String(),
			Status:         status.String(),
			Size:           size,
		},
	})
}

func (g *Gateway) logAuth(id security.ConnID, ev *log.AuthEvent) {
	conn := g.session(id)
	g.capture.Log(log.Event{
		Timestamp: g.timeNow(),
		SessionID: conn.SessionID,
		Handle:    uint16(id),
		Layer:     log.LayerGateway,
		Category:  log.CategoryAuth,
		Auth:      ev,
	})
}

func (g *Gateway) logState(conn dispatch.Conn, from, to, reason string) {
	g.capture.Log(log.Event{
		Timestamp:  g.timeNow(),
		SessionID:  conn.SessionID,
		Handle:     uint16(conn.ID),
		Layer:      log.LayerGateway,
		Category:   log.CategoryState,
		RemoteAddr: conn.RemoteAddr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}
