package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fanlink/fanlink-go/pkg/dispatch"
	"github.com/fanlink/fanlink-go/pkg/gatt"
	"github.com/fanlink/fanlink-go/pkg/log"
	"github.com/fanlink/fanlink-go/pkg/security"
)

// DefaultPort is the default TCP port.
const DefaultPort = 7420

// DefaultMaxConnections bounds open connections per server. It is larger
// than the auth table on purpose: the table, not the transport, decides who
// is refused.
const DefaultMaxConnections = 16

// Per-connection output defaults. Notifications are dropped while a
// connection's queue is full; a write stalled past the timeout closes it.
const (
	DefaultSendQueue    = 32
	DefaultWriteTimeout = 5 * time.Second
)

// Server errors.
var (
	ErrServerRunning  = errors.New("server already running")
	ErrTooManyClients = errors.New("too many connections")
	ErrSendQueueFull  = errors.New("send queue full")
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address is the TCP listen address. Empty disables the TCP listener;
	// WebSocket clients can still be served through Handler.
	Address string

	// TLS enables TLS on the TCP listener.
	TLS *tls.Config

	MaxMessageSize uint32
	MaxConnections int
	SendQueue      int
	WriteTimeout   time.Duration
	KeepAlive      KeepAliveConfig

	Logger  *slog.Logger
	Capture log.Logger
}

// Server accepts connections and routes their requests to a gateway.
type Server struct {
	config   ServerConfig
	gw       *gatt.Gateway
	listener net.Listener

	mu         sync.RWMutex
	sessions   map[security.ConnID]*session
	nextHandle uint16

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server and installs it as the gateway's sink.
func NewServer(gw *gatt.Gateway, config ServerConfig) *Server {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultMaxConnections
	}
	if config.SendQueue <= 0 {
		config.SendQueue = DefaultSendQueue
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Capture = log.OrNoop(config.Capture)
	config.KeepAlive = config.KeepAlive.withDefaults()

	s := &Server{
		config:   config,
		gw:       gw,
		sessions: make(map[security.ConnID]*session),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	gw.SetSink(s)
	return s
}

// Start begins accepting TCP connections when an address is configured.
// The server stops when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Swap(true) {
		return ErrServerRunning
	}

	if s.config.Address != "" {
		var (
			ln  net.Listener
			err error
		)
		if s.config.TLS != nil {
			ln, err = tls.Listen("tcp", s.config.Address, s.config.TLS)
		} else {
			ln, err = net.Listen("tcp", s.config.Address)
		}
		if err != nil {
			s.running.Store(false)
			return fmt.Errorf("listen: %w", err)
		}
		s.listener = ln

		s.wg.Add(1)
		go s.acceptLoop()
	}

	context.AfterFunc(ctx, func() { _ = s.Stop() })
	return nil
}

// Stop closes the listener and every connection, then waits for the TCP
// connection goroutines.
func (s *Server) Stop() error {
	s.running.Store(false)
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the TCP listen address, or nil.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Notify implements gatt.Sink.
func (s *Server) Notify(id security.ConnID, char gatt.Characteristic, value []byte) {
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess == nil {
		return
	}
	if err := sess.offer(EncodeNotification(char, value)); err != nil {
		s.config.Logger.Debug("notification dropped", "conn", id, "char", char.String(), "error", err)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.config.Logger.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Serve(NewStreamConn(conn, s.config.MaxMessageSize))
		}()
	}
}

// writeTimeoutSetter is implemented by connections that can bound writes.
type writeTimeoutSetter interface {
	SetWriteTimeout(d time.Duration)
}

// Serve runs one connection until it closes. It blocks.
func (s *Server) Serve(mc MessageConn) {
	if wt, ok := mc.(writeTimeoutSetter); ok {
		wt.SetWriteTimeout(s.config.WriteTimeout)
	}
	sess, err := s.register(mc)
	if err != nil {
		s.config.Logger.Warn("connection refused", "remote", mc.RemoteAddr(), "error", err)
		mc.Close()
		return
	}
	go sess.writeLoop(func(err error) { s.logError(sess, err, "write") })
	defer s.unregister(sess)

	conn := dispatch.Conn{ID: sess.id, SessionID: sess.sessionID, RemoteAddr: sess.remote}
	if err := s.gw.Connect(conn); err != nil {
		s.config.Logger.Warn("connection refused", "conn", sess.id, "remote", sess.remote, "error", err)
		return
	}
	defer s.gw.Disconnect(sess.id)

	s.config.Logger.Info("connection opened", "conn", sess.id, "session", sess.sessionID, "remote", sess.remote)
	s.readLoop(sess)
	s.config.Logger.Info("connection closed", "conn", sess.id, "session", sess.sessionID)
}

func (s *Server) readLoop(sess *session) {
	for {
		data, err := sess.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrConnectionClosed) && !sess.isClosed() {
				s.logError(sess, err, "read")
			}
			return
		}
		sess.logFrame(data, log.DirectionIn)

		req, err := DecodeRequest(data)
		if err != nil {
			s.logError(sess, err, "decode")
			if sess.send(EncodeResponse(gatt.StatusRequestNotSupported, nil)) != nil {
				return
			}
			continue
		}

		var resp []byte
		switch req.Op {
		case OpRead:
			value, status := s.gw.Read(s.ctx, sess.id, req.Char)
			resp = EncodeResponse(status, value)
		case OpWrite:
			resp = EncodeResponse(s.gw.Write(s.ctx, sess.id, req.Char, req.Payload), nil)
		}
		if sess.send(resp) != nil {
			return
		}
	}
}

func (s *Server) register(mc MessageConn) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.config.MaxConnections {
		return nil, ErrTooManyClients
	}
	id := s.allocHandleLocked()

	sess := &session{
		id:        id,
		sessionID: uuid.NewString(),
		remote:    mc.RemoteAddr(),
		conn:      mc,
		capture:   s.config.Capture,
		out:       make(chan []byte, s.config.SendQueue),
		closeCh:   make(chan struct{}),
		written:   make(chan struct{}),
	}
	s.sessions[id] = sess
	return sess, nil
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	sess.close()
	<-sess.written
}

// allocHandleLocked returns the next free non-zero handle. The caller
// guarantees fewer than 65535 sessions.
func (s *Server) allocHandleLocked() security.ConnID {
	for {
		s.nextHandle++
		if s.nextHandle == 0 {
			continue
		}
		id := security.ConnID(s.nextHandle)
		if _, used := s.sessions[id]; !used {
			return id
		}
	}
}

func (s *Server) logError(sess *session, err error, op string) {
	s.config.Logger.Debug("connection error", "conn", sess.id, "op", op, "error", err)
	s.config.Capture.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sess.sessionID,
		Handle:     uint16(sess.id),
		Layer:      log.LayerTransport,
		Category:   log.CategoryError,
		RemoteAddr: sess.remote,
		Error:      &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error(), Context: op},
	})
}

// session is one open connection. Everything it sends goes through out and
// is written by writeLoop, so a peer that stops reading stalls only itself.
type session struct {
	id        security.ConnID
	sessionID string
	remote    string
	conn      MessageConn
	capture   log.Logger
	out       chan []byte

	closeOnce sync.Once
	closeCh   chan struct{}
	written   chan struct{}
}

// send queues a response, waiting for room.
func (c *session) send(data []byte) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	select {
	case c.out <- data:
		return nil
	case <-c.closeCh:
		return ErrConnectionClosed
	}
}

// offer queues a notification unless the queue is full.
func (c *session) offer(data []byte) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// writeLoop writes queued messages until the session closes. A failed
// write closes the session.
func (c *session) writeLoop(onError func(error)) {
	defer close(c.written)
	for {
		select {
		case <-c.closeCh:
			return
		case data := <-c.out:
			if err := c.conn.WriteMessage(data); err != nil {
				if !c.isClosed() {
					onError(err)
				}
				c.close()
				return
			}
			c.logFrame(data, log.DirectionOut)
		}
	}
}

func (c *session) logFrame(data []byte, dir log.Direction) {
	c.capture.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Handle:    uint16(c.id),
		Direction: dir,
		Layer:     log.LayerTransport,
		Category:  log.CategoryFrame,
		Frame:     log.NewFrameEvent(data),
	})
}

func (c *session) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *session) close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.conn.Close()
	})
}

var _ gatt.Sink = (*Server)(nil)
