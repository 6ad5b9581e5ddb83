package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fanlink/fanlink-go/pkg/gatt"
)

// Client defaults.
const (
	DefaultConnectTimeout     = 10 * time.Second
	DefaultNotificationBuffer = 32
)

// ErrUnexpectedResponse is returned for a malformed device message.
var ErrUnexpectedResponse = errors.New("unexpected response")

// ClientConfig configures a client connection.
type ClientConfig struct {
	// TLS enables TLS for TCP connections and configures wss:// dials.
	TLS *tls.Config

	MaxMessageSize     uint32
	ConnectTimeout     time.Duration
	NotificationBuffer int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.NotificationBuffer <= 0 {
		c.NotificationBuffer = DefaultNotificationBuffer
	}
	return c
}

// Client issues characteristic reads and writes. Requests are serialized;
// notifications are delivered on Notifications.
type Client struct {
	conn MessageConn

	reqMu     sync.Mutex
	responses chan ServerMessage
	notes     chan Notification

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// DialTCP connects to a device over TCP.
func DialTCP(ctx context.Context, address string, cfg ClientConfig) (*Client, error) {
	cfg = cfg.withDefaults()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	var (
		conn net.Conn
		err  error
	)
	if cfg.TLS != nil {
		d := &tls.Dialer{Config: cfg.TLS}
		conn, err = d.DialContext(ctx, "tcp", address)
	} else {
		d := &net.Dialer{}
		conn, err = d.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return NewClient(NewStreamConn(conn, cfg.MaxMessageSize), cfg), nil
}

// DialWebSocketClient connects to a device over WebSocket.
func DialWebSocketClient(ctx context.Context, url string, cfg ClientConfig) (*Client, error) {
	cfg = cfg.withDefaults()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	mc, err := DialWebSocket(ctx, url, cfg.TLS, cfg.MaxMessageSize)
	if err != nil {
		return nil, err
	}
	return NewClient(mc, cfg), nil
}

// NewClient runs a client over an established connection.
func NewClient(mc MessageConn, cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		conn:      mc,
		responses: make(chan ServerMessage, 1),
		notes:     make(chan Notification, cfg.NotificationBuffer),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Notifications returns the notification stream. It is closed when the
// connection ends. Notifications are dropped while the buffer is full.
func (c *Client) Notifications() <-chan Notification {
	return c.notes
}

// Read reads char. A non-OK status is returned as *gatt.StatusError.
func (c *Client) Read(ctx context.Context, char gatt.Characteristic) ([]byte, error) {
	msg, err := c.roundTrip(ctx, Request{Op: OpRead, Char: char})
	if err != nil {
		return nil, err
	}
	if err := msg.Status.Err(); err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

// Write writes value to char. A non-OK status is returned as
// *gatt.StatusError.
func (c *Client) Write(ctx context.Context, char gatt.Characteristic, value []byte) error {
	msg, err := c.roundTrip(ctx, Request{Op: OpWrite, Char: char, Payload: value})
	if err != nil {
		return err
	}
	return msg.Status.Err()
}

// roundTrip sends one request and waits for its response. A cancelled
// context closes the client, since the late response would otherwise be
// taken for the next request's.
func (c *Client) roundTrip(ctx context.Context, req Request) (ServerMessage, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	select {
	case <-c.done:
		return ServerMessage{}, c.closedErr()
	default:
	}

	if err := c.conn.WriteMessage(EncodeRequest(req)); err != nil {
		return ServerMessage{}, err
	}

	select {
	case msg := <-c.responses:
		return msg, nil
	case <-c.done:
		return ServerMessage{}, c.closedErr()
	case <-ctx.Done():
		c.Close()
		return ServerMessage{}, ctx.Err()
	}
}

func (c *Client) readLoop() {
	defer close(c.notes)

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		msg, err := DecodeServerMessage(data)
		if err != nil {
			c.fail(fmt.Errorf("%w: %w", ErrUnexpectedResponse, err))
			return
		}

		if msg.Kind == KindNotification {
			select {
			case c.notes <- Notification{Char: msg.Char, Value: msg.Payload}:
			default:
			}
			continue
		}

		select {
		case c.responses <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	c.Close()
}

func (c *Client) closedErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, c.err)
	}
	return ErrConnectionClosed
}

// Close closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
