package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned after Close.
var ErrConnectionClosed = errors.New("connection closed")

// MessageConn moves whole messages. Implementations allow one concurrent
// reader and any number of concurrent writers.
type MessageConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
	RemoteAddr() string
}

// StreamConn frames messages over a byte stream.
type StreamConn struct {
	conn         net.Conn
	reader       *FrameReader
	writer       *FrameWriter
	writeTimeout time.Duration
}

// NewStreamConn wraps a stream connection.
func NewStreamConn(conn net.Conn, maxSize uint32) *StreamConn {
	return &StreamConn{
		conn:   conn,
		reader: NewFrameReader(conn, maxSize),
		writer: NewFrameWriter(conn, maxSize),
	}
}

// ReadMessage reads one frame.
func (c *StreamConn) ReadMessage() ([]byte, error) { return c.reader.ReadFrame() }

// SetWriteTimeout bounds every later WriteMessage. Zero disables the bound.
// Call it before the connection is shared.
func (c *StreamConn) SetWriteTimeout(d time.Duration) { c.writeTimeout = d }

// WriteMessage writes one frame.
func (c *StreamConn) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.writer.WriteFrame(data)
}

// Close closes the stream.
func (c *StreamConn) Close() error { return c.conn.Close() }

// RemoteAddr returns the peer address.
func (c *StreamConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// WebSocketConn carries one message per binary WebSocket message.
type WebSocketConn struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

// NewWebSocketConn wraps a WebSocket connection and sets its read limit.
func NewWebSocketConn(conn *websocket.Conn, maxSize uint32) *WebSocketConn {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	conn.SetReadLimit(int64(maxSize))
	return &WebSocketConn{conn: conn}
}

// ReadMessage returns the next binary message; other message types are
// skipped.
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrConnectionClosed
			}
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			return nil, ErrMessageEmpty
		}
		return data, nil
	}
}

// WriteMessage sends one binary message.
func (c *WebSocketConn) WriteMessage(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SetWriteTimeout bounds every later WriteMessage. Zero disables the bound.
func (c *WebSocketConn) SetWriteTimeout(d time.Duration) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.writeTimeout = d
}

// Close sends a close frame and closes the connection.
func (c *WebSocketConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *WebSocketConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

var (
	_ MessageConn = (*StreamConn)(nil)
	_ MessageConn = (*WebSocketConn)(nil)
)
