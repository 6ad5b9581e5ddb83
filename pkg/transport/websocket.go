package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fanlink/fanlink-go/pkg/version"
)

// DefaultWebSocketPath is where the daemon mounts Handler.
const DefaultWebSocketPath = "/ws"

// Handler returns an http.Handler that upgrades requests to WebSocket and
// serves them. Clients must offer a supported "fanlink/N" subprotocol.
func (s *Server) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		Subprotocols:    version.SupportedSubprotocols(),
		ReadBufferSize:  int(s.config.MaxMessageSize) + 16,
		WriteBufferSize: int(s.config.MaxMessageSize) + 16,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.running.Load() {
			http.Error(w, "server stopped", http.StatusServiceUnavailable)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			s.config.Logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if ws.Subprotocol() == "" {
			s.config.Logger.Warn("websocket client offered no supported subprotocol", "remote", r.RemoteAddr)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseProtocolError, "unsupported subprotocol"),
				time.Now().Add(time.Second))
			ws.Close()
			return
		}

		stop := make(chan struct{})
		defer close(stop)
		startKeepAlive(ws, s.config.KeepAlive, stop)

		s.Serve(NewWebSocketConn(ws, s.config.MaxMessageSize))
	})
}

// DialWebSocket opens a WebSocket MessageConn to url (ws:// or wss://).
func DialWebSocket(ctx context.Context, url string, tlsConf *tls.Config, maxSize uint32) (*WebSocketConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     version.SupportedSubprotocols(),
		TLSClientConfig:  tlsConf,
	}

	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	if _, err := version.MajorFromSubprotocol(ws.Subprotocol()); err != nil {
		ws.Close()
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}
	return NewWebSocketConn(ws, maxSize), nil
}
