package transport

import (
	"time"

	"github.com/gorilla/websocket"
)

// Keep-alive defaults.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 10 * time.Second
)

// KeepAliveConfig configures WebSocket liveness checks.
type KeepAliveConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
}

// DefaultKeepAliveConfig returns the default configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval: DefaultPingInterval,
		PongTimeout:  DefaultPongTimeout,
	}
}

// DetectionDelay is the longest a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	return c
}

// startKeepAlive arms the read deadline and pings conn from a goroutine
// until stop is closed. Every pong pushes the deadline forward; a missed
// deadline fails the pending ReadMessage. It must be called before the
// connection's read loop starts.
func startKeepAlive(conn *websocket.Conn, cfg KeepAliveConfig, stop <-chan struct{}) {
	cfg = cfg.withDefaults()

	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(cfg.DetectionDelay()))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	go func() {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.PongTimeout)); err != nil {
					return
				}
			}
		}
	}()
}
