package broadcast

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// a connection with no inbound frames (including pongs) for this long is
	// treated as dead and closed
	idleTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second

	maxInboundSize = 4096
	sendQueueSize  = 256
)

// Conn is one live client connection. It carries no user or channel
// identity: every open connection receives every event.
type Conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string

	// guarded by hub.mu
	closed bool
}

// NewConn wraps an upgraded websocket connection. Pass the result to
// Hub.Register to start its pumps.
func NewConn(sock *websocket.Conn, hub *Hub, addr string) *Conn {
	sock.SetReadLimit(maxInboundSize)
	return &Conn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan []byte, sendQueueSize),
		hub:  hub,
		addr: addr,
	}
}

// ID returns the connection's registry identifier
func (c *Conn) ID() string {
	return c.id
}

// readPump consumes inbound frames solely as a liveness signal; payloads are
// discarded. Read errors and idle expiry end the connection.
func (c *Conn) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.sock.Close()
	}()

	c.sock.SetReadDeadline(time.Now().Add(idleTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		if _, _, err := c.sock.ReadMessage(); err != nil {
			if !isExpectedClose(err) {
				c.hub.logger.Debugf("Read error on connection %s: %v", c.id, err)
			}
			return
		}
		// inbound content carries no protocol, only proof of life
		c.sock.SetReadDeadline(time.Now().Add(idleTimeout))
	}
}

// writePump flushes the send queue to the socket and keeps the connection
// alive with periodic pings. It exits when the queue is closed by the hub or
// a write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedClose(err) {
					c.hub.logger.Debugf("Write error on connection %s: %v", c.id, err)
				}
				c.hub.Unregister(c)
				return
			}

		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c)
				return
			}
		}
	}
}

// isExpectedClose filters the noise a normal disconnect produces
func isExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
