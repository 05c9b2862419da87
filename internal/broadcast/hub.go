package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub owns the registry of open connections and runs the fan-out loop.
// Registry mutation and iteration go through the hub's mutex; the event loop
// dispatches to a point-in-time snapshot so a slow or vanished client can
// only ever lose its own delivery.
type Hub struct {
	logger *zap.SugaredLogger

	register   chan *Conn
	unregister chan *Conn
	events     chan Event

	mu    sync.RWMutex
	conns map[*Conn]bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub returns a hub ready to Run
func NewHub(logger *zap.SugaredLogger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:     logger,
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		events:     make(chan Event, 64),
		conns:      make(map[*Conn]bool),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a freshly upgraded connection to the hub, which adds it to
// the registry and starts its pumps. From that point the connection is Open.
func (h *Hub) Register(c *Conn) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		c.sock.Close()
	}
}

// Unregister asks the hub to drop the connection. Safe to call more than
// once; only the first call finds the connection registered.
func (h *Hub) Unregister(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Broadcast enqueues the event for delivery to every open connection.
// It must be called only after the originating store mutation committed.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}

// ConnCount returns the number of currently open connections
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Run executes the hub loop: registrations, removals and event fan-out.
// Call it in its own goroutine; it returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.conns[c] = true
			total := len(h.conns)
			h.mu.Unlock()
			h.logger.Infof("Connection %s from %s opened, %d total", c.id, c.addr, total)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				c.writePump()
			}()
			go func() {
				defer h.wg.Done()
				c.readPump()
			}()

		case c := <-h.unregister:
			h.drop(c, "closed by peer")

		case ev := <-h.events:
			h.fanOut(ev)
		}
	}
}

// fanOut delivers the event to a snapshot of the registry. Sends are
// non-blocking against each connection's buffered queue; a full queue means
// the client is too slow and its connection is dropped.
func (h *Hub) fanOut(ev Event) {
	conns := h.snapshot()
	h.logger.Debugf("Broadcasting %s to %d connections", ev.Kind, len(conns))

	var failed []*Conn
	for _, c := range conns {
		if !h.trySend(c, ev.Payload) {
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		h.drop(c, "send queue full")
	}
}

func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

// trySend queues the payload for the connection without blocking. The
// registry check and the channel send happen under the read lock so drop
// cannot close the queue in between.
func (h *Hub) trySend(c *Conn, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.conns[c] || c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// drop transitions the connection to Closed: removes it from the registry
// and closes its send queue, which terminates the write pump.
func (h *Hub) drop(c *Conn, reason string) {
	h.mu.Lock()
	if !h.conns[c] {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	c.closed = true
	total := len(h.conns)
	h.mu.Unlock()

	close(c.send)
	h.logger.Infof("Connection %s from %s dropped (%s), %d remaining", c.id, c.addr, reason, total)
}

// closeAll empties the registry on shutdown. Closing the send queue ends the
// write pump, closing the socket ends the read pump.
func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		delete(h.conns, c)
		c.closed = true
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		close(c.send)
		c.sock.Close()
	}
	h.logger.Infof("Closed %d connections", len(conns))
}

// Shutdown stops the hub loop, closes every connection and waits up to
// timeout for the pump goroutines to finish.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timed out waiting for connection pumps")
		return context.DeadlineExceeded
	}
}
