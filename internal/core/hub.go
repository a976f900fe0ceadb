package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/log"
	"github.com/parleyhq/parley-server/internal/metrics"
)

// Hub owns the live connections and the presence registry.
// Lifecycle transitions (connect, identify, disconnect) are serialized so a
// closing connection can never be rebound after its bindings were released.
type Hub struct {
	presence *Presence
	log      *zerolog.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a hub with an empty presence registry.
func NewHub(logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		presence: NewPresence(),
		log:      logger,
		metrics:  m,
		clients:  make(map[string]*Client),
	}
}

// Presence exposes the registry used for delivery lookups.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Connect registers a freshly accepted connection in StateConnected.
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.log.Debug().Str("conn_id", c.ID).Msg("client connected")
}

// Identify binds the connection to userID. A connection identifying again
// moves to the new user and releases its old binding if still held.
func (h *Hub) Identify(c *Client, userID int64) error {
	if userID <= 0 {
		return ErrInvalidUser
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		if c.State() == StateClosed {
			return ErrClientClosed
		}
		return ErrUnknownClient
	}

	prev, err := c.identify(userID)
	if err != nil {
		return err
	}
	h.presence.Bind(userID, c.ID)
	if prev != 0 && prev != userID {
		h.presence.Release(prev, c.ID)
	}
	h.metrics.SetOnlineUsers(h.presence.Len())

	h.log.Info().Str("conn_id", c.ID).Int64("user_id", userID).Msg("client identified")
	return nil
}

// Disconnect closes the connection and removes every binding still pointing at it.
// Calling it more than once is a no-op.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !c.close() {
		return
	}
	delete(h.clients, c.ID)
	released := h.presence.Unbind(c.ID)

	h.metrics.ConnectionClosed()
	h.metrics.SetOnlineUsers(h.presence.Len())
	h.log.Debug().Str("conn_id", c.ID).Ints64("released", released).Msg("client disconnected")
}

// Emit queues ev on the connection without blocking.
// It reports false when the connection is gone or its buffer is full.
func (h *Hub) Emit(connID string, ev *Event) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.deliver(ev)
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run blocks until ctx is done, then shuts the hub down.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Shutdown()
}

// Shutdown closes all connections and empties the registry.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.clients)
	for id, c := range h.clients {
		if c.close() {
			h.metrics.ConnectionClosed()
		}
		delete(h.clients, id)
	}
	h.presence.Reset()
	h.metrics.SetOnlineUsers(0)

	h.log.Info().Int("clients", n).Msg("hub shut down")
}
