package core

import "sync"

// State is the lifecycle position of a realtime connection.
type State int

const (
	// StateConnected is an open connection that has not identified yet.
	StateConnected State = iota
	// StateIdentified is a connection bound to a user.
	StateIdentified
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultEventBuffer is the outbound queue size for a client.
const DefaultEventBuffer = 16

// Client is one realtime connection as seen by the core layer.
// Events is never closed; writers stop on Done.
type Client struct {
	ID     string
	Events chan *Event

	mu     sync.Mutex
	state  State
	userID int64
	done   chan struct{}
}

// NewClient constructs a client in StateConnected.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
		state:  StateConnected,
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the bound user, if identified.
func (c *Client) UserID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.state == StateIdentified
}

// Done is closed when the client reaches StateClosed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// deliver queues ev without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) deliver(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// identify moves the client to StateIdentified and returns the previously bound user.
func (c *Client) identify(userID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return 0, ErrClientClosed
	}
	prev := c.userID
	c.userID = userID
	c.state = StateIdentified
	return prev, nil
}

// close moves the client to StateClosed. It reports false if it was already closed.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	close(c.done)
	return true
}
