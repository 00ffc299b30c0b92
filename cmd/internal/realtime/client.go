package realtime

import (
	"sync"
)

// Client is one connected socket.
//
// Send is never closed by the hub; done signals shutdown and Close is idempotent.
type Client struct {
	ID        string
	AccountID string
	SessionID string
	Send      chan Message

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	ended  bool
	reason string
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(id, accountID, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ID:        id,
		AccountID: accountID,
		SessionID: sessionID,
		Send:      make(chan Message, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// End closes the client because its session is over.
func (c *Client) End(reason string) {
	c.mu.Lock()
	if !c.ended {
		c.ended = true
		c.reason = reason
	}
	c.mu.Unlock()
	c.Close()
}

// Ended reports whether End was called and why.
func (c *Client) Ended() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended, c.reason
}

// offer enqueues m without blocking.
func (c *Client) offer(m Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- m:
		return true
	default:
		return false
	}
}
