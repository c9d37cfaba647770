package realtime

import (
	"sync"

	v1 "scrblit/shared/contracts/scribble/v1"
)

// Client represents one connected websocket session.
//
// Send is never closed by the server: the hub may still be fanning out to a client
// that is concurrently shutting down. done signals the transport goroutines to stop,
// and Close is idempotent.
type Client struct {
	ID   string
	Send chan v1.Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(id string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ID:   id,
		Send: make(chan v1.Message, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// trySend enqueues m without blocking. It reports false when the queue is full.
func (c *Client) trySend(m v1.Message) bool {
	select {
	case c.Send <- m:
		return true
	default:
		return false
	}
}
