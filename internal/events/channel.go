package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Next once the channel is closed and fully drained.
var ErrClosed = errors.New("event channel closed")

// Channel is an unbounded FIFO of events between one producer (the task
// worker) and one consumer (the interactive side).
//
// Push never blocks: a stalled consumer must not stall a subprocess read loop.
// Events come out in exactly the order they went in, none are dropped.
type Channel struct {
	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	closed bool
}

// NewChannel creates an empty, open channel.
func NewChannel() *Channel {
	return &Channel{
		wake: make(chan struct{}, 1),
	}
}

// Push appends an event. Returns false if the channel is already closed, in
// which case the event is discarded.
func (c *Channel) Push(e Event) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, e)
	c.mu.Unlock()

	c.signal()
	return true
}

// Close marks the channel as finished. Events already queued stay available
// to the consumer. Safe to call multiple times.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.signal()
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Next blocks until an event is available, the channel is closed and empty
// (ErrClosed), or ctx is done.
func (c *Channel) Next(ctx context.Context) (Event, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			e := c.pop()
			c.mu.Unlock()
			return e, nil
		}
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-c.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drain returns every queued event without blocking. The result is empty when
// nothing is pending.
func (c *Channel) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = nil
	return out
}

// Exhausted reports whether the channel is closed and nothing is left to read.
func (c *Channel) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed && len(c.queue) == 0
}

// Len returns the number of queued events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// pop removes the head of the queue. Caller holds c.mu.
func (c *Channel) pop() Event {
	e := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	if len(c.queue) == 0 {
		c.queue = nil
	}
	return e
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
