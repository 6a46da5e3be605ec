package events

import (
	"context"
	"iter"
	"sync"
	"time"
)

// Channel is a FIFO queue of records with a one-shot completion signal.
// It is safe for concurrent use by one producer and any number of consumers;
// each record is delivered to exactly one consumer.
type Channel struct {
	mu        sync.Mutex
	backlog   []Record
	done      bool
	listeners []Listener

	// wake is closed and replaced on every state change so that blocked
	// consumers can select on it together with their context.
	wake chan struct{}

	now func() time.Time
}

// NewChannel creates an open, empty Channel.
func NewChannel() *Channel {
	return &Channel{
		backlog:   make([]Record, 0),
		listeners: make([]Listener, 0),
		wake:      make(chan struct{}),
		now:       time.Now,
	}
}

// Push appends a record to the channel. The first push with done set marks the
// channel as done and invokes every registered listener synchronously, in
// registration order. Pushing after that returns ErrChannelDone and the record is
// dropped.
func (c *Channel) Push(event string, payload any, done bool) error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return ErrChannelDone
	}

	c.backlog = append(c.backlog, Record{
		Event:    event,
		Payload:  payload,
		PushedAt: c.now(),
	})

	var listeners []Listener
	if done {
		c.done = true
		listeners = make([]Listener, len(c.listeners))
		copy(listeners, c.listeners)
	}

	close(c.wake)
	c.wake = make(chan struct{})
	c.mu.Unlock()

	// Listeners run outside the lock so they may read from or inspect the channel
	for _, listener := range listeners {
		listener()
	}

	return nil
}

// OnDone registers a listener for the channel's completion. A listener registered
// after completion is invoked immediately.
func (c *Channel) OnDone(listener Listener) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		listener()
		return
	}
	c.listeners = append(c.listeners, listener)
	c.mu.Unlock()
}

// Next removes and returns the oldest record, blocking while the backlog is empty.
// It returns ErrDrained once the channel is done and every record was consumed,
// or ctx.Err() if ctx ends first. The context bounds only this wait; it does not
// cancel the producer.
func (c *Channel) Next(ctx context.Context) (Record, error) {
	for {
		c.mu.Lock()
		if len(c.backlog) > 0 {
			record := c.backlog[0]
			c.backlog[0] = Record{}
			c.backlog = c.backlog[1:]
			c.mu.Unlock()
			return record, nil
		}
		if c.done {
			c.mu.Unlock()
			return Record{}, ErrDrained
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}
}

// All returns an iterator over the channel's records. Iteration stops when the
// channel is done and drained, or when ctx ends.
func (c *Channel) All(ctx context.Context) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for {
			record, err := c.Next(ctx)
			if err != nil {
				return
			}
			if !yield(record) {
				return
			}
		}
	}
}

// Done reports whether the channel has been marked done.
func (c *Channel) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Len returns the number of records waiting to be consumed.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.backlog)
}
