package framework

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrChannelClosed is returned by Get once a channel has been closed without a
// failure reason and every value has been drained.
var ErrChannelClosed = errors.New("result channel closed")

// ChannelState reports where a channel is in its lifecycle.
type ChannelState int

const (
	// ChannelPending: no value yet, producer still working.
	ChannelPending ChannelState = iota
	// ChannelReady: at least one value is waiting.
	ChannelReady
	// ChannelFailed: closed with a reason and drained.
	ChannelFailed
	// ChannelClosed: closed cleanly and drained.
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelReady:
		return "ready"
	case ChannelFailed:
		return "failed"
	case ChannelClosed:
		return "closed"
	default:
		return "pending"
	}
}

// Channel hands results from a task's worker goroutine to a consumer on
// another goroutine. Put never blocks. Get blocks until a value is available
// or the channel is closed; values drain oldest first.
//
// A channel with a positive capacity keeps only the newest values: putting
// into a full channel discards the oldest pending value.
//
// The usage contract is one producer and one consumer per channel.
type Channel[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool
	reason   error
	signal   chan struct{}
	done     chan struct{}
}

// NewChannel creates a channel. capacity <= 0 means unbounded.
func NewChannel[T any](capacity int) *Channel[T] {
	return &Channel[T]{
		capacity: capacity,
		signal:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ProcessChannel carries at most one live process handle.
type ProcessChannel = Channel[Process]

// DiagnosticChannel carries diagnostics in emission order.
type DiagnosticChannel = Channel[DiagnosticRecord]

// NewProcessChannel returns a single-slot channel for process handles.
func NewProcessChannel() *ProcessChannel {
	return NewChannel[Process](1)
}

// NewDiagnosticChannel returns an unbounded FIFO channel for diagnostics.
func NewDiagnosticChannel() *DiagnosticChannel {
	return NewChannel[DiagnosticRecord](0)
}

// Put stores v. It reports false when the channel is already closed.
func (c *Channel[T]) Put(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.capacity > 0 && len(c.items) >= c.capacity {
		c.items = c.items[1:]
	}
	c.items = append(c.items, v)
	c.broadcastLocked()
	return true
}

// Close marks the channel as finished. A nil reason is a clean close; a
// non-nil reason is reported by Get once pending values are drained. Only the
// first Close takes effect.
func (c *Channel[T]) Close(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
	close(c.done)
	c.broadcastLocked()
}

func (c *Channel[T]) broadcastLocked() {
	close(c.signal)
	c.signal = make(chan struct{})
}

// IsEmpty reports whether no value is pending.
func (c *Channel[T]) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}

// Len returns the number of pending values.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// State returns the current lifecycle state.
func (c *Channel[T]) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case len(c.items) > 0:
		return ChannelReady
	case !c.closed:
		return ChannelPending
	case c.reason != nil:
		return ChannelFailed
	default:
		return ChannelClosed
	}
}

// Err returns the close reason, or nil while open or after a clean close.
func (c *Channel[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done is closed when the producer closes the channel.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

// TryGet removes and returns the oldest value without blocking.
func (c *Channel[T]) TryGet() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popLocked()
}

func (c *Channel[T]) popLocked() (T, bool) {
	var zero T
	if len(c.items) == 0 {
		return zero, false
	}
	v := c.items[0]
	c.items[0] = zero
	c.items = c.items[1:]
	return v, true
}

// Get removes and returns the oldest value, blocking until one is put, the
// channel is closed, or ctx ends.
func (c *Channel[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		c.mu.Lock()
		if v, ok := c.popLocked(); ok {
			c.mu.Unlock()
			return v, nil
		}
		if c.closed {
			reason := c.reason
			c.mu.Unlock()
			if reason != nil {
				return zero, reason
			}
			return zero, ErrChannelClosed
		}
		wait := c.signal
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// GetTimeout is Get bounded by d.
func (c *Channel[T]) GetTimeout(d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Get(ctx)
}

// Drain removes and returns every pending value without blocking.
func (c *Channel[T]) Drain() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.items))
	for {
		v, ok := c.popLocked()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
