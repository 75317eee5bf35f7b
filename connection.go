package webmod

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Lifecycle is the process-wide serving state: whether new requests are
// still accepted and how many units of work are running across all
// connections.
type Lifecycle struct {
	unavailable atomic.Bool
	running     atomic.Int64
}

// NewLifecycle returns a lifecycle that accepts requests.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// SetUnavailable makes the pipeline answer new requests with 503.
func (l *Lifecycle) SetUnavailable() {
	l.unavailable.Store(true)
}

// Unavailable reports whether the server is shutting down.
func (l *Lifecycle) Unavailable() bool {
	return l.unavailable.Load()
}

// Running returns the number of units of work in progress.
func (l *Lifecycle) Running() int64 {
	return l.running.Load()
}

// Track counts a unit of work that belongs to no connection, such as a
// background job. The returned func ends it exactly once. A nil Lifecycle
// tracks nothing.
func (l *Lifecycle) Track() func() {
	if l == nil {
		return func() {}
	}
	l.running.Add(1)
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			l.running.Add(-1)
		}
	}
}

// drainPollInterval is how often Drain re-checks the running counter.
const drainPollInterval = 10 * time.Millisecond

// Drain blocks until no work is running or ctx is done.
func (l *Lifecycle) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		if l.running.Load() <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrDrainTimeout
		case <-ticker.C:
		}
	}
}

// ConnectionContext is the state shared by every request on one
// connection. The closed flag is set once by the transport when the peer
// goes away and is read by stream producers.
type ConnectionContext struct {
	ClientIP string

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	inFlight  atomic.Int64
	lifecycle *Lifecycle
}

// NewConnectionContext creates the context for a newly accepted connection.
// lifecycle may be nil.
func NewConnectionContext(clientIP string, lifecycle *Lifecycle) *ConnectionContext {
	return &ConnectionContext{ClientIP: clientIP, lifecycle: lifecycle, done: make(chan struct{})}
}

// Close marks the connection closed. It is safe to call more than once.
func (c *ConnectionContext) Close() {
	c.closed.Store(true)
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed when the connection closes.
func (c *ConnectionContext) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether the connection has closed.
func (c *ConnectionContext) IsClosed() bool {
	return c.closed.Load()
}

// InFlight returns the number of units of work running on this connection.
func (c *ConnectionContext) InFlight() int64 {
	return c.inFlight.Load()
}

// begin counts a unit of work; the returned func ends it exactly once.
func (c *ConnectionContext) begin() func() {
	c.inFlight.Add(1)
	if c.lifecycle != nil {
		c.lifecycle.running.Add(1)
	}
	var done atomic.Bool
	return func() {
		if !done.CompareAndSwap(false, true) {
			return
		}
		c.inFlight.Add(-1)
		if c.lifecycle != nil {
			c.lifecycle.running.Add(-1)
		}
	}
}
