package util

import (
	"context"
	"sync"
)

// ConnTracker counts the open connections of one database and lets version
// changes and drops wait until the database is idle.
//
// Thread-safety: all methods are safe for concurrent use.
type ConnTracker struct {
	mu      sync.Mutex
	open    int
	dropped bool
	idle    chan struct{} // closed and replaced whenever a connection is released
}

func NewConnTracker() *ConnTracker {
	return &ConnTracker{idle: make(chan struct{})}
}

// Lock locks the tracker. Callers that need to act while no connection can be
// added (upgrade, drop) hold the lock until they are done.
func (c *ConnTracker) Lock() { c.mu.Lock() }

// Unlock unlocks the tracker.
func (c *ConnTracker) Unlock() { c.mu.Unlock() }

// OpenLocked returns the number of open connections. The tracker must be locked.
func (c *ConnTracker) OpenLocked() int { return c.open }

// AcquireLocked registers a new connection. The tracker must be locked.
func (c *ConnTracker) AcquireLocked() { c.open++ }

// DroppedLocked reports whether the database has been dropped. The tracker must be locked.
func (c *ConnTracker) DroppedLocked() bool { return c.dropped }

// MarkDroppedLocked marks the database as dropped. The tracker must be locked.
func (c *ConnTracker) MarkDroppedLocked() { c.dropped = true }

// Release unregisters a connection and wakes up waiters. It returns the number of
// connections still open.
func (c *ConnTracker) Release() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ReleaseLocked()
}

// ReleaseLocked is Release for callers holding the lock.
func (c *ConnTracker) ReleaseLocked() int {
	if c.open > 0 {
		c.open--
	}
	close(c.idle)
	c.idle = make(chan struct{})
	return c.open
}

// WaitIdleLocked waits until at most `allowed` connections are open. The tracker must
// be locked on entry and is locked again when WaitIdleLocked returns, also on error.
// onBlocked is invoked once if the caller has to wait.
func (c *ConnTracker) WaitIdleLocked(ctx context.Context, allowed int, onBlocked func()) error {
	notified := false
	for c.open > allowed {
		if !notified && onBlocked != nil {
			notified = true
			onBlocked()
		}

		idle := c.idle
		c.mu.Unlock()
		select {
		case <-idle:
			c.mu.Lock()
		case <-ctx.Done():
			c.mu.Lock()
			return ctx.Err()
		}
	}
	return nil
}
