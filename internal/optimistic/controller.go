// Package optimistic wraps mutations with an immediately-applied local
// state update and a timed rollback on failure, keeping a UI responsive
// while the underlying call is in flight.
package optimistic

import (
	"context"
	"sync"
	"time"
)

// DefaultGracePeriod is how long a failed mutation keeps its optimistic
// state visible, alongside the error, before rolling back. The delay avoids
// visual flicker for errors the user might immediately retry.
const DefaultGracePeriod = 2 * time.Second

// Snapshot is the externally visible state of a controller slot.
type Snapshot[S any] struct {
	State      S
	Loading    bool
	Optimistic bool
	Err        error
}

// Controller manages one logical state slot. Concurrent Execute calls on
// the same controller do not interleave rollbacks: a new call cancels any
// rollback pending from a previous failure.
type Controller[S any] struct {
	mu          sync.Mutex
	state       S
	loading     bool
	optimistic  bool
	err         error
	gracePeriod time.Duration
	rollback    *time.Timer
	generation  int
}

// New creates a controller holding initial as its confirmed state.
func New[S any](initial S, gracePeriod time.Duration) *Controller[S] {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &Controller[S]{state: initial, gracePeriod: gracePeriod}
}

// Execute applies update to the current state immediately, then runs op.
// On success the updated state is kept as confirmed. On failure the
// optimistic state stays visible with the error for the grace period, then
// rolls back to the pre-mutation snapshot.
func (c *Controller[S]) Execute(ctx context.Context, update func(S) S, op func(context.Context) error) error {
	c.mu.Lock()
	if c.rollback != nil {
		c.rollback.Stop()
		c.rollback = nil
	}
	c.generation++
	gen := c.generation

	prev := c.state
	c.state = update(c.state)
	c.loading = true
	c.optimistic = true
	c.err = nil
	c.mu.Unlock()

	err := op(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		// A newer Execute superseded this one; its outcome wins.
		return err
	}

	c.loading = false
	if err == nil {
		c.optimistic = false
		return nil
	}

	c.err = err
	c.rollback = time.AfterFunc(c.gracePeriod, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen {
			return
		}
		c.state = prev
		c.optimistic = false
		c.rollback = nil
	})
	return err
}

// Snapshot returns the current slot state.
func (c *Controller[S]) Snapshot() Snapshot[S] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot[S]{State: c.state, Loading: c.loading, Optimistic: c.optimistic, Err: c.err}
}
