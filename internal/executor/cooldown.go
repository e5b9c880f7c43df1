package executor

import (
	"context"
	"sync"
	"time"
)

// cooldown is a shared gate that holds all attempts while the backend has
// asked us to back off (Retry-After on a 429). Extending the cooldown wakes
// blocked waiters so they re-evaluate against the new deadline.
type cooldown struct {
	mu       sync.Mutex
	until    time.Time
	now      func() time.Time
	notifyCh chan struct{}
}

func newCooldown() *cooldown {
	return &cooldown{
		now:      time.Now,
		notifyCh: make(chan struct{}),
	}
}

// wait blocks until the cooldown has lapsed or ctx is done.
func (c *cooldown) wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		now := c.now()
		if !now.Before(c.until) {
			c.mu.Unlock()
			return nil
		}
		until := c.until
		ch := c.notifyCh
		c.mu.Unlock()

		wait := until.Sub(now)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		case <-ch:
			if !timer.Stop() {
				<-timer.C
			}
			continue
		case <-timer.C:
			continue
		}
	}
}

// extend pushes the cooldown deadline out by d from now. Shorter hints never
// shrink an existing cooldown. Waiters are woken so they pick up the change.
func (c *cooldown) extend(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.now().Add(d)
	if until.After(c.until) {
		c.until = until
		c.signalLocked()
	}
}

func (c *cooldown) signalLocked() {
	if c.notifyCh == nil {
		c.notifyCh = make(chan struct{})
		return
	}
	close(c.notifyCh)
	c.notifyCh = make(chan struct{})
}

// remaining reports how long the gate will hold a caller arriving now.
func (c *cooldown) remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.until.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}
