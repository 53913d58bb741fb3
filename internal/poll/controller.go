// Package poll owns the recurring status-check timer for a payment session.
// All polling goes through one Controller; there is never more than one live
// timer per controller, which is what keeps the overlapping-timer bug class
// out of the session state machine.
package poll

import (
	"sync"
	"time"
)

// Attempts reports attempt-budget usage after a recorded attempt.
type Attempts struct {
	Used      int
	Exhausted bool
}

// Controller runs a repeating timer and tracks the attempt budget. The timer
// handle is private to the controller; callers interact only through Start,
// Stop, CheckNow and RecordAttempt.
type Controller struct {
	mu          sync.Mutex
	interval    time.Duration
	maxAttempts int

	attempts int
	ticker   *time.Ticker
	done     chan struct{}
	onTick   func()
}

// NewController creates a stopped controller with the given schedule.
func NewController(interval time.Duration, maxAttempts int) *Controller {
	return &Controller{interval: interval, maxAttempts: maxAttempts}
}

// Start begins the repeating timer. Each tick invokes onTick from the timer
// goroutine. Calling Start while a timer is already active is a no-op; a
// second timer is never created.
func (c *Controller) Start(onTick func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		return
	}
	c.onTick = onTick
	c.ticker = time.NewTicker(c.interval)
	c.done = make(chan struct{})
	go c.run(c.ticker, c.done)
}

func (c *Controller) run(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			fn := c.onTick
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

// Stop cancels the active timer. It is safe to call when no timer is active
// and safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.done)
	c.ticker = nil
	c.done = nil
	c.onTick = nil
}

// Running reports whether a timer is currently active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticker != nil
}

// CheckNow invokes onResult immediately, out of band of the timer schedule.
// The running timer's schedule and attempt accounting are untouched beyond
// whatever the check itself does. Returns false if no timer is active.
func (c *Controller) CheckNow(onResult func()) bool {
	c.mu.Lock()
	running := c.ticker != nil
	c.mu.Unlock()
	if !running {
		return false
	}
	onResult()
	return true
}

// RecordAttempt increments the attempt counter and reports whether the budget
// is now exhausted. Called once per completed scheduled check.
func (c *Controller) RecordAttempt() Attempts {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts < c.maxAttempts {
		c.attempts++
	}
	return Attempts{Used: c.attempts, Exhausted: c.attempts >= c.maxAttempts}
}

// AttemptsUsed returns the number of recorded attempts.
func (c *Controller) AttemptsUsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Reset clears the attempt counter. The timer must be stopped first.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = 0
}
