package countdown

import (
	"sync"
	"time"
)

// Clock is the cyclic countdown shown on the payment screen. It is purely
// decorative: nothing expires when it wraps, and it never talks to the
// payment flow or the gateway. Reading it and ticking it may happen from
// different goroutines, hence the mutex.
type Clock struct {
	mu      sync.Mutex
	minutes int
	seconds int

	restartMinutes int
	restartSeconds int

	ticker *time.Ticker
	done   chan struct{}
}

// New creates a clock starting (and restarting after wraparound) at the
// given reading.
func New(minutes, seconds int) *Clock {
	return &Clock{
		minutes:        minutes,
		seconds:        seconds,
		restartMinutes: minutes,
		restartSeconds: seconds,
	}
}

// Tick advances the countdown by one step. Seconds underflow borrows from
// minutes; minutes underflow wraps back to the restart value instead of
// going negative.
func (c *Clock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seconds--
	if c.seconds < 0 {
		c.seconds = 59
		c.minutes--
	}
	if c.minutes < 0 {
		c.minutes = c.restartMinutes
		c.seconds = c.restartSeconds
	}
}

// Reading returns the current (minutes, seconds) display value.
func (c *Clock) Reading() (minutes, seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minutes, c.seconds
}

// Start begins ticking once per interval in a background goroutine.
// Calling Start on a running clock is a no-op.
func (c *Clock) Start(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		return
	}

	c.ticker = time.NewTicker(interval)
	c.done = make(chan struct{})

	go func(t *time.Ticker, done chan struct{}) {
		for {
			select {
			case <-t.C:
				c.Tick()
			case <-done:
				return
			}
		}
	}(c.ticker, c.done)
}

// Stop halts the ticker and releases its goroutine. Safe to call twice.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.done)
	c.ticker = nil
	c.done = nil
}
