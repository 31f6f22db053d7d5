// internal/kernel/tickclock.go

package kernel

import (
	"sync/atomic"
	"time"
)

// TickClock is the simulated clock interrupt: it calls tick on its own
// goroutine at a fixed interval and counts the calls atomically.
type TickClock struct {
	tick  func()
	count atomic.Int64
	stop  chan struct{}
	done  chan struct{}
}

// NewTickClock creates a clock but does not start it.
func NewTickClock(tick func()) *TickClock {
	return &TickClock{
		tick: tick,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins ticking at the given interval.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.tick()
				c.count.Add(1)
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop stops the clock and waits for the last tick to return.
func (c *TickClock) Stop() {
	close(c.stop)
	<-c.done
}

// Count returns the number of ticks delivered.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}
