package alert

import (
	"sync"
	"time"
)

// Cooldown enforces a minimum interval between alerts. The zero value is not
// usable; create one with NewCooldown.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	fired  bool
}

// NewCooldown returns a cooldown that is ready immediately.
func NewCooldown(window time.Duration) *Cooldown {
	if window < 0 {
		window = 0
	}
	return &Cooldown{window: window}
}

// TryAcquire reports whether an alert may fire at now. On success the window
// restarts at now within the same critical section; otherwise the remaining
// wait is returned and nothing changes.
func (c *Cooldown) TryAcquire(now time.Time) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rem := c.remainingLocked(now); rem > 0 {
		return false, rem
	}
	c.last = now
	c.fired = true
	return true, 0
}

// Remaining returns how long until the next alert is allowed.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked(now)
}

// Window is the configured cooldown duration.
func (c *Cooldown) Window() time.Duration { return c.window }

func (c *Cooldown) remainingLocked(now time.Time) time.Duration {
	if !c.fired {
		return 0
	}
	elapsed := now.Sub(c.last)
	if elapsed >= c.window {
		return 0
	}
	return c.window - elapsed
}
