package engine

import (
	"sync"
	"time"
)

// Cooldown remembers when a key last fired. Callers pass the current time so
// the same instance works under a simulated clock.
type Cooldown struct {
	mu      sync.Mutex
	last    map[string]time.Time
	sweepAt int
}

// minSweep is the key count at which expired entries are first pruned.
const minSweep = 64

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time), sweepAt: minSweep}
}

func (c *Cooldown) Allow(key string, now time.Time, cooldown time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok && cooldown > 0 {
		if now.Sub(ts) < cooldown {
			return false
		}
	} else if !ok && len(c.last) >= c.sweepAt {
		c.sweepLocked(now, cooldown)
	}
	c.last[key] = now
	return true
}

// sweepLocked drops keys whose cooldown has run out. The next sweep waits
// until the map has doubled again.
func (c *Cooldown) sweepLocked(now time.Time, cooldown time.Duration) {
	for k, ts := range c.last {
		if now.Sub(ts) >= cooldown {
			delete(c.last, k)
		}
	}
	c.sweepAt = max(minSweep, 2*len(c.last))
}

func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

func (c *Cooldown) Last(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.last[key]
	return ts, ok
}

func (c *Cooldown) Reset() {
	c.mu.Lock()
	c.last = make(map[string]time.Time)
	c.sweepAt = minSweep
	c.mu.Unlock()
}
