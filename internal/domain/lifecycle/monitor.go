package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
)

// watch polls one launched instance until it exits, the slot moves to
// a newer generation, or the controller closes. Each watcher is bound
// to the generation it was started for, so a stop-and-restart cycle
// can never be torn down by a stale watcher.
func (c *Controller) watch(inst Instance, gen uint64) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.isCurrent(gen) {
				return
			}
			if !inst.IsRunning() {
				c.stopIfCurrent(gen)
				return
			}
		}
	}
}

// isCurrent reports whether the slot still holds the given generation.
func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current != nil && c.current.gen == gen
}

// stopIfCurrent runs the stop path for the given generation, but only
// if that generation still occupies the slot. An explicit StopApp and
// a monitor wake-up can race; whoever takes the lock first wins and
// the loser observes an empty or newer slot and does nothing.
func (c *Controller) stopIfCurrent(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current
	if cur == nil || cur.gen != gen {
		return
	}

	c.log.Info("rapp exited on its own, cleaning up", zap.String("rapp", cur.name))
	c.stopLocked(context.Background(), cur, monitoring.TriggerMonitor)
}
