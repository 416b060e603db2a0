package relay

import "time"

// retryPolicy is the bounded fixed-interval reconnect policy used when the
// transport does not reconnect by itself.
type retryPolicy struct {
	delay       time.Duration
	maxAttempts int
}

// beginRetryLocked starts a retry sequence after an involuntary
// disconnect. It reports the sequence generation and whether one started.
// Caller must hold c.mu.
func (c *Coordinator) beginRetryLocked() (uint64, bool) {
	if c.deliberate || c.autoReconnect || c.retrying {
		return 0, false
	}
	c.generation++
	c.retrying = true
	c.attempts = 0
	c.pending = nil
	return c.generation, true
}

// cancelRetryLocked abandons any retry sequence and resets the counter.
// A check that fires afterwards sees a stale generation and does nothing.
// Caller must hold c.mu.
func (c *Coordinator) cancelRetryLocked() {
	c.generation++
	c.retrying = false
	c.attempts = 0
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// staleLocked reports whether gen no longer identifies a live sequence.
func (c *Coordinator) staleLocked(gen uint64) bool {
	return c.destroyed || !c.retrying || gen != c.generation
}

// attempt issues a connect request and schedules the next check.
func (c *Coordinator) attempt(gen uint64) {
	c.transport.Connect()

	timer := c.scheduler.AfterFunc(c.retry.delay, func() {
		c.check(gen)
	})

	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		timer.Stop()
		return
	}
	c.pending = timer
	c.mu.Unlock()
}

// check runs after each retry delay.
func (c *Coordinator) check(gen uint64) {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()

	if c.transport.IsConnected() {
		c.recover(gen)
		return
	}

	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempts := c.attempts
	if attempts >= c.retry.maxAttempts {
		c.retrying = false
		c.generation++
		c.setOfflineLocked()
		c.enqueueLocked(statusNotification(Offline))
		c.mu.Unlock()

		c.logger.Warn("reconnect attempts exhausted, staying offline",
			"attempts", attempts,
		)
		c.flush()
		return
	}
	c.mu.Unlock()

	c.logger.Info("broker still unreachable, retrying",
		"attempt", attempts,
		"max_attempts", c.retry.maxAttempts,
		"delay", c.retry.delay,
	)
	c.attempt(gen)
}

// recover completes a retry sequence whose check found the link back up.
func (c *Coordinator) recover(gen uint64) {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.markOnlineLocked()
	c.mu.Unlock()

	c.logger.Info("broker reachable again, retry stopped")
	c.flush()

	c.subscribe()
}
