package formguard

import "time"

// CooldownWindow blocks new submissions for Duration after it is armed.
// Expiry is computed from elapsed time on every check; nothing has to tear
// it down.  The zero value is an unarmed window with no duration.
type CooldownWindow struct {
	Duration time.Duration

	armedAt time.Time
	armed   bool
}

// Arm starts the window at now.
func (c *CooldownWindow) Arm(now time.Time) {
	c.armedAt = now
	c.armed = true
}

// Active reports whether now falls inside the window.
func (c *CooldownWindow) Active(now time.Time) bool {
	return c.Remaining(now) > 0
}

// Remaining returns the time left in the window, or zero when inactive.
func (c *CooldownWindow) Remaining(now time.Time) time.Duration {
	if !c.armed {
		return 0
	}
	left := c.Duration - now.Sub(c.armedAt)
	if left <= 0 {
		return 0
	}
	return left
}

// ArmedAt returns the arm time and whether the window was ever armed.
func (c *CooldownWindow) ArmedAt() (time.Time, bool) { return c.armedAt, c.armed }
