// internal/formguard/gate.go
//
// Form-security gate: honeypot, dwell time, and cooldown in one verdict.
//
// Context
//   One Gate exists per form session (visitor session × form ID).  It holds
//   only the cooldown window; everything else about an attempt arrives in
//   the Attempt value.  The gate cycles Idle → CoolingDown → Idle forever.
//   The CoolingDown → Idle edge is evaluated lazily on each check.
//
// Workflow
//   •  ValidateSubmission checks, in order, honeypot, dwell time, and
//      cooldown, stopping at the first failure.  It never mutates state.
//   •  RecordSubmission arms the cooldown.  Callers invoke it only after the
//      payload was accepted AND transmitted, so a network failure never
//      locks out an immediate retry.
//
// Notes
//   These checks deter unsophisticated bots.  They are advisory, not a
//   security boundary.
//
//------------------------------------------------------------------------------

package formguard

import (
	"math"
	"sync"
	"time"

	"github.com/yanizio/agrsite/internal/security"
)

// Defaults mirror the values the public site has always used.
const (
	DefaultMinDwell = 3 * time.Second
	DefaultCooldown = 30 * time.Second
)

// State is the gate's position in its two-state cycle.
type State int

const (
	StateIdle State = iota
	StateCoolingDown
)

func (s State) String() string {
	if s == StateCoolingDown {
		return "cooling-down"
	}
	return "idle"
}

// Options tunes a Gate.  Zero fields fall back to the defaults.
type Options struct {
	MinDwell time.Duration
	Cooldown time.Duration
	Now      func() time.Time // injectable clock, time.Now when nil
}

// Gate is safe for concurrent use.
type Gate struct {
	minDwell time.Duration
	now      func() time.Time

	mu       sync.Mutex
	cooldown CooldownWindow
	lastSeen time.Time
}

// NewGate returns an idle gate.
func NewGate(opts Options) *Gate {
	if opts.MinDwell <= 0 {
		opts.MinDwell = DefaultMinDwell
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		minDwell: opts.MinDwell,
		now:      opts.Now,
		cooldown: CooldownWindow{Duration: opts.Cooldown},
		lastSeen: opts.Now(),
	}
}

// ValidateSubmission evaluates a without side effects.
func (g *Gate) ValidateSubmission(a Attempt) Verdict {
	if a.Honeypot != "" {
		return reject(ReasonBotDetected)
	}

	now := g.now()
	if !security.LegitimateAt(a.LoadedAt, now, g.minDwell.Seconds()) {
		return reject(ReasonTooFast)
	}

	g.mu.Lock()
	cooling := g.cooldown.Active(now)
	g.mu.Unlock()
	if cooling {
		return reject(ReasonInCooldown)
	}
	return accept()
}

// RecordSubmission arms the cooldown window starting now.
func (g *Gate) RecordSubmission() {
	g.mu.Lock()
	g.cooldown.Arm(g.now())
	g.mu.Unlock()
}

// CheckContentSecurity returns true when text is acceptable.
func (g *Gate) CheckContentSecurity(text string) bool {
	return !security.ContainsSuspiciousContent(text)
}

// CooldownRemaining returns the time left before the next submission is
// allowed, or zero.
func (g *Gate) CooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldown.Remaining(g.now())
}

// RemainingSeconds rounds CooldownRemaining up to whole seconds, so an active
// cooldown never reports zero.
func (g *Gate) RemainingSeconds() int {
	return int(math.Ceil(g.CooldownRemaining().Seconds()))
}

// State reports Idle or CoolingDown as of now.
func (g *Gate) State() State {
	if g.CooldownRemaining() > 0 {
		return StateCoolingDown
	}
	return StateIdle
}

// touch records activity for idle eviction.
func (g *Gate) touch() {
	g.mu.Lock()
	g.lastSeen = g.now()
	g.mu.Unlock()
}

// idleSince reports how long the gate has gone untouched.  A gate that is
// still cooling down never counts as idle.
func (g *Gate) idleSince(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cooldown.Active(now) {
		return 0
	}
	return now.Sub(g.lastSeen)
}
