package formguard

import (
	"sync"
	"time"
)

// AttemptLimiter rejects the (Max+1)th action inside a rolling Window.
// Each call-site owns its own instance; there is no package state.
type AttemptLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	attempts []time.Time // oldest first
}

// NewAttemptLimiter returns a limiter.  now may be nil.
func NewAttemptLimiter(max int, window time.Duration, now func() time.Time) *AttemptLimiter {
	if now == nil {
		now = time.Now
	}
	return &AttemptLimiter{max: max, window: window, now: now}
}

// CheckLimit reports whether another attempt is allowed right now.
func (l *AttemptLimiter) CheckLimit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.attempts) < l.max
}

// RecordAttempt logs an attempt at the current time.
func (l *AttemptLimiter) RecordAttempt() {
	l.mu.Lock()
	l.attempts = append(l.attempts, l.now())
	l.mu.Unlock()
}

// Remaining returns how many attempts are left in the current window.
func (l *AttemptLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	if n := l.max - len(l.attempts); n > 0 {
		return n
	}
	return 0
}

// RetryAfter returns how long until the oldest attempt leaves the window.
// Zero when an attempt is allowed now.
func (l *AttemptLimiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.attempts) < l.max || len(l.attempts) == 0 {
		return 0
	}
	return l.attempts[0].Add(l.window).Sub(now)
}

// prune drops attempts older than the window.  Caller holds mu.
func (l *AttemptLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.attempts) && l.attempts[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.attempts = append(l.attempts[:0], l.attempts[i:]...)
	}
}
