// internal/formguard/store.go
//
// In-memory registry of gates keyed by form session.
//
// Context
//   A form session is one visitor session × one form ID, so the contact
//   form's cooldown never blocks the volunteer form.  Each visitor session
//   also owns one AttemptLimiter that caps total submissions across forms.
//   Entries are created lazily on first hit.  Run sweeps entries that have
//   been idle longer than IdleTTL so abandoned sessions do not accumulate.
//   A gate that is still cooling down is never swept.  Lookup, touch, and
//   eviction share one lock, so a gate handed out by Gate cannot be swept
//   in the same instant and lose the cooldown armed on it.
//
//------------------------------------------------------------------------------

package formguard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/agrsite/internal/metrics"
)

// Static defaults.  Override via StoreOptions.
const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultLimitMax      = 10
	DefaultLimitWindow   = time.Hour
)

// StoreOptions tunes a Store.  Zero fields fall back to defaults.
type StoreOptions struct {
	Gate          Options
	IdleTTL       time.Duration
	SweepInterval time.Duration
	LimitMax      int
	LimitWindow   time.Duration
}

// Store is safe for concurrent use.
type Store struct {
	opts StoreOptions
	now  func() time.Time

	mu       sync.Mutex
	gates    map[string]*Gate // "sid|form" → gate
	limiters sync.Map         // sid → *limiterEntry
}

type limiterEntry struct {
	lim      *AttemptLimiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewStore returns an empty Store.  Call Run to start eviction.
func NewStore(opts StoreOptions) *Store {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.LimitMax <= 0 {
		opts.LimitMax = DefaultLimitMax
	}
	if opts.LimitWindow <= 0 {
		opts.LimitWindow = DefaultLimitWindow
	}
	now := opts.Gate.Now
	if now == nil {
		now = time.Now
	}
	return &Store{opts: opts, now: now, gates: make(map[string]*Gate)}
}

// Gate returns the gate for (sessionID, formID), creating it if needed.
func (s *Store) Gate(sessionID, formID string) *Gate {
	key := sessionID + "|" + formID

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gates[key]; ok {
		g.touch()
		return g
	}
	g := NewGate(s.opts.Gate)
	s.gates[key] = g
	metrics.ActiveFormSessions.Inc()
	return g
}

// Limiter returns the per-session attempt limiter.
func (s *Store) Limiter(sessionID string) *AttemptLimiter {
	fresh := &limiterEntry{
		lim:      NewAttemptLimiter(s.opts.LimitMax, s.opts.LimitWindow, s.now),
		lastSeen: s.now(),
	}
	v, _ := s.limiters.LoadOrStore(sessionID, fresh)
	ent := v.(*limiterEntry)
	ent.mu.Lock()
	ent.lastSeen = s.now()
	ent.mu.Unlock()
	return ent.lim
}

// Run sweeps idle entries every SweepInterval until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	t := time.NewTicker(s.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				zap.S().Debugw("form sessions evicted", "count", n)
			}
		}
	}
}

// Sweep removes idle gates and limiters and returns the number of gates
// removed.
func (s *Store) Sweep() int {
	now := s.now()
	var evicted int

	s.mu.Lock()
	for key, g := range s.gates {
		if g.idleSince(now) > s.opts.IdleTTL {
			delete(s.gates, key)
			evicted++
			metrics.FormSessionEvictTotal.Inc()
			metrics.ActiveFormSessions.Dec()
		}
	}
	s.mu.Unlock()

	s.limiters.Range(func(key, value any) bool {
		ent := value.(*limiterEntry)
		ent.mu.Lock()
		idle := now.Sub(ent.lastSeen)
		ent.mu.Unlock()
		if idle > s.opts.IdleTTL && idle > s.opts.LimitWindow {
			s.limiters.Delete(key)
		}
		return true
	})

	return evicted
}
