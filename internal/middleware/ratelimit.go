// internal/middleware/ratelimit.go
//
// Per-client token-bucket limiter for state-changing requests.
//
// Context
//   One golang.org/x/time/rate limiter per client IP.  Only unsafe methods
//   are counted; page and fragment GETs are never throttled.  The key is
//   r.RemoteAddr with the port stripped, so chi's RealIP must run first
//   when the site sits behind a proxy.  Idle buckets are dropped by Sweep.
//
//------------------------------------------------------------------------------

package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yanizio/agrsite/internal/logger"
	"github.com/yanizio/agrsite/internal/problem"
)

const (
	defaultRPS      = 1.0
	defaultBurst    = 5
	defaultIdleTTL  = 10 * time.Minute
	limitedResponse = "Too many requests. Please slow down."
)

type bucket struct {
	lim        *rate.Limiter
	lastAccess time.Time
}

// IPLimiter hands out one rate.Limiter per client key.
type IPLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewIPLimiter returns a limiter allowing rps sustained and burst peak
// requests per client.  Non-positive values fall back to 1 rps, burst 5.
func NewIPLimiter(rps float64, burst int) *IPLimiter {
	if rps <= 0 {
		rps = defaultRPS
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &IPLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *IPLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastAccess = l.now()
	return b.lim
}

// Allow reports whether key may proceed now.
func (l *IPLimiter) Allow(key string) bool { return l.get(key).AllowN(l.now(), 1) }

// Sweep removes buckets idle for longer than ttl.
func (l *IPLimiter) Sweep(ttl time.Duration) int {
	cutoff := l.now().Add(-ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Run sweeps idle buckets until ctx ends.
func (l *IPLimiter) Run(ctx context.Context) error {
	t := time.NewTicker(defaultIdleTTL / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.Sweep(defaultIdleTTL)
		}
	}
}

// Limit throttles unsafe methods per client.
func (l *IPLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		key := clientKey(r)
		if !l.Allow(key) {
			logger.FromContext(r.Context()).Infow("rate limited", "client", key, "path", r.URL.Path)
			problem.TooMany(w, time.Duration(float64(time.Second)/float64(l.rps)), limitedResponse)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
