// internal/session/session.go
//
// Visitor session cookie.
//
// Context
//   A session is nothing more than a random UUID in an HttpOnly cookie.  It
//   keys the per-visitor form gates and attempt limiter in formguard.Store,
//   so the cooldown for one visitor never affects another.  The cookie holds
//   no personal data and is not signed: a forged ID only lands the caller in
//   a fresh, empty session.
//
//   Values that do not parse as a UUID are treated as absent and replaced.
//
//------------------------------------------------------------------------------

package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	CookieName = "agr_session"
	DefaultTTL = 24 * time.Hour
)

// Manager issues and reads the session cookie.
type Manager struct {
	Secure bool          // send only over HTTPS
	TTL    time.Duration // cookie lifetime; DefaultTTL when zero
}

// ID returns the current session ID, if the request carries a valid one.
func (m *Manager) ID(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// Ensure returns the current session ID, minting and setting a new cookie
// when the request has none.
func (m *Manager) Ensure(w http.ResponseWriter, r *http.Request) string {
	if id, ok := m.ID(r); ok {
		return id
	}
	id := uuid.NewString()
	ttl := m.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.Secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl / time.Second),
	})
	return id
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
