// internal/middleware/security.go
//
// Security-header middleware.
//
// Sets the usual hardening headers on every response:
//
//   • Strict-Transport-Security  –  forces HTTPS (2 years)
//   • Content-Security-Policy   –  self-only, plus the checkout vendor
//   • X-Frame-Options           –  click-jacking defence
//   • X-Content-Type-Options    –  MIME-sniffing defence
//   • Referrer-Policy           –  drops path/query from Referer
//   • Permissions-Policy        –  disables powerful features
//
// Notes
// -----
// • Headers are written before next.ServeHTTP, because anything added after
//   the first body write is silently dropped.  Handlers may still override
//   a value with Header().Set.
// • The checkout widget loads its script from checkout.razorpay.com and
//   opens an iframe on api.razorpay.com, so both are allowed.

package middleware

import "net/http"

const (
	hsts = "max-age=63072000; includeSubDomains"
	csp  = "default-src 'self'; " +
		"script-src 'self' https://checkout.razorpay.com; " +
		"frame-src https://api.razorpay.com https://checkout.razorpay.com; " +
		"connect-src 'self' https://api.razorpay.com https://lumberjack.razorpay.com; " +
		"img-src 'self' data: https:; style-src 'self' 'unsafe-inline'; " +
		"object-src 'none'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'"
	xfo   = "DENY"
	nosn  = "nosniff"
	refer = "strict-origin-when-cross-origin"
	perm  = "geolocation=(), microphone=(), camera=(), payment=(self \"https://api.razorpay.com\")"
)

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Strict-Transport-Security", hsts)
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Frame-Options", xfo)
		h.Set("X-Content-Type-Options", nosn)
		h.Set("Referrer-Policy", refer)
		h.Set("Permissions-Policy", perm)
		next.ServeHTTP(w, r)
	})
}
