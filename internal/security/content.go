// internal/security/content.go
//
// Content-pattern filter for free-text form input.
//
// Context
//   Every string a visitor submits is scanned for a short list of patterns
//   associated with script injection before it is forwarded to an intake
//   endpoint.  This is a coarse tripwire, not a sanitizer.  Markup that is
//   later rendered goes through internal/sanitize instead.
//
// Notes
//   False positives are accepted.  “onward=” trips the handler pattern.
//
//------------------------------------------------------------------------------

package security

import "regexp"

// suspiciousPatterns are compiled once and matched case-insensitively.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script\b`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`), // inline handlers: onclick=, onload =
	regexp.MustCompile(`(?i)data:`),
	regexp.MustCompile(`(?i)vbscript:`),
}

// ContainsSuspiciousContent reports whether text matches any blocked pattern.
func ContainsSuspiciousContent(text string) bool {
	for _, p := range suspiciousPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
