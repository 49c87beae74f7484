// internal/security/fields.go
//
// Field-level predicates shared by every form schema.
//
// Context
//   Each predicate is total: any string in, a bool out, no panics.  Schema
//   code in internal/form decides which predicate applies to which field and
//   what message the visitor sees.
//
// Notes
//   •  Phone numbers follow the Indian mobile plan: ten digits, leading 6–9.
//   •  PAN is the Indian tax identifier, AAAAA9999A, matched in uppercase.
//
//------------------------------------------------------------------------------

package security

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxEmailLength is the upper bound applied by IsValidEmail.
const MaxEmailLength = 255

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^[6-9]\d{9}$`)
	panRe   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

// IsValidEmail checks for a local@domain.tld shape no longer than 255 bytes.
func IsValidEmail(email string) bool {
	return len(email) <= MaxEmailLength && HasEmailShape(email)
}

// HasEmailShape is IsValidEmail without the length bound.
func HasEmailShape(email string) bool { return emailRe.MatchString(email) }

// IsValidPhone strips whitespace and expects exactly ten digits starting
// with 6, 7, 8, or 9.
func IsValidPhone(phone string) bool {
	return phoneRe.MatchString(StripSpace(phone))
}

// IsValidPAN canonicalises to uppercase before matching.
func IsValidPAN(pan string) bool {
	return panRe.MatchString(strings.ToUpper(pan))
}

// StripSpace removes every Unicode whitespace rune.
func StripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeInput trims s, truncates it to maxLen runes, and drops angle
// brackets.  maxLen <= 0 means 1000.
func SanitizeInput(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 1000
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxLen {
		s = string([]rune(s)[:maxLen])
	}
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}

// EscapeHTML escapes the five HTML-significant characters.
func EscapeHTML(s string) string { return html.EscapeString(s) }
