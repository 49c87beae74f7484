// Package sanitize cleans untrusted text before it is echoed into HTML or
// forwarded to a spreadsheet-backed intake endpoint.
//
// Three bluemonday policies cover the cases the site needs: a permissive
// allow-list for trusted rich content, a narrow one for visitor-written
// text, and a strict one that strips every tag.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy = newHTMLPolicy()
	userPolicy = newUserPolicy()
	textPolicy = bluemonday.StrictPolicy()
)

func newHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"strong", "em", "b", "i", "u",
		"br", "hr",
		"blockquote", "code", "pre",
		"table", "thead", "tbody", "tr", "th", "td",
		"span", "div",
	)
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[\w\- ]+$`)).Globally()
	p.AllowAttrs("id").Matching(regexp.MustCompile(`^[\w\-]+$`)).Globally()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowAttrs("rel").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireNoFollowOnLinks(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

func newUserPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em")
	return p
}

// HTML keeps a safe subset of markup for trusted rich content.
func HTML(dirty string) string { return htmlPolicy.Sanitize(dirty) }

// UserContent keeps only paragraphs, line breaks, and emphasis.
func UserContent(dirty string) string { return userPolicy.Sanitize(dirty) }

// Text strips all markup.
func Text(dirty string) string { return textPolicy.Sanitize(dirty) }

// IsValidURL accepts absolute http and https URLs only.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Platform names a social network for ShareURL.
type Platform string

const (
	Facebook Platform = "facebook"
	Twitter  Platform = "twitter"
	LinkedIn Platform = "linkedin"
)

// ShareURL builds a share link for target.  Unknown platforms and invalid
// targets yield "#".
func ShareURL(p Platform, target, title string) string {
	if !IsValidURL(target) {
		return "#"
	}
	u, t := url.QueryEscape(target), url.QueryEscape(title)
	switch p {
	case Facebook:
		return "https://www.facebook.com/sharer/sharer.php?u=" + u
	case Twitter:
		return "https://twitter.com/intent/tweet?url=" + u + "&text=" + t
	case LinkedIn:
		return "https://www.linkedin.com/shareArticle?mini=true&url=" + u + "&title=" + t
	default:
		return "#"
	}
}

// ForSpreadsheet prefixes a single quote when s would be read as a formula
// by spreadsheet software.
func ForSpreadsheet(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	switch trimmed[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// StripUnprintable drops control runes, keeping tab, newline, and carriage
// return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// Payload returns a copy of p with every string (including strings inside
// lists) passed through StripUnprintable and ForSpreadsheet.
func Payload(p map[string]any) map[string]any {
	clean := func(s string) string { return ForSpreadsheet(StripUnprintable(s)) }
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch val := v.(type) {
		case string:
			out[k] = clean(val)
		case []string:
			list := make([]string, len(val))
			for i, s := range val {
				list[i] = clean(s)
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}
