package sanitize

import (
	"strings"
	"testing"
)

func TestHTML_DropsScriptsAndHandlers(t *testing.T) {
	got := HTML(`<p class="lead" onclick="x()">Hi<script>alert(1)</script></p><iframe src="//evil"></iframe>`)
	if strings.Contains(got, "script") || strings.Contains(got, "onclick") || strings.Contains(got, "iframe") {
		t.Fatalf("HTML kept dangerous markup: %q", got)
	}
	if !strings.Contains(got, `<p class="lead">Hi</p>`) {
		t.Fatalf("HTML dropped allowed markup: %q", got)
	}
}

func TestHTML_LinksRestrictedToSafeSchemes(t *testing.T) {
	if got := HTML(`<a href="javascript:alert(1)">x</a>`); strings.Contains(got, "javascript") {
		t.Fatalf("javascript href survived: %q", got)
	}
	if got := HTML(`<a href="https://example.org">x</a>`); !strings.Contains(got, `href="https://example.org"`) {
		t.Fatalf("https href removed: %q", got)
	}
}

func TestUserContent(t *testing.T) {
	got := UserContent(`<p>Hello <strong>there</strong> <a href="https://x">link</a></p>`)
	if got != `<p>Hello <strong>there</strong> link</p>` {
		t.Fatalf("UserContent = %q", got)
	}
}

func TestText(t *testing.T) {
	if got := Text(`<b>bold</b> text`); got != "bold text" {
		t.Fatalf("Text = %q", got)
	}
}

func TestIsValidURL(t *testing.T) {
	for _, ok := range []string{"http://example.org", "https://example.org/a?b=c"} {
		if !IsValidURL(ok) {
			t.Errorf("IsValidURL(%q) = false", ok)
		}
	}
	for _, bad := range []string{"javascript:alert(1)", "ftp://example.org", "/relative", "not a url", ""} {
		if IsValidURL(bad) {
			t.Errorf("IsValidURL(%q) = true", bad)
		}
	}
}

func TestShareURL(t *testing.T) {
	target := "https://example.org/news?id=1"
	if got := ShareURL(Facebook, target, ""); got != "https://www.facebook.com/sharer/sharer.php?u=https%3A%2F%2Fexample.org%2Fnews%3Fid%3D1" {
		t.Errorf("facebook = %q", got)
	}
	if got := ShareURL(Twitter, target, "Lake cleaning"); !strings.HasSuffix(got, "&text=Lake+cleaning") {
		t.Errorf("twitter = %q", got)
	}
	if got := ShareURL(LinkedIn, target, "x"); !strings.HasPrefix(got, "https://www.linkedin.com/shareArticle?mini=true&url=") {
		t.Errorf("linkedin = %q", got)
	}
	if ShareURL("myspace", target, "") != "#" || ShareURL(Facebook, "javascript:x", "") != "#" {
		t.Error("unknown platform or bad target should yield #")
	}
}

func TestPayload_GuardsFormulas(t *testing.T) {
	out := Payload(map[string]any{
		"name":   "=HYPERLINK(\"http://evil\")",
		"list":   []string{"ok", "+1"},
		"amount": 100.0,
		"note":   "fine\x00",
	})
	if out["name"] != "'=HYPERLINK(\"http://evil\")" {
		t.Errorf("name = %q", out["name"])
	}
	if l := out["list"].([]string); l[0] != "ok" || l[1] != "'+1" {
		t.Errorf("list = %v", l)
	}
	if out["amount"] != 100.0 || out["note"] != "fine" {
		t.Errorf("amount/note = %v / %q", out["amount"], out["note"])
	}
}
