package requestinfo

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.6367.91 Safari/537.36"

func TestParseUA(t *testing.T) {
	ua := ParseUA(chromeMac, "en-IN,en;q=0.9")
	if ua.Browser != "Chrome" || ua.OS != "macOS" || ua.Device != "Desktop" || ua.IsBot {
		t.Fatalf("ua = %+v", ua)
	}
	if ua.PrimaryLang != "en-in" {
		t.Fatalf("lang = %q", ua.PrimaryLang)
	}

	bot := ParseUA("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "")
	if !bot.IsBot {
		t.Fatalf("googlebot not flagged: %+v", bot)
	}
}

func TestPrimaryLang(t *testing.T) {
	for in, want := range map[string]string{
		"":                 "",
		"hi":               "hi",
		"en-US;q=0.8, hi":  "en-us",
		" Ta-IN , en;q=.5": "ta-in",
	} {
		if got := primaryLang(in); got != want {
			t.Errorf("primaryLang(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNilGeoDB(t *testing.T) {
	g, err := OpenGeo("")
	if err != nil || g != nil {
		t.Fatalf("OpenGeo(\"\") = %v, %v", g, err)
	}
	geo := g.Lookup(net.ParseIP("203.0.113.7"))
	if geo.CountryISO != "" || !geo.IP.Equal(net.ParseIP("203.0.113.7")) {
		t.Fatalf("geo = %+v", geo)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenGeo("/nonexistent/GeoLite2-City.mmdb"); err == nil {
		t.Fatal("missing database accepted")
	}
}

func TestEnrich(t *testing.T) {
	var got *RequestInfo
	h := Enrich(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/forms/contact", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("User-Agent", chromeMac)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("no RequestInfo in context")
	}
	if got.UA.Browser != "Chrome" || got.Geo.IP.String() != "198.51.100.4" || got.Timestamp.IsZero() {
		t.Fatalf("info = %+v", got)
	}
}
