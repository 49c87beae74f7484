//
//  internal/requestinfo/requestinfo.go
//
//  Per-request visitor metadata: a user-agent fingerprint and a best-effort
//  geolocation.  The submission handlers log these next to every gate
//  rejection so bot traffic can be told apart from impatient people.
//  The structs are inert and safe to log or JSON-encode.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup, optional)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	surfer "github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// UA holds the parsed user-agent properties.
type UA struct {
	Browser     string // "BrowserChrome" trimmed to "Chrome"
	Version     string // "124.0.6367"
	OS          string // "macOS", "Windows", "Android", ...
	OSVersion   string
	Device      string // "Desktop", "Phone", "Tablet", "Bot", ...
	IsBot       bool
	PrimaryLang string // first Accept-Language tag, lower-cased
}

// Geo holds IP-based hints.  Fields are empty when no database is loaded
// or the address is unknown.
type Geo struct {
	IP         net.IP
	CountryISO string
	City       string
}

// RequestInfo is attached to the request context by Enrich.
type RequestInfo struct {
	UA        UA
	Geo       Geo
	Timestamp time.Time
}

type ctxKey struct{}

// FromContext returns the value stored by Enrich, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// WithContext stores info in ctx.
func WithContext(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

/*──────────────────────────── geo database ─────────────────────────────────*/

// GeoDB wraps a MaxMind City reader.  A nil *GeoDB is valid and performs
// no lookups.
type GeoDB struct {
	r *geoip2.Reader
}

// OpenGeo opens the GeoLite2-City database at path.  An empty path returns
// a nil *GeoDB and no error.
func OpenGeo(path string) (*GeoDB, error) {
	if path == "" {
		return nil, nil
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geo db: %w", err)
	}
	return &GeoDB{r: r}, nil
}

// Close releases the database.
func (g *GeoDB) Close() error {
	if g == nil || g.r == nil {
		return nil
	}
	return g.r.Close()
}

// Lookup returns best-effort Geo data for ip.
func (g *GeoDB) Lookup(ip net.IP) Geo {
	if g == nil || g.r == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := g.r.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{IP: ip, CountryISO: rec.Country.IsoCode, City: rec.City.Names["en"]}
}

/*──────────────────────────── UA parsing ───────────────────────────────────*/

// ParseUA converts raw headers into a UA.
func ParseUA(uaHeader, acceptLang string) UA {
	u := surfer.Parse(uaHeader)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}
	return UA{
		Browser:     strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:     versionString(u.Browser.Version),
		OS:          osName,
		OSVersion:   versionString(u.OS.Version),
		Device:      deviceString(u.DeviceType),
		IsBot:       u.IsBot(),
		PrimaryLang: primaryLang(acceptLang),
	}
}

// versionString renders 17.0.0 as "17", 17.3.0 as "17.3", and 0.0.0 as "".
func versionString(v surfer.Version) string {
	switch {
	case v.Major == 0 && v.Minor == 0 && v.Patch == 0:
		return ""
	case v.Patch != 0:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	case v.Minor != 0:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(v.Major)
}

func deviceString(dt surfer.DeviceType) string {
	switch dt {
	case surfer.DeviceComputer:
		return "Desktop"
	case surfer.DevicePhone:
		return "Phone"
	case surfer.DeviceTablet:
		return "Tablet"
	case surfer.DeviceConsole:
		return "Console"
	case surfer.DeviceWearable:
		return "Wearable"
	case surfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}

// primaryLang extracts the first language tag before any ";q=" weight.
func primaryLang(al string) string {
	if al == "" {
		return ""
	}
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}
