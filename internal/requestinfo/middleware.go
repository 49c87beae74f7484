// internal/requestinfo/middleware.go
//
// HTTP middleware that attaches *RequestInfo to each request.
//
/*
Context
--------
Runs after chi's RealIP, so r.RemoteAddr already holds the client address
a trusted proxy reported.  For every request it parses the User-Agent and
Accept-Language headers, performs an optional GeoLite2 lookup, and stores
the result in the request context.

At debug level each invocation logs the client IP, country, browser,
device class, and bot flag.
*/
package requestinfo

import (
	"net"
	"net/http"
	"time"

	"github.com/yanizio/agrsite/internal/logger"
)

// Enrich returns a middleware using geo for lookups.  geo may be nil.
func Enrich(geo *GeoDB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := &RequestInfo{
				UA:        ParseUA(r.UserAgent(), r.Header.Get("Accept-Language")),
				Geo:       geo.Lookup(clientIP(r)),
				Timestamp: time.Now().UTC(),
			}

			logger.FromContext(r.Context()).Debugw("request info",
				"ip", info.Geo.IP,
				"country", info.Geo.CountryISO,
				"browser", info.UA.Browser,
				"device", info.UA.Device,
				"bot", info.UA.IsBot,
				"path", r.URL.Path,
			)

			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), info)))
		})
	}
}

func clientIP(r *http.Request) net.IP {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(r.RemoteAddr)
}
