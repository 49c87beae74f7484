// internal/api/router.go
//
// HTTP surface.
//
// Context
//   The router is the only place where the form subsystem, the security
//   gate, the intake transport, and the checkout meet a real request.
//   Handlers stay thin: decode, resolve the form session, delegate to
//   form.Submitter or payment.Checkout, then map the outcome to a status.
//
//   Middleware order matters:
//     RequestID → RealIP → RequestLogger → Recoverer → ForceHTTPS →
//     Security → requestinfo.Enrich → IPLimiter
//   RealIP must precede the limiter and Enrich, which both key on
//   RemoteAddr.
//
//------------------------------------------------------------------------------

package api

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/agrsite/internal/config"
	"github.com/yanizio/agrsite/internal/form"
	"github.com/yanizio/agrsite/internal/formguard"
	"github.com/yanizio/agrsite/internal/intake"
	"github.com/yanizio/agrsite/internal/middleware"
	"github.com/yanizio/agrsite/internal/payment"
	"github.com/yanizio/agrsite/internal/requestinfo"
	"github.com/yanizio/agrsite/internal/session"
)

//go:embed assets/*
var assetFS embed.FS

// Deps is everything the handlers need.  All fields except Geo are
// required.
type Deps struct {
	Config   *config.Config
	Log      *zap.SugaredLogger
	Forms    *form.Registry
	Signer   *form.Signer
	Guards   *formguard.Store
	Intake   intake.Transport
	Checkout *payment.ScriptCheckout
	Sessions *session.Manager
	Geo      *requestinfo.GeoDB
}

// API owns the router and its background state.
type API struct {
	Deps
	limiter *middleware.IPLimiter
}

// New wires an API from d.
func New(d Deps) *API {
	if d.Log == nil {
		d.Log = zap.S()
	}
	return &API{
		Deps:    d,
		limiter: middleware.NewIPLimiter(d.Config.HTTP.RateLimitRPS, d.Config.HTTP.RateLimitBurst),
	}
}

// Run sweeps idle rate-limit buckets until ctx ends.
func (a *API) Run(ctx context.Context) error { return a.limiter.Run(ctx) }

// Router builds the chi handler tree.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.RequestLogger(a.Log),
		chimw.Recoverer,
		middleware.ForceHTTPS(a.Config.HTTP.ForceHTTPS),
		middleware.Security,
		requestinfo.Enrich(a.Geo),
		a.limiter.Limit,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	static, _ := fs.Sub(assetFS, "assets")
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(static))))

	r.Route("/forms", func(r chi.Router) {
		r.Get("/", a.listForms)
		r.Get("/{id}", a.renderForm)
		r.Post("/{id}", a.submitForm)
		r.Get("/{id}/status", a.formStatus)
	})

	r.Get("/donate", a.donatePage)
	r.Post("/donate/checkout", a.openCheckout)
	r.Route("/donate/payments/{handle}", func(r chi.Router) {
		r.Post("/", a.paymentSucceeded)
		r.Post("/failed", a.paymentFailed)
		r.Post("/dismiss", a.paymentDismissed)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
