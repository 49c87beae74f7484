// cmd/web/main.go
//
// Foundation site form service – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load env vars (host-wide file → conf/.env fallback), then the typed
//     config (YAML → AGRSITE_ env → vault: secrets).
//
//  2. Start the daily rotating logger (tees to console in a TTY or when
//     log.tee is set).
//
//  3. Build the form registry, token signer, gate store, intake transport,
//     and checkout.
//
//  4. Run the HTTP server, the gate evictor, the checkout sweeper, and the
//     rate-limit sweeper under one errgroup.  SIGINT or SIGTERM cancels
//     the group and the server drains gracefully.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/agrsite/internal/api"
	"github.com/yanizio/agrsite/internal/config"
	"github.com/yanizio/agrsite/internal/form"
	"github.com/yanizio/agrsite/internal/formguard"
	"github.com/yanizio/agrsite/internal/intake"
	"github.com/yanizio/agrsite/internal/logger"
	"github.com/yanizio/agrsite/internal/payment"
	"github.com/yanizio/agrsite/internal/requestinfo"
	"github.com/yanizio/agrsite/internal/server"
	"github.com/yanizio/agrsite/internal/session"
)

const serverEnvPath = "/usr/local/etc/agrsite/global.env"

// loadEnv prefers the host-wide env file; conf/.env is read by the config
// loader itself.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
	}
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Paths.Root, cfg.Log.Level, cfg.Log.Tee || runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 1.  Domain components ───────────────────────────────────────────
	//
	geo, err := requestinfo.OpenGeo(cfg.Geo.DBPath)
	if err != nil {
		logOut.Warnw("geo lookups disabled", "err", err)
	}
	defer geo.Close()

	forms, err := form.LoadDefaults(resolvePath(cfg.Paths.Root, cfg.Forms.DefinitionsDir))
	if err != nil {
		logOut.Fatalw("load form definitions", "err", err)
	}

	signer, err := form.NewSigner([]byte(cfg.Security.TokenSecret), cfg.Security.TokenMaxAge)
	if err != nil {
		logOut.Fatalw("form token signer", "err", err)
	}

	guards := formguard.NewStore(formguard.StoreOptions{
		Gate: formguard.Options{
			MinDwell: time.Duration(cfg.Security.MinSubmitSeconds * float64(time.Second)),
			Cooldown: cfg.Security.Cooldown,
		},
		IdleTTL:     cfg.Security.IdleTTL,
		LimitMax:    cfg.Security.AttemptLimit,
		LimitWindow: cfg.Security.AttemptWindow,
	})

	endpoints := make(map[string]string, len(forms.IDs()))
	for _, id := range forms.IDs() {
		endpoints[id] = cfg.Endpoint(id)
	}
	transport := intake.NewHTTPTransport(intake.Options{
		Endpoints: endpoints,
		Mode:      intake.Mode(cfg.Intake.Mode),
		Timeout:   cfg.Intake.Timeout,
	})
	for _, id := range forms.IDs() {
		if !transport.Has(id) && id != "donation" {
			logOut.Warnw("no intake endpoint configured", "form", id)
		}
	}

	checkout := payment.NewScriptCheckout(payment.Config{
		ScriptURL:   cfg.Payment.ScriptURL,
		KeySecret:   cfg.Payment.KeySecret,
		CheckScript: true,
	})
	switch {
	case cfg.Payment.KeyID == "":
		logOut.Warnw("payment.key_id not set, donations disabled")
	case cfg.Payment.KeySecret == "":
		logOut.Warnw("payment.key_secret not set, donations are recorded unverified")
	}

	//
	// ── 2.  HTTP surface ────────────────────────────────────────────────
	//
	a := api.New(api.Deps{
		Config:   cfg,
		Log:      logOut,
		Forms:    forms,
		Signer:   signer,
		Guards:   guards,
		Intake:   transport,
		Checkout: checkout,
		Sessions: &session.Manager{Secure: cfg.HTTP.CookieSecure},
		Geo:      geo,
	})
	srv := server.New(cfg.HTTP, a.Router())

	//
	// ── 3.  Run until signalled ─────────────────────────────────────────
	//
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, logOut)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(ctx, srv) })
	g.Go(func() error { return guards.Run(ctx) })
	g.Go(func() error { return checkout.Run(ctx) })
	g.Go(func() error { return a.Run(ctx) })

	logOut.Infow("form service started", "forms", forms.IDs(), "intake_mode", transport.Mode())
	if err := g.Wait(); err != nil {
		logOut.Errorw("shutdown with error", "err", err)
		os.Exit(1)
	}
	logOut.Infow("form service stopped")
}

// resolvePath anchors a relative directory at root.  Empty stays empty.
func resolvePath(root, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
