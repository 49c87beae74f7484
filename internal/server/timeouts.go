// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts.
//
//   • ReadTimeout   – abort slow-loris headers (default 10 s)
//   • WriteTimeout  – cap total response time (default 30 s; must exceed
//                     the intake client timeout so a slow endpoint still
//                     gets its generic error back to the visitor)
//   • IdleTimeout   – close keep-alives on idle clients (default 60 s)
//
// Values come from the http section of the config; zero means default.
//

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yanizio/agrsite/internal/config"
	"github.com/yanizio/agrsite/internal/logger"
)

const (
	defaultRead     = 10 * time.Second
	defaultWrite    = 30 * time.Second
	defaultIdle     = 60 * time.Second
	defaultShutdown = 10 * time.Second
)

// New constructs an *http.Server from cfg.
func New(cfg config.HTTP, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadTimeout:       orDefault(cfg.ReadTimeout, defaultRead),
		ReadHeaderTimeout: orDefault(cfg.ReadTimeout, defaultRead),
		WriteTimeout:      orDefault(cfg.WriteTimeout, defaultWrite),
		IdleTimeout:       orDefault(cfg.IdleTimeout, defaultIdle),
	}
}

// Serve runs srv until ctx ends, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.FromContext(ctx).Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdown)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
