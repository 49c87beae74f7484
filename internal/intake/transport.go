// internal/intake/transport.go
//
// Outbound transport to the external intake endpoints.
//
// Context
//   Every form forwards its translated payload to one HTTP endpoint owned by
//   a third-party automation service.  The body is JSON; the method is POST.
//   Two delivery policies exist:
//
//     •  opaque        – any completed round trip counts as delivered.  The
//                         response is drained and never inspected.  This
//                         matches endpoints that hide status from callers.
//     •  acknowledged  – a non-2xx status is an error and the caller keeps
//                         the submission retryable.
//
//   Network failures, timeouts, and context cancellation are errors in both
//   modes.
//
//------------------------------------------------------------------------------

package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/yanizio/agrsite/internal/logger"
)

// ErrNoEndpoint is returned when a form has no configured intake URL.
var ErrNoEndpoint = errors.New("intake: no endpoint configured for form")

// Mode selects the delivery policy.
type Mode string

const (
	ModeOpaque       Mode = "opaque"
	ModeAcknowledged Mode = "acknowledged"
)

// DefaultTimeout bounds a single transmission when Options.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// Transport forwards one payload for one form.
type Transport interface {
	Transmit(ctx context.Context, formID string, payload map[string]any) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, formID string, payload map[string]any) error

// Transmit calls f.
func (f TransportFunc) Transmit(ctx context.Context, formID string, payload map[string]any) error {
	return f(ctx, formID, payload)
}

// StatusError reports a rejected delivery in acknowledged mode.
type StatusError struct {
	FormID string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("intake %s: endpoint answered %d", e.FormID, e.Code)
}

// Options configures HTTPTransport.
type Options struct {
	Endpoints map[string]string // form ID → URL
	Mode      Mode              // empty means opaque
	Timeout   time.Duration     // per request; zero means DefaultTimeout
	Client    *http.Client      // nil means a pooled cleanhttp client
}

// HTTPTransport posts JSON bodies with a pooled client.  Safe for concurrent
// use.
type HTTPTransport struct {
	endpoints map[string]string
	mode      Mode
	client    *http.Client
}

// NewHTTPTransport builds a transport from opts.
func NewHTTPTransport(opts Options) *HTTPTransport {
	// Copy so the timeout below never leaks into the caller's client.
	var cli *http.Client
	if opts.Client != nil {
		c := *opts.Client
		cli = &c
	} else {
		cli = cleanhttp.DefaultPooledClient()
	}
	if opts.Timeout > 0 {
		cli.Timeout = opts.Timeout
	} else if cli.Timeout == 0 {
		cli.Timeout = DefaultTimeout
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeOpaque
	}
	eps := make(map[string]string, len(opts.Endpoints))
	for id, u := range opts.Endpoints {
		if u != "" {
			eps[id] = u
		}
	}
	return &HTTPTransport{endpoints: eps, mode: mode, client: cli}
}

// Mode reports the delivery policy in effect.
func (t *HTTPTransport) Mode() Mode { return t.mode }

// Has reports whether formID has an endpoint.
func (t *HTTPTransport) Has(formID string) bool {
	_, ok := t.endpoints[formID]
	return ok
}

// Transmit implements Transport.
func (t *HTTPTransport) Transmit(ctx context.Context, formID string, payload map[string]any) error {
	url, ok := t.endpoints[formID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoEndpoint, formID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("intake %s: encode: %w", formID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("intake %s: build request: %w", formID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("intake %s: %w", formID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	logger.FromContext(ctx).Debugw("intake round trip",
		"form", formID,
		"mode", t.mode,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if t.mode == ModeAcknowledged && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return &StatusError{FormID: formID, Code: resp.StatusCode}
	}
	return nil
}
