// internal/payment/checkout.go
//
// Checkout lifecycle.
//
// Context
//   LoadScript makes sure the vendor script tag sits in the current page's
//   <head> exactly once.  Open validates options and returns a Handle that
//   stands for one visitor-facing checkout.  With a key secret configured,
//   Open first creates a vendor order; the success callback must then carry
//   that order ID and a valid signature over it.  Without a secret a
//   success is accepted but marked unverified.  The browser reports back
//   through the HTTP layer, which calls Handle.Succeed, Handle.Fail, or
//   Handle.Dismiss; each fires at most once and only the first terminal
//   event counts.
//
//   Handles live in memory and are swept after MaxAge.
//
//------------------------------------------------------------------------------

package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/yanizio/agrsite/internal/head"
	"github.com/yanizio/agrsite/internal/logger"
	"github.com/yanizio/agrsite/internal/metrics"
)

const (
	DefaultScriptURL = "https://checkout.razorpay.com/v1/checkout.js"
	ScriptID         = "razorpay-script"

	// EventPaymentFailed is the only event Handle.On accepts.
	EventPaymentFailed = "payment.failed"

	defaultMaxAge = time.Hour
)

var (
	ErrScriptUnavailable = errors.New("payment: checkout script unavailable")
	ErrUnknownHandle     = errors.New("payment: unknown checkout handle")
	ErrHandleClosed      = errors.New("payment: checkout already settled")
	ErrBadSignature      = errors.New("payment: signature mismatch")
	ErrInvalidOptions    = errors.New("payment: invalid checkout options")
)

// Checkout is the surface the donation flow needs.
type Checkout interface {
	LoadScript(ctx context.Context) (bool, error)
	Open(ctx context.Context, opts Options) (*Handle, error)
}

// Config drives ScriptCheckout.
type Config struct {
	ScriptURL   string
	KeySecret   string        // creates orders and verifies success signatures when set
	OrdersURL   string
	CheckScript bool          // HEAD the script URL once before first injection
	MaxAge      time.Duration // unsettled handles are swept after this
	Client      *http.Client
	Now         func() time.Time
}

// ScriptCheckout is the production Checkout.
type ScriptCheckout struct {
	cfg Config

	reachMu sync.Mutex
	reached bool

	mu      sync.Mutex
	handles map[string]*Handle
}

var _ Checkout = (*ScriptCheckout)(nil)

// NewScriptCheckout fills defaults and returns a ready checkout.
func NewScriptCheckout(cfg Config) *ScriptCheckout {
	if cfg.ScriptURL == "" {
		cfg.ScriptURL = DefaultScriptURL
	}
	if cfg.OrdersURL == "" {
		cfg.OrdersURL = DefaultOrdersURL
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	if cfg.Client == nil {
		cfg.Client = cleanhttp.DefaultClient()
		cfg.Client.Timeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ScriptCheckout{cfg: cfg, handles: make(map[string]*Handle)}
}

// ScriptURL is the vendor script location in use.
func (c *ScriptCheckout) ScriptURL() string { return c.cfg.ScriptURL }

// LoadScript injects the vendor script into the head.Builder carried by ctx.
// It is idempotent: a second call for the same page reports true without
// adding another tag.  It fails with ErrScriptUnavailable when there is no
// builder or the script URL is unreachable.
func (c *ScriptCheckout) LoadScript(ctx context.Context) (bool, error) {
	hb := head.FromContext(ctx)
	if hb == nil {
		return false, fmt.Errorf("%w: no page head in context", ErrScriptUnavailable)
	}
	if hb.HasScript(ScriptID) {
		return true, nil
	}
	if err := c.checkReachable(ctx); err != nil {
		return false, err
	}
	hb.ScriptSrc(ScriptID, c.cfg.ScriptURL)
	return true, nil
}

// checkReachable HEADs the script once per process; failures are retried
// on the next call.
func (c *ScriptCheckout) checkReachable(ctx context.Context) error {
	if !c.cfg.CheckScript {
		return nil
	}
	c.reachMu.Lock()
	defer c.reachMu.Unlock()
	if c.reached {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.ScriptURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScriptUnavailable, err)
	}
	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		logger.FromContext(ctx).Warnw("checkout script unreachable", "url", c.cfg.ScriptURL, "err", err)
		return fmt.Errorf("%w: %v", ErrScriptUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrScriptUnavailable, resp.StatusCode)
	}
	c.reached = true
	return nil
}

// Open registers a checkout for opts.  Any OrderID in opts is replaced by
// the one the vendor issues.
func (c *ScriptCheckout) Open(ctx context.Context, opts Options) (*Handle, error) {
	if opts.Key == "" || opts.Amount <= 0 || len(opts.Currency) != 3 {
		return nil, ErrInvalidOptions
	}
	id := uuid.NewString()
	opts.OrderID = ""
	if c.cfg.KeySecret != "" {
		order, err := c.createOrder(ctx, opts, id)
		if err != nil {
			metrics.CheckoutEventsTotal.WithLabelValues("order_failed").Inc()
			return nil, err
		}
		opts.OrderID = order
	}
	h := &Handle{
		ID:        id,
		Options:   opts,
		secret:    c.cfg.KeySecret,
		createdAt: c.cfg.Now(),
		listeners: make(map[string][]func(ErrorResponse)),
	}

	c.mu.Lock()
	c.handles[h.ID] = h
	c.mu.Unlock()

	metrics.CheckoutEventsTotal.WithLabelValues("opened").Inc()
	return h, nil
}

// Lookup returns an open handle by ID.
func (c *ScriptCheckout) Lookup(id string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return h, nil
}

// Release forgets a handle.
func (c *ScriptCheckout) Release(id string) {
	c.mu.Lock()
	delete(c.handles, id)
	c.mu.Unlock()
}

// Sweep drops handles older than MaxAge and returns how many went.
func (c *ScriptCheckout) Sweep() int {
	now := c.cfg.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, h := range c.handles {
		if now.Sub(h.createdAt) > c.cfg.MaxAge {
			delete(c.handles, id)
			n++
		}
	}
	return n
}

// Run sweeps until ctx ends.
func (c *ScriptCheckout) Run(ctx context.Context) error {
	t := time.NewTicker(c.cfg.MaxAge / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := c.Sweep(); n > 0 {
				logger.FromContext(ctx).Debugw("checkout handles swept", "count", n)
			}
		}
	}
}

/*──────────────────────────── Handle ──────────────────────────────────────*/

// Handle is one opened checkout.
type Handle struct {
	ID      string
	Options Options

	secret    string
	createdAt time.Time

	mu        sync.Mutex
	settled   bool
	verified  bool
	listeners map[string][]func(ErrorResponse)
}

// On subscribes fn to event.  Only EventPaymentFailed is emitted.
func (h *Handle) On(event string, fn func(ErrorResponse)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[event] = append(h.listeners[event], fn)
}

// Settled reports whether a terminal event already fired.
func (h *Handle) Settled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settled
}

func (h *Handle) settle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.settled {
		return false
	}
	h.settled = true
	return true
}

// Verified reports whether the success callback was signed against this
// handle's order.
func (h *Handle) Verified() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verified
}

// Succeed verifies resp and fires the success handler.  When the handle
// carries a secret the response must name the handle's own order and be
// signed over it.
func (h *Handle) Succeed(resp Response) error {
	if resp.PaymentID == "" {
		return fmt.Errorf("%w: missing payment id", ErrInvalidOptions)
	}
	if h.secret != "" {
		if resp.OrderID == "" || resp.OrderID != h.Options.OrderID ||
			!VerifySignature(resp.OrderID, resp.PaymentID, resp.Signature, h.secret) {
			metrics.CheckoutEventsTotal.WithLabelValues("bad_signature").Inc()
			return ErrBadSignature
		}
	}
	if !h.settle() {
		return ErrHandleClosed
	}
	h.mu.Lock()
	h.verified = h.secret != ""
	h.mu.Unlock()
	metrics.CheckoutEventsTotal.WithLabelValues("paid").Inc()
	if h.Options.Handler != nil {
		h.Options.Handler(resp)
	}
	return nil
}

// Fail emits EventPaymentFailed to every listener.
func (h *Handle) Fail(er ErrorResponse) error {
	if !h.settle() {
		return ErrHandleClosed
	}
	metrics.CheckoutEventsTotal.WithLabelValues("failed").Inc()
	h.mu.Lock()
	fns := append([]func(ErrorResponse){}, h.listeners[EventPaymentFailed]...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(er)
	}
	return nil
}

// Dismiss fires the modal's dismiss handler.
func (h *Handle) Dismiss() error {
	if !h.settle() {
		return ErrHandleClosed
	}
	metrics.CheckoutEventsTotal.WithLabelValues("dismissed").Inc()
	if h.Options.Modal.OnDismiss != nil {
		h.Options.Modal.OnDismiss()
	}
	return nil
}
