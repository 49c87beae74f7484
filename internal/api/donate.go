// internal/api/donate.go
//
// Donation flow.
//
// Context
//   The donation form runs through the same pipeline as every other form,
//   except that "transmit" means opening a checkout.  Two differences:
//
//   •  The cooldown is armed when the payment succeeds, not when the
//      checkout opens, so a visitor who dismisses the modal can retry at
//      once.  paymentGuard suppresses the pipeline's own arming.
//   •  On success a donation record is forwarded to the donation intake
//      endpoint when one is configured.  The record says whether the
//      payment signature was checked against a server-issued order.
//
//   Browser callbacks arrive at /donate/payments/{handle}[/failed|/dismiss];
//   each handle settles at most once and is released afterwards.
//
//------------------------------------------------------------------------------

package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/agrsite/internal/form"
	"github.com/yanizio/agrsite/internal/formguard"
	"github.com/yanizio/agrsite/internal/head"
	"github.com/yanizio/agrsite/internal/intake"
	"github.com/yanizio/agrsite/internal/logger"
	"github.com/yanizio/agrsite/internal/metrics"
	"github.com/yanizio/agrsite/internal/payment"
	"github.com/yanizio/agrsite/internal/problem"
	"github.com/yanizio/agrsite/internal/sanitize"
)

const (
	msgPaymentsOff    = "Online donations are not available right now. Please try again later."
	msgPaymentFailed  = "Payment failed. Please try again."
	msgPaymentDismiss = "Payment was cancelled."
)

// paymentGuard defers cooldown arming to the payment success handler.
type paymentGuard struct{ *formguard.Gate }

func (paymentGuard) RecordSubmission() {}

// merchant merges configured branding over the defaults.
func (a *API) merchant() payment.Merchant {
	p := a.Config.Payment
	m := payment.DefaultMerchant(p.KeyID)
	for dst, src := range map[*string]string{
		&m.Currency:    p.Currency,
		&m.Name:        p.Name,
		&m.Description: p.Description,
		&m.Image:       p.Image,
		&m.ThemeColor:  p.ThemeColor,
	} {
		if src != "" {
			*dst = src
		}
	}
	return m
}

var donateTmpl = template.Must(template.New("donate").Parse(`<!doctype html>
<html lang="en">
<head>
{{.Head.Metas}}{{.Head.Title}}{{.Head.Links}}{{.Head.Scripts}}
</head>
<body>
<main class="donate">
{{if .Notice}}<p class="notice" role="status">{{.Notice}}</p>{{end}}
{{.Form}}
</main>
</body>
</html>
`))

func (a *API) donatePage(w http.ResponseWriter, r *http.Request) {
	fd, ok := a.Forms.Get(donationFormID)
	if !ok {
		problem.Write(w, http.StatusNotFound, "form not found", "", nil)
		return
	}
	a.Sessions.Ensure(w, r)

	hb := head.New()
	hb.SetTitle(fd.Title + " | " + a.merchant().Name)
	hb.Meta(`<meta charset="utf-8">`)
	hb.Meta(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	ctx := head.WithContext(r.Context(), hb)

	var notice string
	if a.Config.Payment.KeyID == "" {
		notice = msgPaymentsOff
	} else if _, err := a.Checkout.LoadScript(ctx); err != nil {
		logger.FromContext(ctx).Warnw("checkout script not loaded", "err", err)
		notice = msgPaymentsOff
	} else {
		hb.ScriptSrc("donate-glue", "/assets/donate.js")
	}

	frag, err := a.fragment(fd, form.RenderOptions{})
	if err != nil {
		logger.FromContext(ctx).Errorw("render donation form", "err", err)
		problem.Write(w, http.StatusInternalServerError, "render failed", "", nil)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := donateTmpl.Execute(w, map[string]any{"Head": hb, "Notice": notice, "Form": frag}); err != nil {
		logger.FromContext(ctx).Errorw("donate page", "err", err)
	}
}

type checkoutResponse struct {
	Handle  string          `json:"handle"`
	Options payment.Options `json:"options"`
}

func (a *API) openCheckout(w http.ResponseWriter, r *http.Request) {
	fd, ok := a.Forms.Get(donationFormID)
	if !ok {
		problem.Write(w, http.StatusNotFound, "form not found", "", nil)
		return
	}
	if a.Config.Payment.KeyID == "" {
		problem.Write(w, http.StatusServiceUnavailable, "payments unavailable", msgPaymentsOff, nil)
		return
	}
	sid := a.Sessions.Ensure(w, r)

	values, err := decodeValues(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	att, ok := a.attempt(w, r, fd, values)
	if !ok || !a.allowAttempt(w, r, sid, fd.ID) {
		return
	}
	clean, res := form.Validate(fd, values)
	if !res.OK() {
		problem.Write(w, http.StatusUnprocessableEntity, "validation failed", "one or more fields are invalid", fieldProblems(res))
		return
	}
	att.Fields = clean

	log := logger.FromContext(r.Context()).With("form", fd.ID)
	gate := a.Guards.Gate(sid, fd.ID)

	var h *payment.Handle
	open := intake.TransportFunc(func(ctx context.Context, _ string, p map[string]any) error {
		opts, err := payment.BuildOptions(a.merchant(), donationFrom(p))
		if err != nil {
			return err
		}
		opts.Handler = func(payment.Response) { gate.RecordSubmission() }
		opts.Modal.OnDismiss = func() { log.Infow("checkout dismissed") }
		h, err = a.Checkout.Open(ctx, opts)
		if err != nil {
			return err
		}
		h.On(payment.EventPaymentFailed, func(er payment.ErrorResponse) {
			log.Infow("payment failed", "code", er.Error.Code, "reason", er.Error.Reason, "step", er.Error.Step)
		})
		return nil
	})

	sub := form.NewSubmitter(fd, paymentGuard{gate}, open)
	sub.OnError = func(err error) { log.Warnw("checkout open failed", "err", err) }
	if !sub.Submit(r.Context(), att, clean) {
		a.writeOutcome(w, r, fd, values, sub.State())
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{Handle: h.ID, Options: h.Options})
}

// donationFrom reads the typed clean values produced by form.Validate.
func donationFrom(p map[string]any) payment.Donation {
	str := func(k string) string {
		s, _ := p[k].(string)
		return s
	}
	amount, _ := p["amount"].(float64)
	anon, _ := p["anonymous"].(bool)
	return payment.Donation{
		Name:            str("name"),
		Email:           str("email"),
		Phone:           str("phone"),
		PAN:             str("panNumber"),
		Amount:          amount,
		Type:            str("donationType"),
		Anonymous:       anon,
		DedicateTo:      str("dedicateTo"),
		DedicateMessage: str("dedicateMessage"),
	}
}

/*──────────────────────────── callbacks ───────────────────────────────────*/

func (a *API) handle(w http.ResponseWriter, r *http.Request) (*payment.Handle, bool) {
	h, err := a.Checkout.Lookup(chi.URLParam(r, "handle"))
	if err != nil {
		problem.Write(w, http.StatusNotFound, "checkout not found", "", nil)
		return nil, false
	}
	return h, true
}

func writeSettleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrHandleClosed):
		problem.Write(w, http.StatusConflict, "checkout already settled", "", nil)
	case errors.Is(err, payment.ErrBadSignature):
		problem.Write(w, http.StatusBadRequest, "payment not verified", "", nil)
	default:
		problem.Write(w, http.StatusBadRequest, "invalid payment callback", err.Error(), nil)
	}
}

func (a *API) paymentSucceeded(w http.ResponseWriter, r *http.Request) {
	h, ok := a.handle(w, r)
	if !ok {
		return
	}
	var resp payment.Response
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&resp); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid request body", err.Error(), nil)
		return
	}
	if err := h.Succeed(resp); err != nil {
		writeSettleError(w, err)
		return
	}
	a.Checkout.Release(h.ID)

	log := logger.FromContext(r.Context())
	log.Infow("donation paid", "handle", h.ID, "payment_id", resp.PaymentID,
		"amount_paise", h.Options.Amount, "verified", h.Verified())
	a.forwardDonation(r.Context(), log, h, resp)

	msg := "Thank you for your generous donation."
	if fd, ok := a.Forms.Get(donationFormID); ok && fd.Success != "" {
		msg = fd.Success
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

func (a *API) paymentFailed(w http.ResponseWriter, r *http.Request) {
	h, ok := a.handle(w, r)
	if !ok {
		return
	}
	var er payment.ErrorResponse
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&er); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid request body", err.Error(), nil)
		return
	}
	if err := h.Fail(er); err != nil {
		writeSettleError(w, err)
		return
	}
	a.Checkout.Release(h.ID)

	msg := msgPaymentFailed
	if d := sanitize.Text(er.Error.Description); d != "" {
		msg = d
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": msg})
}

func (a *API) paymentDismissed(w http.ResponseWriter, r *http.Request) {
	h, ok := a.handle(w, r)
	if !ok {
		return
	}
	if err := h.Dismiss(); err != nil {
		writeSettleError(w, err)
		return
	}
	a.Checkout.Release(h.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": msgPaymentDismiss})
}

// forwardDonation sends a record of a paid donation to the intake endpoint
// for the donation form, if the transport knows one.  Failures are logged
// and counted; the visitor has already paid and still sees success.
func (a *API) forwardDonation(ctx context.Context, log *zap.SugaredLogger, h *payment.Handle, resp payment.Response) {
	if hs, ok := a.Intake.(interface{ Has(string) bool }); !ok || !hs.Has(donationFormID) {
		return
	}
	rec := map[string]any{
		"name":       h.Options.Prefill.Name,
		"email":      h.Options.Prefill.Email,
		"phone":      h.Options.Prefill.Contact,
		"amount":     float64(h.Options.Amount) / 100,
		"currency":   h.Options.Currency,
		"payment_id": resp.PaymentID,
		"order_id":   resp.OrderID,
		"verified":   h.Verified(),
	}
	for k, v := range h.Options.Notes {
		rec[k] = v
	}
	if err := a.Intake.Transmit(ctx, donationFormID, sanitize.Payload(rec)); err != nil {
		metrics.TransmitErrorsTotal.WithLabelValues(donationFormID).Inc()
		log.Debugw("donation record not forwarded", "handle", h.ID, "err", err)
	}
}
