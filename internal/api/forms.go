// internal/api/forms.go
//
// Form endpoints.
//
//   GET  /forms            – list bundled form IDs and titles
//   GET  /forms/{id}       – rendered fragment with a fresh token
//   POST /forms/{id}       – submission
//   GET  /forms/{id}/status – cooldown state for the caller's session
//
// Submission order
//   token → attempt cap → schema → label translation → pipeline
//   (gate verdict, content scan, transmit, cooldown).
//
// A url-encoded POST whose Accept header prefers HTML gets HTML back: the
// form re-rendered with messages, or a success notice.  Everything else is
// JSON or problem+json.
//
//------------------------------------------------------------------------------

package api

import (
	"bytes"
	"html"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/yanizio/agrsite/internal/form"
	"github.com/yanizio/agrsite/internal/logger"
	"github.com/yanizio/agrsite/internal/problem"
	"github.com/yanizio/agrsite/internal/requestinfo"
	"github.com/yanizio/agrsite/internal/sanitize"
)

const donationFormID = "donation"

type formSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (a *API) listForms(w http.ResponseWriter, _ *http.Request) {
	out := lo.FilterMap(a.Forms.IDs(), func(id string, _ int) (formSummary, bool) {
		fd, ok := a.Forms.Get(id)
		return formSummary{ID: id, Title: fd.Title}, ok
	})
	writeJSON(w, http.StatusOK, out)
}

func (a *API) lookupForm(w http.ResponseWriter, r *http.Request) (*form.FormDef, bool) {
	fd, ok := a.Forms.Get(chi.URLParam(r, "id"))
	if !ok {
		problem.Write(w, http.StatusNotFound, "form not found", "", nil)
		return nil, false
	}
	return fd, true
}

func actionFor(fd *form.FormDef) string {
	if fd.ID == donationFormID {
		return "/donate/checkout"
	}
	return "/forms/" + fd.ID
}

func (a *API) renderForm(w http.ResponseWriter, r *http.Request) {
	fd, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	a.Sessions.Ensure(w, r)

	frag, err := a.fragment(fd, form.RenderOptions{})
	if err != nil {
		logger.FromContext(r.Context()).Errorw("render form", "form", fd.ID, "err", err)
		problem.Write(w, http.StatusInternalServerError, "render failed", "", nil)
		return
	}
	writeHTML(w, http.StatusOK, string(frag))
}

// fragment renders fd with a newly issued token unless opts already
// carries one in Prefill.
func (a *API) fragment(fd *form.FormDef, opts form.RenderOptions) (template.HTML, error) {
	tok := opts.Prefill[form.TokenField]
	if tok == "" {
		var err error
		if tok, err = a.Signer.Issue(fd.ID); err != nil {
			return "", err
		}
	}
	if opts.Action == "" {
		opts.Action = actionFor(fd)
	}
	return form.Render(fd, tok, opts)
}

func (a *API) submitForm(w http.ResponseWriter, r *http.Request) {
	fd, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	if fd.ID == donationFormID {
		problem.Write(w, http.StatusNotFound, "form not found", "donations are submitted to /donate/checkout", nil)
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
		a.writeInvalid(w, r, fd, values, res)
		return
	}

	payload := sanitize.Payload(form.Translate(fd, clean))
	att.Fields = payload

	log := logger.FromContext(r.Context()).With("form", fd.ID)
	sub := form.NewSubmitter(fd, a.Guards.Gate(sid, fd.ID), a.Intake)
	sub.OnError = func(err error) { log.Debugw("intake error detail", "err", err) }
	sub.Submit(r.Context(), att, payload)

	a.writeOutcome(w, r, fd, values, sub.State())
}

func (a *API) writeInvalid(w http.ResponseWriter, r *http.Request, fd *form.FormDef, v url.Values, res form.ValidationResult) {
	if wantsHTML(r) {
		a.rerender(w, r, fd, v, res, "", http.StatusUnprocessableEntity)
		return
	}
	problem.Write(w, http.StatusUnprocessableEntity, "validation failed", "one or more fields are invalid", fieldProblems(res))
}

// writeOutcome maps a pipeline State to a response.
func (a *API) writeOutcome(w http.ResponseWriter, r *http.Request, fd *form.FormDef, v url.Values, st form.State) {
	status := http.StatusBadRequest
	switch st.Outcome {
	case form.OutcomeDelivered:
		if wantsHTML(r) {
			writeHTML(w, http.StatusOK, `<div class="form-success" role="status">`+sanitize.UserContent(fd.Success)+`</div>`)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fd.Success})
		return
	case form.OutcomeCooldown:
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", strconv.Itoa(st.RetryAfter))
	case form.OutcomeTransport:
		status = http.StatusBadGateway
	case form.OutcomeBlocked, form.OutcomeTooFast:
		a.logRejection(r, fd.ID, st.Outcome.String(), "")
	}

	if wantsHTML(r) {
		a.rerender(w, r, fd, v, nil, st.Error, status)
		return
	}
	p := problem.Problem{
		Title:  "submission rejected",
		Status: status,
		Detail: st.Error,
		Meta:   map[string]any{"outcome": st.Outcome.String()},
	}
	if st.Outcome == form.OutcomeCooldown {
		p.Meta["retry_after"] = st.RetryAfter
	}
	problem.WriteProblem(w, p)
}

// rerender returns the form with the visitor's input, per-field messages,
// and the same token so the load time is preserved.
func (a *API) rerender(w http.ResponseWriter, r *http.Request, fd *form.FormDef, v url.Values, res form.ValidationResult, msg string, status int) {
	prefill := make(map[string]string, len(v))
	for k := range v {
		prefill[k] = v.Get(k)
	}
	frag, err := a.fragment(fd, form.RenderOptions{Prefill: prefill, Errors: res})
	if err != nil {
		logger.FromContext(r.Context()).Errorw("re-render form", "form", fd.ID, "err", err)
		problem.Write(w, http.StatusInternalServerError, "render failed", "", nil)
		return
	}
	var buf bytes.Buffer
	if msg != "" {
		buf.WriteString(`<p class="form-error" role="alert">` + html.EscapeString(msg) + "</p>\n")
	}
	buf.WriteString(string(frag))
	writeHTML(w, status, buf.String())
}

type statusResponse struct {
	Form              string `json:"form"`
	State             string `json:"state"`
	RetryAfter        int    `json:"retry_after"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

func (a *API) formStatus(w http.ResponseWriter, r *http.Request) {
	fd, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	sid := a.Sessions.Ensure(w, r)
	g := a.Guards.Gate(sid, fd.ID)
	writeJSON(w, http.StatusOK, statusResponse{
		Form:              fd.ID,
		State:             g.State().String(),
		RetryAfter:        g.RemainingSeconds(),
		AttemptsRemaining: a.Guards.Limiter(sid).Remaining(),
	})
}

// logRejection records who tripped a check.  UA and geo details are
// only available when requestinfo.Enrich ran.
func (a *API) logRejection(r *http.Request, formID, reason, detail string) {
	log := logger.FromContext(r.Context()).With("form", formID, "reason", reason)
	if detail != "" {
		log = log.With("detail", detail)
	}
	if info := requestinfo.FromContext(r.Context()); info != nil {
		log = log.With("bot", info.UA.IsBot, "device", info.UA.Device, "country", info.Geo.CountryISO)
	}
	log.Infow("submission rejected")
}

func wantsHTML(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/x-www-form-urlencoded" {
		return false
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
