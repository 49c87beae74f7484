// internal/api/api_test.go
//
// End-to-end tests for the HTTP surface.
//
// Context
// -------
// Each test starts an httptest.Server around the real router with a
// cookie-jar client, so the session cookie and signed token flow exactly
// as in a browser.  The gate clock runs ahead of the wall clock by an
// adjustable offset: zero simulates an instant bot-like submit, five
// seconds simulates a human.
//
// Run: go test ./internal/api -v

package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/agrsite/internal/config"
	"github.com/yanizio/agrsite/internal/form"
	"github.com/yanizio/agrsite/internal/formguard"
	"github.com/yanizio/agrsite/internal/payment"
	"github.com/yanizio/agrsite/internal/problem"
	"github.com/yanizio/agrsite/internal/session"
)

const testKeySecret = "s3cret"

/*──────────────────────────── fakes ───────────────────────────────────────*/

type call struct {
	form    string
	payload map[string]any
}

// recorder is an intake.Transport that knows every form.
type recorder struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *recorder) Transmit(_ context.Context, formID string, p map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, call{form: formID, payload: p})
	return nil
}

func (r *recorder) Has(string) bool { return true }

func (r *recorder) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

type offsetClock struct {
	mu  sync.Mutex
	off time.Duration
}

func (c *offsetClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.off)
}

func (c *offsetClock) Set(d time.Duration) {
	c.mu.Lock()
	c.off = d
	c.mu.Unlock()
}

/*──────────────────────────── harness ─────────────────────────────────────*/

type harness struct {
	t     *testing.T
	srv   *httptest.Server
	cli   *http.Client
	clock *offsetClock
	rec   *recorder
}

func newHarness(t *testing.T, keyID string) *harness {
	t.Helper()

	reg, err := form.LoadDefaults("")
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	signer, err := form.NewSigner([]byte("0123456789abcdef0123456789abcdef"), 0)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	clock := &offsetClock{}
	rec := &recorder{}
	cfg := &config.Config{
		HTTP:    config.HTTP{RateLimitRPS: 1000, RateLimitBurst: 1000},
		Payment: config.Payment{KeyID: keyID, KeySecret: testKeySecret},
	}

	a := New(Deps{
		Config: cfg,
		Log:    zap.NewNop().Sugar(),
		Forms:  reg,
		Signer: signer,
		Guards: formguard.NewStore(formguard.StoreOptions{
			Gate: formguard.Options{MinDwell: 3 * time.Second, Cooldown: 30 * time.Second, Now: clock.Now},
		}),
		Intake:   rec,
		Checkout: payment.NewScriptCheckout(payment.Config{KeySecret: testKeySecret, OrdersURL: newOrders(t).URL}),
		Sessions: &session.Manager{},
	})

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &harness{t: t, srv: srv, cli: &http.Client{Jar: jar}, clock: clock, rec: rec}
}

// newOrders issues order_1, order_2, ... like the vendor's order API.
func newOrders(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	n := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pass, ok := r.BasicAuth(); !ok || pass != testKeySecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mu.Lock()
		n++
		id := fmt.Sprintf("order_%d", n)
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	}))
	t.Cleanup(srv.Close)
	return srv
}

var tokenRE = regexp.MustCompile(`name="form_token" value="([^"]+)"`)

func (h *harness) get(path string) (*http.Response, string) {
	h.t.Helper()
	resp, err := h.cli.Get(h.srv.URL + path)
	if err != nil {
		h.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (h *harness) token(path string) string {
	h.t.Helper()
	_, body := h.get(path)
	m := tokenRE.FindStringSubmatch(body)
	if m == nil {
		h.t.Fatalf("no form token in %s", path)
	}
	return m[1]
}

func (h *harness) postForm(path string, v url.Values, accept string) (*http.Response, []byte) {
	h.t.Helper()
	req, _ := http.NewRequest(http.MethodPost, h.srv.URL+path, strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept)
	return h.do(req)
}

func (h *harness) postJSON(path string, body any) (*http.Response, []byte) {
	h.t.Helper()
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, h.srv.URL+path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return h.do(req)
}

func (h *harness) do(req *http.Request) (*http.Response, []byte) {
	h.t.Helper()
	resp, err := h.cli.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func decodeProblem(t *testing.T, body []byte) problem.Problem {
	t.Helper()
	var p problem.Problem
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode problem %q: %v", body, err)
	}
	return p
}

func contactValues(tok string) url.Values {
	return url.Values{
		"name":          {"Asha Rao"},
		"email":         {"asha@example.org"},
		"phone":         {"98765 43210"},
		"message":       {"Please tell me more about volunteering."},
		form.TokenField: {tok},
	}
}

func sign(order, payment string) string {
	m := hmac.New(sha256.New, []byte(testKeySecret))
	m.Write([]byte(order + "|" + payment))
	return hex.EncodeToString(m.Sum(nil))
}

/*──────────────────────────── forms ───────────────────────────────────────*/

func TestRenderForm_SetsSessionAndToken(t *testing.T) {
	h := newHarness(t, "")
	resp, body := h.get("/forms/contact")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `action="/forms/contact"`) || !tokenRE.MatchString(body) {
		t.Fatalf("fragment missing action or token:\n%s", body)
	}
	if !strings.Contains(body, `name="website_url"`) {
		t.Fatal("fragment missing honeypot")
	}
	u, _ := url.Parse(h.srv.URL)
	if len(h.cli.Jar.Cookies(u)) == 0 {
		t.Fatal("session cookie not set")
	}
	if resp.Header.Get("Content-Security-Policy") == "" {
		t.Fatal("security headers missing")
	}
}

func TestUnknownForm(t *testing.T) {
	h := newHarness(t, "")
	if resp, _ := h.get("/forms/nope"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSubmit_TooFastThenDeliveredThenCooldown(t *testing.T) {
	h := newHarness(t, "")
	tok := h.token("/forms/contact")

	resp, body := h.postForm("/forms/contact", contactValues(tok), "application/json")
	if resp.StatusCode != http.StatusBadRequest || decodeProblem(t, body).Detail != form.MsgTooFast {
		t.Fatalf("instant submit = %d %s", resp.StatusCode, body)
	}

	h.clock.Set(5 * time.Second)
	resp, body = h.postForm("/forms/contact", contactValues(tok), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("human submit = %d %s", resp.StatusCode, body)
	}
	calls := h.rec.snapshot()
	if len(calls) != 1 || calls[0].form != "contact" || calls[0].payload["phone"] != "9876543210" {
		t.Fatalf("calls = %+v", calls)
	}

	resp, body = h.postForm("/forms/contact", contactValues(tok), "application/json")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("repeat submit = %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") != "30" || decodeProblem(t, body).Detail != form.CooldownMessage(30) {
		t.Fatalf("cooldown = %q %s", resp.Header.Get("Retry-After"), body)
	}
	if len(h.rec.snapshot()) != 1 {
		t.Fatal("cooldown submission was transmitted")
	}
}

func TestSubmit_HoneypotBlocksWithoutCooldown(t *testing.T) {
	h := newHarness(t, "")
	tok := h.token("/forms/contact")
	h.clock.Set(5 * time.Second)

	v := contactValues(tok)
	v.Set("homepage", "http://spam.example")
	resp, body := h.postForm("/forms/contact", v, "application/json")
	if resp.StatusCode != http.StatusBadRequest || decodeProblem(t, body).Detail != form.MsgBlocked {
		t.Fatalf("honeypot submit = %d %s", resp.StatusCode, body)
	}
	if len(h.rec.snapshot()) != 0 {
		t.Fatal("bot submission transmitted")
	}

	if resp, body := h.postForm("/forms/contact", contactValues(tok), "application/json"); resp.StatusCode != http.StatusOK {
		t.Fatalf("clean submit after block = %d %s", resp.StatusCode, body)
	}
}

func TestSubmit_WhitespaceHoneypotIsBot(t *testing.T) {
	h := newHarness(t, "")
	tok := h.token("/forms/contact")
	h.clock.Set(5 * time.Second)

	v := contactValues(tok)
	v.Set("website_url", "   ")
	resp, body := h.postForm("/forms/contact", v, "application/json")
	if resp.StatusCode != http.StatusBadRequest || decodeProblem(t, body).Detail != form.MsgBlocked {
		t.Fatalf("whitespace decoy = %d %s", resp.StatusCode, body)
	}
	if len(h.rec.snapshot()) != 0 {
		t.Fatal("bot submission transmitted")
	}
}

func TestSubmit_ValidationErrors(t *testing.T) {
	h := newHarness(t, "")
	v := contactValues(h.token("/forms/contact"))
	v.Set("email", "nope")
	v.Set("message", "short")

	resp, body := h.postForm("/forms/contact", v, "application/json")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	p := decodeProblem(t, body)
	if got := p.Errors["email"]; len(got) != 1 || got[0] != "Please enter a valid email address" {
		t.Fatalf("email errors = %v", got)
	}
	if got := p.Errors["message"]; len(got) != 1 || got[0] != "Message must be at least 10 characters" {
		t.Fatalf("message errors = %v", got)
	}
	if _, ok := p.Errors["name"]; ok {
		t.Fatal("valid field reported")
	}
}

func TestSubmit_HTMLRerenderKeepsToken(t *testing.T) {
	h := newHarness(t, "")
	tok := h.token("/forms/contact")
	v := contactValues(tok)
	v.Set("email", "nope")

	resp, body := h.postForm("/forms/contact", v, "text/html")
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("status = %d, type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	s := string(body)
	if !strings.Contains(s, "Please enter a valid email address") || !strings.Contains(s, tok) {
		t.Fatalf("re-render lacks message or token:\n%s", s)
	}
	if !strings.Contains(s, `value="Asha Rao"`) {
		t.Fatal("re-render lost visitor input")
	}
}

func TestSubmit_BadToken(t *testing.T) {
	h := newHarness(t, "")
	h.token("/forms/contact")
	h.clock.Set(5 * time.Second)

	for _, tok := range []string{"", "garbage", h.token("/forms/volunteer")} {
		resp, body := h.postForm("/forms/contact", contactValues(tok), "application/json")
		if resp.StatusCode != http.StatusBadRequest || decodeProblem(t, body).Detail != msgStaleForm {
			t.Fatalf("token %q: %d %s", tok, resp.StatusCode, body)
		}
	}
}

func TestSubmit_TransportFailureAllowsRetry(t *testing.T) {
	h := newHarness(t, "")
	tok := h.token("/forms/contact")
	h.clock.Set(5 * time.Second)

	h.rec.fail(errors.New("connection refused"))
	resp, body := h.postForm("/forms/contact", contactValues(tok), "application/json")
	if resp.StatusCode != http.StatusBadGateway || decodeProblem(t, body).Detail != form.MsgTransport {
		t.Fatalf("failed transmit = %d %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "connection refused") {
		t.Fatal("transport detail leaked to visitor")
	}

	h.rec.fail(nil)
	if resp, body := h.postForm("/forms/contact", contactValues(tok), "application/json"); resp.StatusCode != http.StatusOK {
		t.Fatalf("retry = %d %s", resp.StatusCode, body)
	}
}

func TestSubmit_JSONAndContentFilter(t *testing.T) {
	h := newHarness(t, "")
	tok := h.token("/forms/contact")
	h.clock.Set(5 * time.Second)

	body := map[string]any{
		"name":          "Asha Rao",
		"email":         "asha@example.org",
		"message":       "Hello <script>alert(1)</script> there",
		form.TokenField: tok,
	}
	resp, raw := h.postJSON("/forms/contact", body)
	if resp.StatusCode != http.StatusBadRequest || decodeProblem(t, raw).Detail != form.ContentMessage("message") {
		t.Fatalf("script content = %d %s", resp.StatusCode, raw)
	}

	body["message"] = "=HYPERLINK(\"x\") please call me back"
	if resp, raw := h.postJSON("/forms/contact", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("json submit = %d %s", resp.StatusCode, raw)
	}
	calls := h.rec.snapshot()
	if len(calls) != 1 || !strings.HasPrefix(calls[0].payload["message"].(string), "'=") {
		t.Fatalf("formula not neutralised: %+v", calls)
	}
}

func TestSubmit_UnsupportedMedia(t *testing.T) {
	h := newHarness(t, "")
	req, _ := http.NewRequest(http.MethodPost, h.srv.URL+"/forms/contact", strings.NewReader("<x/>"))
	req.Header.Set("Content-Type", "application/xml")
	if resp, _ := h.do(req); resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "")
	tok := h.token("/forms/contact")
	h.clock.Set(5 * time.Second)
	h.postForm("/forms/contact", contactValues(tok), "application/json")

	_, body := h.get("/forms/contact/status")
	var st statusResponse
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "cooling-down" || st.RetryAfter != 30 || st.AttemptsRemaining != formguard.DefaultLimitMax-1 {
		t.Fatalf("status = %+v", st)
	}

	_, body = h.get("/forms/volunteer/status")
	if !strings.Contains(body, `"state":"idle"`) {
		t.Fatalf("other form affected: %s", body)
	}
}

func TestDonationFormNotPostable(t *testing.T) {
	h := newHarness(t, "rzp_test_key")
	resp, _ := h.postForm("/forms/donation", url.Values{}, "application/json")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, "")
	if resp, body := h.get("/healthz"); resp.StatusCode != http.StatusOK || !strings.Contains(body, "ok") {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}
}

/*──────────────────────────── donation ────────────────────────────────────*/

func donationBody(tok string) map[string]any {
	return map[string]any{
		"name":          "Asha Rao",
		"email":         "asha@example.org",
		"panNumber":     "abcde1234f",
		"amount":        500,
		"donationType":  "monthly",
		"anonymous":     true,
		form.TokenField: tok,
	}
}

func (h *harness) openCheckout(tok string) checkoutResponse {
	h.t.Helper()
	resp, raw := h.postJSON("/donate/checkout", donationBody(tok))
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("checkout = %d %s", resp.StatusCode, raw)
	}
	var out checkoutResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		h.t.Fatalf("decode checkout: %v", err)
	}
	return out
}

func (h *harness) donationState() string {
	h.t.Helper()
	_, body := h.get("/forms/donation/status")
	var st statusResponse
	_ = json.Unmarshal([]byte(body), &st)
	return st.State
}

func TestDonatePage_LoadsCheckoutScriptOnce(t *testing.T) {
	h := newHarness(t, "rzp_test_key")
	resp, body := h.get("/donate")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if strings.Count(body, payment.DefaultScriptURL) != 1 || !strings.Contains(body, `id="form-donation"`) {
		t.Fatalf("page:\n%s", body)
	}
	if !strings.Contains(body, `action="/donate/checkout"`) {
		t.Fatal("donation form does not post to checkout")
	}
}

func TestDonatePage_WithoutKeyShowsNotice(t *testing.T) {
	h := newHarness(t, "")
	_, body := h.get("/donate")
	if strings.Contains(body, payment.DefaultScriptURL) || !strings.Contains(body, msgPaymentsOff) {
		t.Fatalf("page:\n%s", body)
	}
	resp, _ := h.postJSON("/donate/checkout", donationBody("x"))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("checkout without key = %d", resp.StatusCode)
	}
}

func TestDonation_PaymentSuccessArmsCooldown(t *testing.T) {
	h := newHarness(t, "rzp_test_key")
	tok := h.token("/donate")
	h.clock.Set(5 * time.Second)

	co := h.openCheckout(tok)
	if co.Options.Amount != 50000 || co.Options.Notes["donation_type"] != "monthly" || co.Options.Notes["pan"] != "ABCDE1234F" {
		t.Fatalf("options = %+v", co.Options)
	}
	if h.donationState() != "idle" {
		t.Fatal("cooldown armed before payment")
	}

	order := co.Options.OrderID
	if order == "" {
		t.Fatal("checkout options carry no order id")
	}
	base := "/donate/payments/" + co.Handle
	resp, raw := h.postJSON(base, map[string]string{
		"razorpay_payment_id": "pay_1",
		"razorpay_order_id":   order,
		"razorpay_signature":  "bogus",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad signature = %d %s", resp.StatusCode, raw)
	}

	resp, raw = h.postJSON(base, map[string]string{
		"razorpay_payment_id": "pay_1",
		"razorpay_order_id":   order,
		"razorpay_signature":  sign(order, "pay_1"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("payment success = %d %s", resp.StatusCode, raw)
	}
	if h.donationState() != "cooling-down" {
		t.Fatal("cooldown not armed after payment")
	}

	calls := h.rec.snapshot()
	if len(calls) != 1 || calls[0].form != "donation" || calls[0].payload["payment_id"] != "pay_1" || calls[0].payload["amount"] != 500.0 || calls[0].payload["verified"] != true {
		t.Fatalf("forwarded = %+v", calls)
	}

	if resp, _ := h.postJSON(base, map[string]string{"razorpay_payment_id": "pay_1"}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("settled handle reused: %d", resp.StatusCode)
	}

	resp, raw = h.postJSON("/donate/checkout", donationBody(tok))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("checkout during cooldown = %d %s", resp.StatusCode, raw)
	}
}

func TestDonation_UnsignedSuccessRejected(t *testing.T) {
	h := newHarness(t, "rzp_test_key")
	tok := h.token("/donate")
	h.clock.Set(5 * time.Second)

	co := h.openCheckout(tok)
	base := "/donate/payments/" + co.Handle
	for _, body := range []map[string]string{
		{"razorpay_payment_id": "pay_FORGED"},
		{"razorpay_payment_id": "pay_FORGED", "razorpay_order_id": "order_other", "razorpay_signature": sign("order_other", "pay_FORGED")},
	} {
		if resp, raw := h.postJSON(base, body); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("callback %v = %d %s", body, resp.StatusCode, raw)
		}
	}
	if h.donationState() != "idle" {
		t.Fatal("cooldown armed by an unsigned callback")
	}
	if len(h.rec.snapshot()) != 0 {
		t.Fatal("unsigned donation forwarded")
	}
}

func TestDonation_DismissAndFailureAllowRetry(t *testing.T) {
	h := newHarness(t, "rzp_test_key")
	tok := h.token("/donate")
	h.clock.Set(5 * time.Second)

	co := h.openCheckout(tok)
	if resp, raw := h.postJSON("/donate/payments/"+co.Handle+"/dismiss", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("dismiss = %d %s", resp.StatusCode, raw)
	}

	co = h.openCheckout(tok)
	resp, raw := h.postJSON("/donate/payments/"+co.Handle+"/failed", map[string]any{
		"error": map[string]string{"code": "BAD_REQUEST_ERROR", "description": "Card <b>declined</b>"},
	})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "Card declined") {
		t.Fatalf("failed = %d %s", resp.StatusCode, raw)
	}
	if h.donationState() != "idle" {
		t.Fatal("cooldown armed without a payment")
	}
	if len(h.rec.snapshot()) != 0 {
		t.Fatal("unpaid donation forwarded")
	}
}

func TestDonation_ValidationErrors(t *testing.T) {
	h := newHarness(t, "rzp_test_key")
	body := donationBody(h.token("/donate"))
	body["amount"] = 50

	resp, raw := h.postJSON("/donate/checkout", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d %s", resp.StatusCode, raw)
	}
	if got := decodeProblem(t, raw).Errors["amount"]; len(got) != 1 || got[0] != "Minimum donation amount is ₹100" {
		t.Fatalf("amount errors = %v", got)
	}

	body["amount"] = "NaN"
	resp, raw = h.postJSON("/donate/checkout", body)
	if resp.StatusCode != http.StatusUnprocessableEntity || len(decodeProblem(t, raw).Errors["amount"]) != 1 {
		t.Fatalf("NaN amount = %d %s", resp.StatusCode, raw)
	}
}
