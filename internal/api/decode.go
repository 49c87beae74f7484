package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/yanizio/agrsite/internal/form"
	"github.com/yanizio/agrsite/internal/formguard"
	"github.com/yanizio/agrsite/internal/problem"
	"github.com/yanizio/agrsite/internal/security"
)

const maxBodyBytes = 64 << 10

var errUnsupportedMedia = errors.New("unsupported media type")

// decodeValues reads a JSON object or a url-encoded body into url.Values.
// JSON scalars are stringified and arrays become repeated values, so both
// encodings reach form.Validate in the same shape.
func decodeValues(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/json":
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return jsonToValues(raw)
	case "application/x-www-form-urlencoded", "":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		return r.PostForm, nil
	default:
		return nil, errUnsupportedMedia
	}
}

func jsonToValues(raw map[string]any) (url.Values, error) {
	out := make(url.Values, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case []any:
			for _, item := range val {
				s, err := scalar(k, item)
				if err != nil {
					return nil, err
				}
				out.Add(k, s)
			}
		default:
			s, err := scalar(k, val)
			if err != nil {
				return nil, err
			}
			out.Set(k, s)
		}
	}
	return out, nil
}

func scalar(key string, v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	return "", fmt.Errorf("unsupported value for %q", key)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnsupportedMedia) {
		problem.Write(w, http.StatusUnsupportedMediaType, "unsupported media type",
			"expected application/json or application/x-www-form-urlencoded", nil)
		return
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		problem.Write(w, http.StatusRequestEntityTooLarge, "request too large", "", nil)
		return
	}
	problem.Write(w, http.StatusBadRequest, "invalid request body", err.Error(), nil)
}

// honeypotValue returns the first non-empty decoy field.  Whitespace counts
// as content: a human never touches these inputs at all.
func honeypotValue(v url.Values) string {
	for _, name := range security.HoneypotNames() {
		if s := v.Get(name); s != "" {
			return s
		}
	}
	return ""
}

const msgStaleForm = "This form has expired. Please reload the page and try again."

// attempt verifies the signed token and builds the gate input.  It writes
// a 400 and reports false when the token is missing, forged, or stale.
func (a *API) attempt(w http.ResponseWriter, r *http.Request, fd *form.FormDef, v url.Values) (formguard.Attempt, bool) {
	loadedAt, err := a.Signer.Verify(v.Get(form.TokenField), fd.ID)
	if err != nil {
		a.logRejection(r, fd.ID, "token", err.Error())
		problem.Write(w, http.StatusBadRequest, "invalid form token", msgStaleForm, nil)
		return formguard.Attempt{}, false
	}
	return formguard.Attempt{LoadedAt: loadedAt, Honeypot: honeypotValue(v)}, true
}

// allowAttempt applies the per-session attempt cap.
func (a *API) allowAttempt(w http.ResponseWriter, r *http.Request, sid, formID string) bool {
	lim := a.Guards.Limiter(sid)
	if !lim.CheckLimit() {
		a.logRejection(r, formID, "attempt-limit", "")
		problem.TooMany(w, lim.RetryAfter(), "Too many submissions. Please try again later.")
		return false
	}
	lim.RecordAttempt()
	return true
}

func fieldProblems(res form.ValidationResult) map[string][]string {
	out := make(map[string][]string, len(res))
	for k, msg := range res {
		out[k] = []string{msg}
	}
	return out
}
