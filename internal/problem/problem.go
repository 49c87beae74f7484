// Package problem writes RFC 7807 problem documents.
package problem

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Problem is an application/problem+json body.
type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
	Meta     map[string]any      `json:"meta,omitempty"`
}

// Write sends a problem document with status.
func Write(w http.ResponseWriter, status int, title, detail string, errs map[string][]string) {
	WriteProblem(w, Problem{Title: title, Status: status, Detail: detail, Errors: errs})
}

// WriteProblem sends p as-is.  Status defaults to 500.
func WriteProblem(w http.ResponseWriter, p Problem) {
	if p.Status == 0 {
		p.Status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// TooMany sends 429 with a Retry-After header rounded up to whole seconds.
func TooMany(w http.ResponseWriter, retry time.Duration, detail string) {
	secs := int((retry + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteProblem(w, Problem{
		Title:  "too many requests",
		Status: http.StatusTooManyRequests,
		Detail: detail,
		Meta:   map[string]any{"retry_after": secs},
	})
}
