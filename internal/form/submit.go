// internal/form/submit.go
//
// Forms subsystem: the submission pipeline.
//
// Context
//   Every form goes through the same sequence once its schema has passed:
//
//     1.  Ask the gate for a verdict.  A bot gets a generic message, a
//         cooling-down visitor gets the remaining seconds, a too-fast
//         visitor gets a "slow down" message.
//     2.  Scan every string value (and every string inside a list) for
//         script-like content.  The first flagged field is named in the
//         error; the matched pattern is not.
//     3.  Transmit through an intake.Transport.
//     4.  On success arm the cooldown, mark success, fire OnSuccess.
//     5.  On failure show a generic retryable message, fire OnError with
//         the real error, and leave the cooldown unarmed.
//
//   Submit never panics into its caller.  A recovered panic becomes the
//   generic error state.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yanizio/agrsite/internal/formguard"
	"github.com/yanizio/agrsite/internal/intake"
	"github.com/yanizio/agrsite/internal/logger"
	"github.com/yanizio/agrsite/internal/metrics"
)

// User-facing pipeline messages.
const (
	MsgBlocked   = "Submission blocked."
	MsgTooFast   = "Please take your time filling out the form."
	MsgTransport = "We couldn't send your submission. Please try again in a moment."
)

// CooldownMessage is shown while the cooldown window is active.
func CooldownMessage(seconds int) string {
	return fmt.Sprintf("Please wait %d seconds before submitting again.", seconds)
}

// ContentMessage is shown for the first field carrying script-like content.
func ContentMessage(field string) string {
	return fmt.Sprintf("Invalid content detected in %s. Please remove any suspicious characters.", field)
}

// Outcome classifies how the last Submit ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDelivered
	OutcomeBlocked
	OutcomeTooFast
	OutcomeCooldown
	OutcomeContent
	OutcomeTransport
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeTooFast:
		return "too-fast"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeContent:
		return "content"
	case OutcomeTransport:
		return "transport"
	default:
		return "none"
	}
}

// State is the observable pipeline state.
type State struct {
	IsSubmitting bool
	IsSuccess    bool
	Error        string

	Outcome    Outcome
	RetryAfter int // seconds; set for OutcomeCooldown
}

// Guard is the slice of *formguard.Gate the pipeline needs.
type Guard interface {
	ValidateSubmission(a formguard.Attempt) formguard.Verdict
	RecordSubmission()
	CheckContentSecurity(text string) bool
	RemainingSeconds() int
}

// Submitter runs the pipeline for one form instance.
type Submitter struct {
	FormID    string
	Fields    []string // content-scan order; remaining keys follow sorted
	Guard     Guard
	Transport intake.Transport

	OnSuccess func()
	OnError   func(error)

	mu    sync.Mutex
	state State
}

// NewSubmitter wires a pipeline for fd.
func NewSubmitter(fd *FormDef, g Guard, t intake.Transport) *Submitter {
	return &Submitter{FormID: fd.ID, Fields: fd.FieldNames(), Guard: g, Transport: t}
}

// State returns a snapshot.
func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset clears success and error.
func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsSuccess = false
	s.state.Error = ""
	s.state.Outcome = OutcomeNone
	s.state.RetryAfter = 0
}

// Submit runs the pipeline and reports whether the payload was delivered.
func (s *Submitter) Submit(ctx context.Context, a formguard.Attempt, payload map[string]any) (ok bool) {
	log := logger.FromContext(ctx).With("form", s.FormID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("submission pipeline panic", "panic", r)
			s.finish(OutcomeTransport, MsgTransport, 0)
			ok = false
		}
	}()

	v := s.Guard.ValidateSubmission(a)
	if !v.Accepted {
		metrics.GateRejectionsTotal.WithLabelValues(s.FormID, v.Reason.String()).Inc()
		log.Infow("submission rejected by gate", "reason", v.Reason.String())
		switch v.Reason {
		case formguard.ReasonInCooldown:
			secs := s.Guard.RemainingSeconds()
			s.finish(OutcomeCooldown, CooldownMessage(secs), secs)
		case formguard.ReasonTooFast:
			s.finish(OutcomeTooFast, MsgTooFast, 0)
		default:
			s.finish(OutcomeBlocked, MsgBlocked, 0)
		}
		return false
	}

	if field, bad := s.firstSuspicious(payload); bad {
		log.Infow("submission rejected for content", "field", field)
		s.finish(OutcomeContent, ContentMessage(field), 0)
		return false
	}

	s.mu.Lock()
	s.state.IsSubmitting = true
	s.state.Error = ""
	s.mu.Unlock()

	if err := s.Transport.Transmit(ctx, s.FormID, payload); err != nil {
		metrics.TransmitErrorsTotal.WithLabelValues(s.FormID).Inc()
		log.Debugw("submission transport failed", "err", err)
		s.finish(OutcomeTransport, MsgTransport, 0)
		if s.OnError != nil {
			s.OnError(err)
		}
		return false
	}

	s.Guard.RecordSubmission()
	s.finish(OutcomeDelivered, "", 0)
	log.Infow("submission delivered")
	if s.OnSuccess != nil {
		s.OnSuccess()
	}
	return true
}

func (s *Submitter) finish(o Outcome, msg string, retry int) {
	metrics.SubmissionsTotal.WithLabelValues(s.FormID, o.String()).Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{
		IsSuccess:  o == OutcomeDelivered,
		Error:      msg,
		Outcome:    o,
		RetryAfter: retry,
	}
}

// firstSuspicious scans declared fields first, then any extra keys sorted.
func (s *Submitter) firstSuspicious(payload map[string]any) (string, bool) {
	seen := make(map[string]bool, len(payload))
	order := make([]string, 0, len(payload))
	for _, k := range s.Fields {
		if _, ok := payload[k]; ok && !seen[k] {
			order = append(order, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range payload {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	for _, k := range order {
		switch v := payload[k].(type) {
		case string:
			if !s.Guard.CheckContentSecurity(v) {
				return k, true
			}
		case []string:
			for _, item := range v {
				if !s.Guard.CheckContentSecurity(item) {
					return k, true
				}
			}
		case []any:
			for _, item := range v {
				if str, ok := item.(string); ok && !s.Guard.CheckContentSecurity(str) {
					return k, true
				}
			}
		}
	}
	return "", false
}
