package formguard

import "time"

// Reason explains why a submission attempt was rejected.
type Reason int

const (
	ReasonNone        Reason = iota // accepted
	ReasonBotDetected               // honeypot filled
	ReasonTooFast                   // below minimum dwell time
	ReasonInCooldown                // previous accepted submission too recent
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonBotDetected:
		return "bot-detected"
	case ReasonTooFast:
		return "too-fast"
	case ReasonInCooldown:
		return "in-cooldown"
	default:
		return "unknown"
	}
}

// Verdict is the immutable outcome of evaluating one Attempt.
type Verdict struct {
	Accepted bool
	Reason   Reason
}

func accept() Verdict         { return Verdict{Accepted: true, Reason: ReasonNone} }
func reject(r Reason) Verdict { return Verdict{Reason: r} }

// Attempt is one visitor's try at submitting one form instance.  It is
// built per request and discarded afterwards.
type Attempt struct {
	LoadedAt time.Time      // form first rendered; immutable
	Honeypot string         // value of the decoy field
	Fields   map[string]any // raw field values
}
