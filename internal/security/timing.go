package security

import "time"

// IsLegitimateSubmissionTiming returns true when at least minSeconds have
// passed since start.  A start time in the future (clock skew) yields false.
func IsLegitimateSubmissionTiming(start time.Time, minSeconds float64) bool {
	return LegitimateAt(start, time.Now(), minSeconds)
}

// LegitimateAt is IsLegitimateSubmissionTiming with an explicit reference
// time, for callers that carry their own clock.
func LegitimateAt(start, now time.Time, minSeconds float64) bool {
	elapsed := now.Sub(start).Seconds()
	return elapsed >= minSeconds
}
