package models

import (
	"strings"
	"time"
)

// DefaultGuardEndpoint is used when a caller does not name the protected endpoint
const DefaultGuardEndpoint = "auth"

// AttemptState is the guard's classification of a key
type AttemptState string

const (
	AttemptStateAllowed         AttemptState = "allowed"
	AttemptStateCaptchaRequired AttemptState = "captcha_required"
	AttemptStateBlocked         AttemptState = "blocked"
)

// AttemptOutcome is what the guarded action reported back
type AttemptOutcome int

const (
	AttemptFailure AttemptOutcome = iota
	AttemptSuccess
)

// AttemptKey buckets counters per client IP, optional identifier and endpoint.
// Counters are independent per endpoint so login failures do not consume the
// password-reset budget.
type AttemptKey struct {
	ClientIP   string
	Identifier string
	Endpoint   string
}

// NewAttemptKey normalizes the identifier and endpoint
func NewAttemptKey(clientIP, identifier, endpoint string) AttemptKey {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultGuardEndpoint
	}
	return AttemptKey{
		ClientIP:   strings.TrimSpace(clientIP),
		Identifier: strings.ToLower(strings.TrimSpace(identifier)),
		Endpoint:   strings.ToLower(endpoint),
	}
}

// AttemptRecord is the stored counter state for an AttemptKey
type AttemptRecord struct {
	Key             AttemptKey
	Failures        int
	Lockouts        int
	WindowExpiresAt *time.Time
	BlockedUntil    *time.Time
}

// IsBlocked reports whether the block marker is still active
func (r *AttemptRecord) IsBlocked(now time.Time) bool {
	return r.BlockedUntil != nil && now.Before(*r.BlockedUntil)
}

// GuardStatus is the result of a brute-force check
type GuardStatus struct {
	Blocked           bool `json:"blocked"`
	RemainingAttempts int  `json:"remainingAttempts"`
	RequiresCaptcha   bool `json:"requiresCaptcha"`
}

// State derives the attempt state from the status flags
func (s GuardStatus) State() AttemptState {
	switch {
	case s.Blocked:
		return AttemptStateBlocked
	case s.RequiresCaptcha:
		return AttemptStateCaptchaRequired
	default:
		return AttemptStateAllowed
	}
}
