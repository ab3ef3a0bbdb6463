package models

import "time"

// LoginAttempt is one reported outcome kept as audit history next to the guard counters
type LoginAttempt struct {
	ID            string    `db:"id"`
	Endpoint      string    `db:"endpoint"`
	Identifier    *string   `db:"identifier"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	AttemptTime   time.Time `db:"attempt_time"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	ExpiresAt     time.Time `db:"expires_at"`
}
