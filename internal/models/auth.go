package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are carried in the signed session cookie
type SessionClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// RevokedSession marks a session JTI that must no longer resolve
type RevokedSession struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	Reason    string
	RevokedAt time.Time
}
