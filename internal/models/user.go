package models

import (
	"time"
)

type User struct {
	ID             string
	Email          string
	PasswordHash   string
	Name           string
	OrganizationID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SessionUser is the caller identity resolved from a session token
type SessionUser struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	OrganizationID string    `json:"organizationId,omitempty"`
	SessionID      string    `json:"-"`
	SessionExpires time.Time `json:"-"`
}
