package models

import (
	"time"
)

// TOTPEnrollment holds a user's single TOTP secret. Presence means enabled.
type TOTPEnrollment struct {
	UserID          string
	SecretEncrypted []byte // AES-256-GCM
	SecretNonce     []byte
	LastUsedStep    *int64 // replay prevention
	CreatedAt       time.Time
}

// BackupCode is a single-use recovery credential; only its hash is stored
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsUsed reports whether the code has been consumed
func (c *BackupCode) IsUsed() bool {
	return c.UsedAt != nil
}

// TOTPSetup is returned exactly once when a secret is generated
type TOTPSetup struct {
	Secret  string `json:"secret"`
	OTPAuth string `json:"otpauth"`
	QRCode  string `json:"qrCode,omitempty"`
}
