package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login and brute-force guard
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many failed attempts")
	ErrCaptchaRequired    = errors.New("captcha verification required")
	ErrCaptchaFailed      = errors.New("captcha verification failed")

	// Second factor
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	ErrTOTPNotEnabled     = errors.New("totp not enabled")
	ErrTOTPRequired       = errors.New("second factor code required")
	ErrTOTPInvalidCode    = errors.New("invalid totp code")
	ErrTOTPReplay         = errors.New("totp code already used")
	ErrBackupCodeInvalid  = errors.New("invalid or used backup code")

	// Session
	ErrSessionRevoked = errors.New("session has been revoked")
)
