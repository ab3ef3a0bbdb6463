package http

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes shared by every handler
const (
	CodeUnauthorized       = "unauthorized"
	CodeBadRequest         = "bad_request"
	CodeInternalError      = "internal_error"
	CodeTooManyAttempts    = "too_many_attempts"
	CodeRateLimitExceeded  = "rate_limit_exceeded"
	CodeMissingToken       = "missing_token"
	CodeVerificationFailed = "verification_failed"
	CodeCaptchaRequired    = "captcha_required"
	CodeCaptchaFailed      = "captcha_failed"
	CodeTOTPAlreadyEnabled = "totp_already_enabled"
	CodeTOTPNotEnabled     = "totp_not_enabled"
	CodeTOTPRequired       = "totp_required"
	CodeInvalidCode        = "invalid_code"
	CodeInvalidCredentials = "invalid_credentials"
	CodeValidationError    = "validation_error"
	CodeServiceUnavailable = "service_unavailable"
)

// ErrorResponse is the error body. Only Error is always present so clients
// can branch on it.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": code}
func WriteError(w http.ResponseWriter, statusCode int, errorCode string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode})
}

// WriteErrorMessage writes an error code with a human-readable message
func WriteErrorMessage(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// WriteErrorReason writes an error code with a provider diagnostic reason
func WriteErrorReason(w http.ResponseWriter, statusCode int, errorCode, reason string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Reason: reason})
}

func WriteBadRequest(w http.ResponseWriter, errorCode string) {
	WriteError(w, http.StatusBadRequest, errorCode)
}

func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized)
}

func WriteTooManyRequests(w http.ResponseWriter, errorCode string) {
	WriteError(w, http.StatusTooManyRequests, errorCode)
}

// WriteInternalError never carries detail so store or provider internals
// do not leak
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError)
}
