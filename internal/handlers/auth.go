package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/Kirill552/esg-auth/internal/services"
	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
)

// AuthServiceInterface runs the login flow and revokes sessions
type AuthServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	Logout(ctx context.Context, user *models.SessionUser, clientIP string) error
}

// SessionResolver resolves the caller from the request's session token
type SessionResolver interface {
	CurrentUser(r *http.Request) (*models.SessionUser, error)
}

type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionResolver
	cookies  auth.CookieConfig
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewAuthHandler(service AuthServiceInterface, sessions SessionResolver, cookies auth.CookieConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		cookies:  cookies,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email        string `json:"email" validate:"required,email,max=320"`
	Password     string `json:"password" validate:"required,max=1024"`
	CaptchaToken string `json:"captchaToken" validate:"max=4096"`
	Code         string `json:"code" validate:"max=32"`
}

type LoginResponse struct {
	Success bool                `json:"success"`
	User    *models.SessionUser `json:"user"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type SessionCheckResponse struct {
	Authenticated bool   `json:"authenticated"`
	Timestamp     string `json:"timestamp"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, pkghttp.CodeBadRequest)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteErrorMessage(w, http.StatusBadRequest, pkghttp.CodeValidationError, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginRequest{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		Code:         strings.TrimSpace(req.Code),
		ClientIP:     pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, result.ExpiresAt, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Success: true, User: result.User})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTooManyAttempts):
		pkghttp.WriteTooManyRequests(w, pkghttp.CodeTooManyAttempts)
	case errors.Is(err, models.ErrCaptchaRequired):
		pkghttp.WriteBadRequest(w, pkghttp.CodeCaptchaRequired)
	case errors.Is(err, models.ErrCaptchaFailed):
		pkghttp.WriteBadRequest(w, pkghttp.CodeCaptchaFailed)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeInvalidCredentials)
	case errors.Is(err, models.ErrTOTPRequired):
		pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeTOTPRequired)
	case errors.Is(err, models.ErrTOTPInvalidCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeInvalidCode)
	default:
		h.logger.Error("login failed", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w)
	}
}

// Logout handles POST /auth/logout. Requires RequireSession.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	if err := h.service.Logout(r.Context(), user, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		h.logger.Error("logout failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w)
		return
	}

	auth.ClearSessionCookie(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// SessionCheck handles GET /auth/session/check. A missing session is a
// normal answer, not an error.
func (h *AuthHandler) SessionCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)

	user, err := h.sessions.CurrentUser(r)
	if err != nil && !errors.Is(err, models.ErrUnauthorized) {
		h.logger.Error("session check failed", slog.String("error", err.Error()))
		pkghttp.WriteJSON(w, http.StatusInternalServerError, SessionCheckResponse{Authenticated: false, Timestamp: now})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionCheckResponse{Authenticated: user != nil, Timestamp: now})
}
