package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Kirill552/esg-auth/internal/models"
	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
	"github.com/Kirill552/esg-auth/pkg/logger"
)

// CaptchaServiceInterface exposes the widget config and token verification
type CaptchaServiceInterface interface {
	ClientConfig() (models.CaptchaClientConfig, error)
	ValidateForAuth(ctx context.Context, token, clientIP, action string) models.CaptchaResult
}

type CaptchaHandler struct {
	service  CaptchaServiceInterface
	ipConfig *pkghttp.IPConfig
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

func NewCaptchaHandler(service CaptchaServiceInterface, ipConfig *pkghttp.IPConfig, audit *logger.AuditLogger, logger *slog.Logger) *CaptchaHandler {
	return &CaptchaHandler{service: service, ipConfig: ipConfig, audit: audit, logger: logger}
}

// CaptchaVerifyRequest is the body of POST /auth/captcha/verify
type CaptchaVerifyRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

// Config handles GET /auth/captcha/config
func (h *CaptchaHandler) Config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.ClientConfig()
	if err != nil {
		h.logger.Error("captcha config unavailable", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, cfg)
}

// Verify handles POST /auth/captcha/verify. An empty token is rejected
// before the provider is contacted.
func (h *CaptchaHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req CaptchaVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, pkghttp.CodeBadRequest)
		return
	}

	if strings.TrimSpace(req.Token) == "" {
		pkghttp.WriteBadRequest(w, pkghttp.CodeMissingToken)
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)
	result := h.service.ValidateForAuth(r.Context(), req.Token, clientIP, req.Action)

	switch {
	case result.Valid:
		h.audit.Log(r.Context(), logger.AuditEvent{
			EventType: logger.EventCaptchaVerified,
			IPAddress: clientIP,
			UserAgent: r.UserAgent(),
			Success:   true,
		})
		pkghttp.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "captcha verified"})
	case result.Reason == models.CaptchaReasonMissingToken:
		pkghttp.WriteBadRequest(w, pkghttp.CodeMissingToken)
	default:
		pkghttp.WriteErrorReason(w, http.StatusBadRequest, pkghttp.CodeVerificationFailed, result.Reason)
	}
}
