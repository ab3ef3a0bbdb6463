package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
)

// TOTPServiceInterface enrolls and reports the TOTP factor
type TOTPServiceInterface interface {
	Setup(ctx context.Context, user *models.SessionUser) (*models.TOTPSetup, error)
	Status(ctx context.Context, userID string) (bool, error)
}

// BackupCodeServiceInterface issues backup codes
type BackupCodeServiceInterface interface {
	Generate(ctx context.Context, user *models.SessionUser) ([]string, error)
}

// SecondFactorHandler serves the TOTP and backup code routes. All routes
// require RequireSession.
type SecondFactorHandler struct {
	totp        TOTPServiceInterface
	backupCodes BackupCodeServiceInterface
	logger      *slog.Logger
}

func NewSecondFactorHandler(totp TOTPServiceInterface, backupCodes BackupCodeServiceInterface, logger *slog.Logger) *SecondFactorHandler {
	return &SecondFactorHandler{totp: totp, backupCodes: backupCodes, logger: logger}
}

type TOTPStatusResponse struct {
	Enabled bool `json:"enabled"`
}

type BackupCodesResponse struct {
	Codes []string `json:"codes"`
}

// SetupTOTP handles POST /auth/totp/setup
func (h *SecondFactorHandler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	setup, err := h.totp.Setup(r.Context(), user)
	switch {
	case errors.Is(err, models.ErrTOTPAlreadyEnabled):
		pkghttp.WriteBadRequest(w, pkghttp.CodeTOTPAlreadyEnabled)
	case err != nil:
		h.logger.Error("totp setup failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w)
	default:
		w.Header().Set("Cache-Control", "no-store")
		pkghttp.WriteJSON(w, http.StatusOK, setup)
	}
}

// TOTPStatus handles GET /auth/totp/status
func (h *SecondFactorHandler) TOTPStatus(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	enabled, err := h.totp.Status(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("totp status failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, TOTPStatusResponse{Enabled: enabled})
}

// GenerateBackupCodes handles POST /auth/backup-codes/generate. The
// plaintext codes are only ever returned here.
func (h *SecondFactorHandler) GenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	codes, err := h.backupCodes.Generate(r.Context(), user)
	switch {
	case errors.Is(err, models.ErrTOTPNotEnabled):
		pkghttp.WriteBadRequest(w, pkghttp.CodeTOTPNotEnabled)
	case err != nil:
		h.logger.Error("backup code generation failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w)
	default:
		w.Header().Set("Cache-Control", "no-store")
		pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{Codes: codes})
	}
}
