package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
)

// ReportValidator checks an organization's latest report
type ReportValidator interface {
	ValidateLatest(ctx context.Context, organizationID string) (*models.ValidationResult, error)
}

type ReportHandler struct {
	validator ReportValidator
	logger    *slog.Logger
}

func NewReportHandler(validator ReportValidator, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{validator: validator, logger: logger}
}

// ValidateResponse inlines the validation result next to the success flag
type ValidateResponse struct {
	Success bool `json:"success"`
	*models.ValidationResult
}

// Validate handles GET /reports/validate
func (h *ReportHandler) Validate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	result, err := h.validator.ValidateLatest(r.Context(), user.OrganizationID)
	if err != nil {
		h.logger.Error("report validation failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, ValidateResponse{Success: true, ValidationResult: result})
}
