package handlers

import (
	"context"
	"net/http"

	"github.com/Kirill552/esg-auth/internal/models"
	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
)

// GuardChecker reads the brute-force status of an attempt key
type GuardChecker interface {
	Check(ctx context.Context, key models.AttemptKey) models.GuardStatus
	SafeDefault() models.GuardStatus
}

type BruteForceHandler struct {
	guard    GuardChecker
	ipConfig *pkghttp.IPConfig
}

func NewBruteForceHandler(guard GuardChecker, ipConfig *pkghttp.IPConfig) *BruteForceHandler {
	return &BruteForceHandler{guard: guard, ipConfig: ipConfig}
}

// BruteForceCheckRequest is the body of POST /auth/brute-force/check
type BruteForceCheckRequest struct {
	Identifier string `json:"identifier" validate:"max=320"`
	Endpoint   string `json:"endpoint" validate:"max=64"`
}

// Check always answers 200. A bad body or an unavailable store yields the
// safe default so the guard never locks clients out by itself.
func (h *BruteForceHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req BruteForceCheckRequest
	if err := decodeJSON(w, r, &req); err != nil || ValidateRequest(req) != nil {
		pkghttp.WriteJSON(w, http.StatusOK, h.guard.SafeDefault())
		return
	}

	key := models.NewAttemptKey(pkghttp.ExtractClientIP(r, h.ipConfig), req.Identifier, req.Endpoint)
	pkghttp.WriteJSON(w, http.StatusOK, h.guard.Check(r.Context(), key))
}
