package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	database HealthCheck
	redis    HealthCheck
	timeout  time.Duration
}

func NewHealthHandler(database, redis HealthCheck) *HealthHandler {
	return &HealthHandler{database: database, redis: redis, timeout: 2 * time.Second}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Health handles GET /health. Both dependencies are probed concurrently.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Redis: "ok"}

	var g errgroup.Group
	g.Go(func() error {
		if err := h.database(ctx); err != nil {
			resp.Database = "unavailable"
		}
		return nil
	})
	g.Go(func() error {
		if err := h.redis(ctx); err != nil {
			resp.Redis = "unavailable"
		}
		return nil
	})
	_ = g.Wait()

	status := http.StatusOK
	if resp.Database != "ok" || resp.Redis != "ok" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	pkghttp.WriteJSON(w, status, resp)
}
