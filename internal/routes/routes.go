package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Kirill552/esg-auth/internal/handlers"
	"github.com/Kirill552/esg-auth/internal/middleware"
	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Auth         *handlers.AuthHandler
	BruteForce   *handlers.BruteForceHandler
	Captcha      *handlers.CaptchaHandler
	SecondFactor *handlers.SecondFactorHandler
	Reports      *handlers.ReportHandler
	Health       *handlers.HealthHandler
}

// Options configures the router middleware stack
type Options struct {
	Env            string
	AllowedOrigins []string
	IPConfig       *pkghttp.IPConfig
	RateLimit      middleware.RateLimitConfig
	RequestTimeout time.Duration
	Logger         *slog.Logger
	// RequireSession rejects callers without a valid session
	RequireSession func(http.Handler) http.Handler
}

// NewRouter builds the API router. Client IPs are resolved per request
// against the trusted proxy list rather than rewritten by chi's RealIP.
func NewRouter(h Handlers, opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.SecureLogger(opts.Logger, opts.IPConfig))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: opts.Env}))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(opts.AllowedOrigins)))

	r.Get("/health", h.Health.Health)

	limited := r.With(middleware.RateLimitByIP(opts.RateLimit, opts.IPConfig))
	limited.Post("/auth/login", h.Auth.Login)
	limited.Post("/auth/brute-force/check", h.BruteForce.Check)
	limited.Post("/auth/captcha/verify", h.Captcha.Verify)
	r.Get("/auth/captcha/config", h.Captcha.Config)
	r.Get("/auth/session/check", h.Auth.SessionCheck)

	r.Group(func(r chi.Router) {
		r.Use(opts.RequireSession)

		r.Post("/auth/logout", h.Auth.Logout)
		r.Post("/auth/totp/setup", h.SecondFactor.SetupTOTP)
		r.Get("/auth/totp/status", h.SecondFactor.TOTPStatus)
		r.Post("/auth/backup-codes/generate", h.SecondFactor.GenerateBackupCodes)
		r.Get("/reports/validate", h.Reports.Validate)
	})

	return r
}
