package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/background"
	"github.com/Kirill552/esg-auth/internal/config"
	"github.com/Kirill552/esg-auth/internal/database"
	"github.com/Kirill552/esg-auth/internal/handlers"
	"github.com/Kirill552/esg-auth/internal/middleware"
	"github.com/Kirill552/esg-auth/internal/repositories"
	"github.com/Kirill552/esg-auth/internal/routes"
	"github.com/Kirill552/esg-auth/internal/services"
	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
	pkglogger "github.com/Kirill552/esg-auth/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Brute-force counters live in Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		// The guard degrades to its safe default, so a missing Redis is not fatal
		logger.Warn("redis unavailable at startup", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
	}
	cancel()

	ipConfig, invalidProxies := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	for _, p := range invalidProxies {
		logger.Warn("ignoring invalid trusted proxy", slog.String("proxy", p))
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	totpRepo := repositories.NewTOTPRepository(db)
	backupCodeRepo := repositories.NewBackupCodeRepository(db)
	revocationRepo := repositories.NewSessionRevocationRepository(db)
	reportRepo := repositories.NewReportRepository(db)
	attemptHistory := repositories.NewLoginAttemptRepository(db)
	attemptStore := repositories.NewAttemptStore(redisClient, cfg.Redis.Prefix, cfg.Guard)

	// Auth primitives
	sessions := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	resolver := auth.NewSessionResolver(sessions, userRepo, revocationRepo, logger)
	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   time.Duration(cfg.Auth.TimingDelayBaseMs) * time.Millisecond,
		RandomDelay: time.Duration(cfg.Auth.TimingDelayRandMs) * time.Millisecond,
	})
	cookies := auth.CookieConfig{
		Domain: cfg.Auth.CookieDomain,
		Secure: cfg.Auth.CookieSecure,
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	var notifier services.SecurityNotifier = services.NewLogNotifier(logger)
	if cfg.Email.Enabled {
		sesCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		emailService, err := services.NewAWSSESEmailService(sesCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.SupportURL, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = emailService
	}

	// Initialize services
	guardService := services.NewGuardService(attemptStore, attemptHistory, cfg.Guard, auditLogger, logger)
	captchaService := services.NewCaptchaService(cfg.Captcha, logger)
	totpService := services.NewTOTPService(totpRepo, totpManager, notifier, auditLogger, logger)
	backupCodeService := services.NewBackupCodeService(backupCodeRepo, cfg.Auth.BackupCodeCount, notifier, auditLogger, logger)
	authService := services.NewAuthService(userRepo, guardService, captchaService, totpService, backupCodeService,
		sessions, revocationRepo, timingDelay, auditLogger, logger)
	reportService := services.NewReportService(reportRepo)

	// Initialize handlers
	router := routes.NewRouter(routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService, resolver, cookies, ipConfig, logger),
		BruteForce:   handlers.NewBruteForceHandler(guardService, ipConfig),
		Captcha:      handlers.NewCaptchaHandler(captchaService, ipConfig, auditLogger, logger),
		SecondFactor: handlers.NewSecondFactorHandler(totpService, backupCodeService, logger),
		Reports:      handlers.NewReportHandler(reportService, logger),
		Health:       handlers.NewHealthHandler(db.HealthCheck, attemptStore.Ping),
	}, routes.Options{
		Env:            cfg.Server.Env,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IPConfig:       ipConfig,
		RateLimit:      middleware.DefaultAuthRateLimit(),
		RequestTimeout: 60 * time.Second,
		Logger:         logger,
		RequireSession: resolver.RequireSession,
	})

	cleanupManager := background.NewCleanupManager(logger, cfg.Auth.CleanupInterval,
		background.CleanerFunc{Label: "login_attempts", Fn: attemptHistory.DeleteExpiredAttempts},
		background.CleanerFunc{Label: "revoked_sessions", Fn: revocationRepo.DeleteExpired},
	)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
