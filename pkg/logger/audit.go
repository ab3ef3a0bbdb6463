package logger

import (
	"context"
	"log/slog"
	"time"
)

// Security event types written to the audit stream
const (
	EventLogin                = "login"
	EventLogout               = "logout"
	EventAttemptBlocked       = "attempt_blocked"
	EventCaptchaVerified      = "captcha_verified"
	EventTOTPEnrolled         = "totp_enrolled"
	EventBackupCodesGenerated = "backup_codes_generated"
	EventBackupCodeUsed       = "backup_code_used"
)

// AuditEvent is a single security-relevant action
type AuditEvent struct {
	EventType     string
	UserID        string
	Identifier    string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With(slog.String("audit", "security"))}
}

// Log writes the event at info on success and warn on failure. Identifiers
// are masked before they reach the log.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Identifier != "" {
		attrs = append(attrs, slog.String("identifier", MaskIdentifier(event.Identifier)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
