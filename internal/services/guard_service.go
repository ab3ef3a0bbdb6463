package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Kirill552/esg-auth/internal/config"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/Kirill552/esg-auth/pkg/logger"
)

// AttemptStore holds the live brute-force counters
type AttemptStore interface {
	Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error)
	RecordFailure(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error)
	Reset(ctx context.Context, key models.AttemptKey) error
}

// AttemptHistory is the durable audit trail of reported outcomes
type AttemptHistory interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// AttemptMeta carries request details kept in the attempt history
type AttemptMeta struct {
	UserAgent     string
	FailureReason string
}

// GuardService decides whether a client may attempt a guarded action
type GuardService struct {
	store   AttemptStore
	history AttemptHistory
	policy  config.GuardConfig
	audit   *logger.AuditLogger
	logger  *slog.Logger
	now     func() time.Time
}

func NewGuardService(store AttemptStore, history AttemptHistory, policy config.GuardConfig, audit *logger.AuditLogger, logger *slog.Logger) *GuardService {
	return &GuardService{
		store:   store,
		history: history,
		policy:  policy,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// SafeDefault is returned whenever the counters cannot be read. A guard
// outage must not lock everyone out.
func (s *GuardService) SafeDefault() models.GuardStatus {
	return models.GuardStatus{
		Blocked:           false,
		RemainingAttempts: s.policy.SafeDefaultRemaining,
		RequiresCaptcha:   false,
	}
}

// Check never fails; store errors degrade to SafeDefault
func (s *GuardService) Check(ctx context.Context, key models.AttemptKey) models.GuardStatus {
	record, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Error("brute-force check failed, using safe default",
			slog.String("endpoint", key.Endpoint),
			slog.String("ip_address", key.ClientIP),
			slog.String("error", err.Error()),
		)
		return s.SafeDefault()
	}
	return s.statusFrom(record)
}

// Report records the outcome of a guarded action. A failure increments the
// counter (and may block the key); a success clears it. The returned status
// reflects the state after the report. Store errors are returned along with
// SafeDefault so callers can log them without failing the request.
func (s *GuardService) Report(ctx context.Context, key models.AttemptKey, outcome models.AttemptOutcome, meta AttemptMeta) (models.GuardStatus, error) {
	s.appendHistory(ctx, key, outcome, meta)

	if outcome == models.AttemptSuccess {
		if err := s.store.Reset(ctx, key); err != nil {
			return s.SafeDefault(), err
		}
		return models.GuardStatus{RemainingAttempts: s.policy.BlockThreshold}, nil
	}

	record, err := s.store.RecordFailure(ctx, key)
	if err != nil {
		return s.SafeDefault(), err
	}

	status := s.statusFrom(record)
	// Failures only reaches the threshold on the report that placed the block
	if status.Blocked && record.Failures >= s.policy.BlockThreshold && s.audit != nil {
		s.audit.Log(ctx, logger.AuditEvent{
			EventType:     logger.EventAttemptBlocked,
			Identifier:    key.Identifier,
			IPAddress:     key.ClientIP,
			FailureReason: meta.FailureReason,
			Metadata: map[string]string{
				"endpoint": key.Endpoint,
				"lockouts": strconv.Itoa(record.Lockouts),
			},
		})
	}
	return status, nil
}

func (s *GuardService) statusFrom(record *models.AttemptRecord) models.GuardStatus {
	if record.IsBlocked(s.now()) {
		return models.GuardStatus{Blocked: true, RemainingAttempts: 0, RequiresCaptcha: true}
	}

	remaining := s.policy.BlockThreshold - record.Failures
	if remaining < 0 {
		remaining = 0
	}
	return models.GuardStatus{
		Blocked:           false,
		RemainingAttempts: remaining,
		RequiresCaptcha:   record.Failures >= s.policy.CaptchaThreshold,
	}
}

func (s *GuardService) appendHistory(ctx context.Context, key models.AttemptKey, outcome models.AttemptOutcome, meta AttemptMeta) {
	if s.history == nil {
		return
	}

	attempt := &models.LoginAttempt{
		Endpoint:  key.Endpoint,
		IPAddress: key.ClientIP,
		UserAgent: meta.UserAgent,
		Success:   outcome == models.AttemptSuccess,
		ExpiresAt: s.now().Add(s.policy.HistoryRetention),
	}
	if key.Identifier != "" {
		ident := key.Identifier
		attempt.Identifier = &ident
	}
	if meta.FailureReason != "" && outcome == models.AttemptFailure {
		reason := meta.FailureReason
		attempt.FailureReason = &reason
	}

	if err := s.history.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Warn("failed to append attempt history",
			slog.String("endpoint", key.Endpoint),
			slog.String("error", err.Error()),
		)
	}
}
