package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/Kirill552/esg-auth/internal/repositories"
	"github.com/Kirill552/esg-auth/pkg/logger"
)

type BackupCodeService struct {
	repo     repositories.BackupCodeRepository
	count    int
	notifier SecurityNotifier
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

func NewBackupCodeService(repo repositories.BackupCodeRepository, count int, notifier SecurityNotifier, audit *logger.AuditLogger, logger *slog.Logger) *BackupCodeService {
	return &BackupCodeService{
		repo:     repo,
		count:    count,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

// Generate replaces the user's unused codes with a fresh batch and returns
// the plaintext once. Only hashes are stored. Requires TOTP to be enabled.
func (s *BackupCodeService) Generate(ctx context.Context, user *models.SessionUser) ([]string, error) {
	codes, err := auth.GenerateBackupCodes(s.count)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		canonical, _ := auth.CanonicalizeBackupCode(code)
		hashes[i] = auth.HashBackupCode(user.ID, canonical)
	}

	if err := s.repo.ReplaceUnused(ctx, user.ID, hashes); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, logger.AuditEvent{EventType: logger.EventBackupCodesGenerated, UserID: user.ID, Success: true})
	if err := s.notifier.NotifyBackupCodesRegenerated(ctx, user.Email, time.Now()); err != nil {
		s.logger.Warn("failed to send backup codes notification", slog.String("user_id", user.ID), slog.String("error", err.Error()))
	}

	return codes, nil
}

// Verify consumes a code. Unknown, malformed and already used codes all fail
// with models.ErrBackupCodeInvalid.
func (s *BackupCodeService) Verify(ctx context.Context, userID, code string) error {
	canonical, ok := auth.CanonicalizeBackupCode(code)
	if !ok {
		return models.ErrBackupCodeInvalid
	}

	consumed, err := s.repo.Consume(ctx, userID, auth.HashBackupCode(userID, canonical))
	if err != nil {
		return err
	}
	if !consumed {
		return models.ErrBackupCodeInvalid
	}

	s.audit.Log(ctx, logger.AuditEvent{EventType: logger.EventBackupCodeUsed, UserID: userID, Success: true})
	return nil
}

// Remaining returns the number of unused codes
func (s *BackupCodeService) Remaining(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnused(ctx, userID)
}
