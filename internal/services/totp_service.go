package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/Kirill552/esg-auth/internal/repositories"
	"github.com/Kirill552/esg-auth/pkg/logger"
)

// TOTPService manages the TOTP second factor. A user is enabled as soon as a
// secret is stored; there is no pending confirmation state.
type TOTPService struct {
	repo     repositories.TOTPRepository
	tm       *auth.TOTPManager
	notifier SecurityNotifier
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

func NewTOTPService(repo repositories.TOTPRepository, tm *auth.TOTPManager, notifier SecurityNotifier, audit *logger.AuditLogger, logger *slog.Logger) *TOTPService {
	return &TOTPService{
		repo:     repo,
		tm:       tm,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

// Setup generates and stores a secret. A second call for an enrolled user,
// including a concurrent one, fails with models.ErrTOTPAlreadyEnabled and
// never returns a second secret.
func (s *TOTPService) Setup(ctx context.Context, user *models.SessionUser) (*models.TOTPSetup, error) {
	secret, err := s.tm.GenerateSecret()
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := s.tm.EncryptSecret(user.ID, secret)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateIfAbsent(ctx, &models.TOTPEnrollment{
		UserID:          user.ID,
		SecretEncrypted: ciphertext,
		SecretNonce:     nonce,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, models.ErrTOTPAlreadyEnabled
	}

	setup := &models.TOTPSetup{
		Secret:  secret,
		OTPAuth: s.tm.ProvisioningURI(secret, user.Email),
	}

	// the secret is already stored, so a QR failure only drops the image
	if qr, err := auth.QRCodeDataURL(setup.OTPAuth); err != nil {
		s.logger.Warn("failed to render TOTP QR code", slog.String("user_id", user.ID), slog.String("error", err.Error()))
	} else {
		setup.QRCode = qr
	}

	s.audit.Log(ctx, logger.AuditEvent{EventType: logger.EventTOTPEnrolled, UserID: user.ID, Success: true})
	if err := s.notifier.NotifyTOTPEnabled(ctx, user.Email, time.Now()); err != nil {
		s.logger.Warn("failed to send TOTP notification", slog.String("user_id", user.ID), slog.String("error", err.Error()))
	}

	return setup, nil
}

// Status reports whether the user has a TOTP secret
func (s *TOTPService) Status(ctx context.Context, userID string) (bool, error) {
	enabled, err := s.repo.Exists(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("read TOTP status: %w", err)
	}
	return enabled, nil
}

// VerifyCode accepts a code from the current step or one step either side.
// Each step is accepted at most once.
func (s *TOTPService) VerifyCode(ctx context.Context, userID, code string) error {
	enrollment, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrTOTPNotEnabled
	}
	if err != nil {
		return fmt.Errorf("load TOTP enrollment: %w", err)
	}

	secret, err := s.tm.DecryptSecret(userID, enrollment.SecretEncrypted, enrollment.SecretNonce)
	if err != nil {
		return err
	}

	step, ok, err := s.tm.MatchStep(secret, code)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrTOTPInvalidCode
	}

	advanced, err := s.repo.AdvanceLastUsedStep(ctx, userID, step)
	if err != nil {
		return err
	}
	if !advanced {
		return models.ErrTOTPReplay
	}
	return nil
}
