package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	pkgauth "github.com/Kirill552/esg-auth/pkg/auth"
	pkglogger "github.com/Kirill552/esg-auth/pkg/logger"
)

// LoginEndpoint names the guard bucket for password logins
const LoginEndpoint = "login"

// UserRepository looks up accounts by email
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// CaptchaVerifier checks a challenge token
type CaptchaVerifier interface {
	ValidateForAuth(ctx context.Context, token, clientIP, action string) models.CaptchaResult
}

// SecondFactor reports and verifies the TOTP factor
type SecondFactor interface {
	Status(ctx context.Context, userID string) (bool, error)
	VerifyCode(ctx context.Context, userID, code string) error
}

// BackupCodeVerifier consumes a backup code
type BackupCodeVerifier interface {
	Verify(ctx context.Context, userID, code string) error
}

// SessionRevoker blacklists a session JTI
type SessionRevoker interface {
	Revoke(ctx context.Context, session *models.RevokedSession) error
}

// LoginRequest is a password login with the optional captcha token and
// second factor code
type LoginRequest struct {
	Email        string
	Password     string
	CaptchaToken string
	Code         string
	ClientIP     string
	UserAgent    string
}

// LoginResult is a freshly issued session
type LoginResult struct {
	User      *models.SessionUser
	Token     string
	ExpiresAt time.Time
}

// AuthService handles login and logout
type AuthService struct {
	users       UserRepository
	guard       *GuardService
	captcha     CaptchaVerifier
	totp        SecondFactor
	backupCodes BackupCodeVerifier
	sessions    *auth.SessionManager
	revocations SessionRevoker
	timing      *auth.TimingDelay
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

func NewAuthService(
	users UserRepository,
	guard *GuardService,
	captcha CaptchaVerifier,
	totp SecondFactor,
	backupCodes BackupCodeVerifier,
	sessions *auth.SessionManager,
	revocations SessionRevoker,
	timing *auth.TimingDelay,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		guard:       guard,
		captcha:     captcha,
		totp:        totp,
		backupCodes: backupCodes,
		sessions:    sessions,
		revocations: revocations,
		timing:      timing,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Login runs the guard, captcha, password and second factor checks in that
// order. Every rejected credential is reported to the guard; a missing
// second factor code is not, since the password was correct.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := time.Now()
	key := models.NewAttemptKey(req.ClientIP, req.Email, LoginEndpoint)

	status := s.guard.Check(ctx, key)
	if status.Blocked {
		s.auditFailure(ctx, req, "", "blocked")
		return nil, models.ErrTooManyAttempts
	}

	if status.RequiresCaptcha {
		result := s.captcha.ValidateForAuth(ctx, req.CaptchaToken, req.ClientIP, LoginEndpoint)
		if !result.Valid {
			switch result.Reason {
			case models.CaptchaReasonMissingToken:
				return nil, models.ErrCaptchaRequired
			case models.CaptchaReasonProviderUnavailable:
				// provider outages are not counted against the key
				return nil, models.ErrCaptchaFailed
			}
			s.reportFailure(ctx, key, req, "captcha_"+result.Reason)
			return nil, models.ErrCaptchaFailed
		}
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user == nil {
		pkgauth.CompareDummy(req.Password)
		return nil, s.rejectCredentials(ctx, key, req, start, "", "user_not_found")
	}
	if err := pkgauth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		return nil, s.rejectCredentials(ctx, key, req, start, user.ID, "invalid_password")
	}

	enabled, err := s.totp.Status(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if enabled {
		if req.Code == "" {
			return nil, models.ErrTOTPRequired
		}
		if err := s.verifySecondFactor(ctx, user.ID, req.Code); err != nil {
			if !isCodeRejection(err) {
				return nil, err
			}
			s.reportFailure(ctx, key, req, "invalid_code")
			s.auditFailure(ctx, req, user.ID, "invalid_code")
			s.timing.WaitFrom(ctx, start)
			return nil, models.ErrTOTPInvalidCode
		}
	}

	if _, err := s.guard.Report(ctx, key, models.AttemptSuccess, AttemptMeta{UserAgent: req.UserAgent}); err != nil {
		s.logger.Warn("failed to reset attempt counters", slog.String("error", err.Error()))
	}

	token, claims, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:  pkglogger.EventLogin,
		UserID:     user.ID,
		Identifier: req.Email,
		IPAddress:  req.ClientIP,
		UserAgent:  req.UserAgent,
		Success:    true,
	})

	su := &models.SessionUser{
		ID:             user.ID,
		Email:          user.Email,
		Name:           user.Name,
		SessionID:      claims.ID,
		SessionExpires: claims.ExpiresAt.Time,
	}
	if user.OrganizationID != nil {
		su.OrganizationID = *user.OrganizationID
	}
	return &LoginResult{User: su, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// verifySecondFactor treats a 6-digit code as TOTP and anything else as a
// backup code
func (s *AuthService) verifySecondFactor(ctx context.Context, userID, code string) error {
	if auth.IsTOTPCodeFormat(code) {
		return s.totp.VerifyCode(ctx, userID, code)
	}
	return s.backupCodes.Verify(ctx, userID, code)
}

func isCodeRejection(err error) bool {
	return errors.Is(err, models.ErrTOTPInvalidCode) ||
		errors.Is(err, models.ErrTOTPReplay) ||
		errors.Is(err, models.ErrBackupCodeInvalid)
}

func (s *AuthService) rejectCredentials(ctx context.Context, key models.AttemptKey, req LoginRequest, start time.Time, userID, reason string) error {
	s.reportFailure(ctx, key, req, "invalid_credentials")
	s.auditFailure(ctx, req, userID, reason)
	s.timing.WaitFrom(ctx, start)
	return models.ErrInvalidCredentials
}

func (s *AuthService) reportFailure(ctx context.Context, key models.AttemptKey, req LoginRequest, reason string) {
	_, err := s.guard.Report(ctx, key, models.AttemptFailure, AttemptMeta{
		UserAgent:     req.UserAgent,
		FailureReason: reason,
	})
	if err != nil {
		s.logger.Warn("failed to record login failure", slog.String("error", err.Error()))
	}
}

func (s *AuthService) auditFailure(ctx context.Context, req LoginRequest, userID, reason string) {
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		UserID:        userID,
		Identifier:    req.Email,
		IPAddress:     req.ClientIP,
		UserAgent:     req.UserAgent,
		Success:       false,
		FailureReason: reason,
	})
}

// Logout revokes the session until it would have expired
func (s *AuthService) Logout(ctx context.Context, user *models.SessionUser, clientIP string) error {
	expires := user.SessionExpires
	if expires.IsZero() {
		expires = time.Now().Add(s.sessions.TTL())
	}

	if err := s.revocations.Revoke(ctx, &models.RevokedSession{
		JTI:       user.SessionID,
		UserID:    user.ID,
		ExpiresAt: expires,
		Reason:    "logout",
	}); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogout,
		UserID:    user.ID,
		IPAddress: clientIP,
		Success:   true,
	})
	return nil
}
