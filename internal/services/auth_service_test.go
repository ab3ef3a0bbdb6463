package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	pkgauth "github.com/Kirill552/esg-auth/pkg/auth"
	pkglogger "github.com/Kirill552/esg-auth/pkg/logger"
)

func init() {
	pkgauth.BcryptCost = bcrypt.MinCost
}

const testPassword = "correct horse battery"

type authFixture struct {
	svc      *AuthService
	guard    *GuardService
	sessions *auth.SessionManager
	captcha  *MockCaptchaVerifier
	totp     *MockSecondFactor
	backup   *MockBackupCodeVerifier
	revoker  *MockSessionRevoker
	user     *models.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	hash, err := pkgauth.HashPassword(testPassword)
	require.NoError(t, err)

	org := "org-1"
	f := &authFixture{
		sessions: auth.NewSessionManager("0123456789abcdef0123456789abcdef", 7*24*time.Hour),
		captcha:  &MockCaptchaVerifier{},
		totp:     &MockSecondFactor{},
		backup:   &MockBackupCodeVerifier{},
		revoker:  &MockSessionRevoker{},
		user: &models.User{
			ID:             "user-1",
			Email:          "owner@example.com",
			PasswordHash:   hash,
			Name:           "Owner",
			OrganizationID: &org,
		},
	}
	f.guard, _ = newRedisGuard(t)

	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == f.user.Email {
				return f.user, nil
			}
			return nil, models.ErrNotFound
		},
	}

	log := discardLogger()
	f.svc = NewAuthService(users, f.guard, f.captcha, f.totp, f.backup, f.sessions, f.revoker,
		auth.NewTimingDelay(auth.TimingConfig{}), pkglogger.NewAuditLogger(log), log)
	return f
}

func (f *authFixture) key() models.AttemptKey {
	return models.NewAttemptKey("203.0.113.1", f.user.Email, LoginEndpoint)
}

func loginReq(email, password string) LoginRequest {
	return LoginRequest{Email: email, Password: password, ClientIP: "203.0.113.1", UserAgent: "test"}
}

func TestAuthService_Login_Success(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.svc.Login(context.Background(), loginReq("owner@example.com", testPassword))
	require.NoError(t, err)

	assert.Equal(t, "user-1", result.User.ID)
	assert.Equal(t, "org-1", result.User.OrganizationID)
	assert.NotEmpty(t, result.User.SessionID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), result.ExpiresAt, time.Minute)

	claims, err := f.sessions.Parse(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, result.User.SessionID, claims.ID)
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown user", "nobody@example.com", testPassword},
		{"wrong password", "owner@example.com", "wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)

			result, err := f.svc.Login(context.Background(), loginReq(tt.email, tt.password))
			assert.ErrorIs(t, err, models.ErrInvalidCredentials)
			assert.Nil(t, result)

			key := models.NewAttemptKey("203.0.113.1", tt.email, LoginEndpoint)
			assert.Equal(t, 4, f.guard.Check(context.Background(), key).RemainingAttempts)
		})
	}
}

func TestAuthService_Login_SuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, loginReq("owner@example.com", "wrong"))
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	_, err := f.svc.Login(ctx, loginReq("owner@example.com", testPassword))
	require.NoError(t, err)
	assert.Equal(t, 5, f.guard.Check(ctx, f.key()).RemainingAttempts)
}

func TestAuthService_Login_BlockedEvenWithCorrectPassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.captcha.ValidateForAuthFunc = func(ctx context.Context, token, clientIP, action string) models.CaptchaResult {
		return models.CaptchaResult{Valid: true}
	}

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, loginReq("owner@example.com", "wrong"))
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	_, err := f.svc.Login(ctx, loginReq("owner@example.com", testPassword))
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
}

func TestAuthService_Login_CaptchaAfterThreshold(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, loginReq("owner@example.com", "wrong"))
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}
	require.True(t, f.guard.Check(ctx, f.key()).RequiresCaptcha)

	_, err := f.svc.Login(ctx, loginReq("owner@example.com", testPassword))
	assert.ErrorIs(t, err, models.ErrCaptchaRequired)
	assert.Equal(t, 2, f.guard.Check(ctx, f.key()).RemainingAttempts, "a missing token is not a failure")

	req := loginReq("owner@example.com", testPassword)
	req.CaptchaToken = "bad"
	f.captcha.ValidateForAuthFunc = func(ctx context.Context, token, clientIP, action string) models.CaptchaResult {
		assert.Equal(t, LoginEndpoint, action)
		return models.CaptchaResult{Reason: models.CaptchaReasonVerificationFailed}
	}
	_, err = f.svc.Login(ctx, req)
	assert.ErrorIs(t, err, models.ErrCaptchaFailed)
	assert.Equal(t, 1, f.guard.Check(ctx, f.key()).RemainingAttempts)

	req.CaptchaToken = "good"
	f.captcha.ValidateForAuthFunc = nil
	_, err = f.svc.Login(ctx, req)
	assert.NoError(t, err)
}

func TestAuthService_Login_CaptchaOutageIsNotCounted(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, loginReq("owner@example.com", "wrong"))
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	req := loginReq("owner@example.com", testPassword)
	req.CaptchaToken = "tok"
	f.captcha.ValidateForAuthFunc = func(ctx context.Context, token, clientIP, action string) models.CaptchaResult {
		return models.CaptchaResult{Reason: models.CaptchaReasonProviderUnavailable}
	}

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, req)
		assert.ErrorIs(t, err, models.ErrCaptchaFailed)
	}

	status := f.guard.Check(ctx, f.key())
	assert.False(t, status.Blocked)
	assert.Equal(t, 1, status.RemainingAttempts)
}

func TestAuthService_Login_SecondFactor(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.totp.StatusFunc = func(ctx context.Context, userID string) (bool, error) { return true, nil }

	var totpCodes, backupCodes []string
	f.totp.VerifyCodeFunc = func(ctx context.Context, userID, code string) error {
		totpCodes = append(totpCodes, code)
		if code == "123456" {
			return nil
		}
		return models.ErrTOTPInvalidCode
	}
	f.backup.VerifyFunc = func(ctx context.Context, userID, code string) error {
		backupCodes = append(backupCodes, code)
		if code == "ABCDE-FGHJK" {
			return nil
		}
		return models.ErrBackupCodeInvalid
	}

	req := loginReq("owner@example.com", testPassword)
	_, err := f.svc.Login(ctx, req)
	assert.ErrorIs(t, err, models.ErrTOTPRequired)
	assert.Equal(t, 5, f.guard.Check(ctx, f.key()).RemainingAttempts, "a missing code is not a failure")

	req.Code = "654321"
	_, err = f.svc.Login(ctx, req)
	assert.ErrorIs(t, err, models.ErrTOTPInvalidCode)
	assert.Equal(t, 4, f.guard.Check(ctx, f.key()).RemainingAttempts)

	req.Code = "ZZZZZ-ZZZZZ"
	_, err = f.svc.Login(ctx, req)
	assert.ErrorIs(t, err, models.ErrTOTPInvalidCode)

	req.Code = "123456"
	_, err = f.svc.Login(ctx, req)
	require.NoError(t, err)

	req.Code = "ABCDE-FGHJK"
	_, err = f.svc.Login(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"654321", "123456"}, totpCodes)
	assert.Equal(t, []string{"ZZZZZ-ZZZZZ", "ABCDE-FGHJK"}, backupCodes)
}

func TestAuthService_Login_ReplayIsInvalidCode(t *testing.T) {
	f := newAuthFixture(t)
	f.totp.StatusFunc = func(ctx context.Context, userID string) (bool, error) { return true, nil }
	f.totp.VerifyCodeFunc = func(ctx context.Context, userID, code string) error { return models.ErrTOTPReplay }

	req := loginReq("owner@example.com", testPassword)
	req.Code = "123456"
	_, err := f.svc.Login(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrTOTPInvalidCode)
}

func TestAuthService_Login_StoreErrors(t *testing.T) {
	dbErr := errors.New("connection reset")

	t.Run("user lookup", func(t *testing.T) {
		f := newAuthFixture(t)
		f.svc.users = &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) { return nil, dbErr },
		}
		_, err := f.svc.Login(context.Background(), loginReq("owner@example.com", testPassword))
		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("totp status", func(t *testing.T) {
		f := newAuthFixture(t)
		f.totp.StatusFunc = func(ctx context.Context, userID string) (bool, error) { return false, dbErr }
		_, err := f.svc.Login(context.Background(), loginReq("owner@example.com", testPassword))
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	expires := time.Now().Add(time.Hour)

	var revoked *models.RevokedSession
	f.revoker.RevokeFunc = func(ctx context.Context, session *models.RevokedSession) error {
		revoked = session
		return nil
	}

	err := f.svc.Logout(context.Background(), &models.SessionUser{ID: "user-1", SessionID: "jti-1", SessionExpires: expires}, "203.0.113.1")
	require.NoError(t, err)

	require.NotNil(t, revoked)
	assert.Equal(t, "jti-1", revoked.JTI)
	assert.Equal(t, "user-1", revoked.UserID)
	assert.Equal(t, expires, revoked.ExpiresAt)
	assert.Equal(t, "logout", revoked.Reason)
}

func TestAuthService_Logout_StoreError(t *testing.T) {
	f := newAuthFixture(t)
	f.revoker.RevokeFunc = func(ctx context.Context, session *models.RevokedSession) error {
		return errors.New("db down")
	}

	err := f.svc.Logout(context.Background(), &models.SessionUser{ID: "user-1", SessionID: "jti-1"}, "")
	assert.Error(t, err)
}
