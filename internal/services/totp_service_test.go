package services

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/Kirill552/esg-auth/pkg/logger"
)

func newTestTOTPService(t *testing.T) (*TOTPService, *MemoryTOTPRepository, *MockNotifier) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	tm, err := auth.NewTOTPManager(key, "ESG-Lite")
	require.NoError(t, err)

	repo := NewMemoryTOTPRepository()
	notifier := &MockNotifier{}
	log := discardLogger()
	return NewTOTPService(repo, tm, notifier, logger.NewAuditLogger(log), log), repo, notifier
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

var testUser = &models.SessionUser{ID: "user-1", Email: "a@b.com", Name: "Анна"}

func TestTOTPService_Setup(t *testing.T) {
	svc, repo, notifier := newTestTOTPService(t)

	setup, err := svc.Setup(context.Background(), testUser)
	require.NoError(t, err)

	assert.Len(t, setup.Secret, 32)
	assert.True(t, strings.HasPrefix(setup.OTPAuth, "otpauth://totp/ESG-Lite:a%40b.com?"))
	assert.Contains(t, setup.OTPAuth, "algorithm=SHA1&digits=6&period=30")
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))

	stored, err := repo.GetByUserID(context.Background(), testUser.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(stored.SecretEncrypted), setup.Secret, "secret is stored encrypted")

	enabled, err := svc.Status(context.Background(), testUser.ID)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, []string{"a@b.com"}, notifier.TOTP)
}

func TestTOTPService_SetupTwiceFails(t *testing.T) {
	svc, _, _ := newTestTOTPService(t)

	first, err := svc.Setup(context.Background(), testUser)
	require.NoError(t, err)

	second, err := svc.Setup(context.Background(), testUser)
	assert.ErrorIs(t, err, models.ErrTOTPAlreadyEnabled)
	assert.Nil(t, second)

	require.NoError(t, svc.VerifyCode(context.Background(), testUser.ID, currentCode(t, first.Secret)),
		"the first secret stays active")
}

func TestTOTPService_ConcurrentSetupReturnsOneSecret(t *testing.T) {
	svc, _, _ := newTestTOTPService(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Setup(context.Background(), testUser)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, models.ErrTOTPAlreadyEnabled) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, conflicts)
}

func TestTOTPService_Status_NotEnrolled(t *testing.T) {
	svc, _, _ := newTestTOTPService(t)

	enabled, err := svc.Status(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestTOTPService_VerifyCode(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestTOTPService(t)

	assert.ErrorIs(t, svc.VerifyCode(ctx, testUser.ID, "123456"), models.ErrTOTPNotEnabled)

	setup, err := svc.Setup(ctx, testUser)
	require.NoError(t, err)

	code := currentCode(t, setup.Secret)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	assert.ErrorIs(t, svc.VerifyCode(ctx, testUser.ID, wrong), models.ErrTOTPInvalidCode)

	require.NoError(t, svc.VerifyCode(ctx, testUser.ID, code))
	assert.ErrorIs(t, svc.VerifyCode(ctx, testUser.ID, code), models.ErrTOTPReplay)
}
