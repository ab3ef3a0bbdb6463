package services

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/Kirill552/esg-auth/pkg/logger"
)

var backupCodePattern = regexp.MustCompile(`^[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{5}-[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{5}$`)

func newTestBackupCodeService(t *testing.T) (*BackupCodeService, *MemoryBackupCodeRepository, *MockNotifier) {
	t.Helper()
	repo := NewMemoryBackupCodeRepository()
	notifier := &MockNotifier{}
	log := discardLogger()
	return NewBackupCodeService(repo, 10, notifier, logger.NewAuditLogger(log), log), repo, notifier
}

func TestBackupCodeService_RequiresTOTP(t *testing.T) {
	svc, _, notifier := newTestBackupCodeService(t)

	codes, err := svc.Generate(context.Background(), testUser)
	assert.ErrorIs(t, err, models.ErrTOTPNotEnabled)
	assert.Nil(t, codes)
	assert.Empty(t, notifier.Backup)
}

func TestBackupCodeService_Generate(t *testing.T) {
	svc, repo, notifier := newTestBackupCodeService(t)
	repo.Enable(testUser.ID)

	codes, err := svc.Generate(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := map[string]bool{}
	for _, code := range codes {
		assert.Regexp(t, backupCodePattern, code)
		assert.False(t, seen[code])
		seen[code] = true
	}

	remaining, err := svc.Remaining(context.Background(), testUser.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
	assert.Equal(t, []string{"a@b.com"}, notifier.Backup)
}

func TestBackupCodeService_RegenerationInvalidatesPreviousBatch(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestBackupCodeService(t)
	repo.Enable(testUser.ID)

	first, err := svc.Generate(ctx, testUser)
	require.NoError(t, err)
	second, err := svc.Generate(ctx, testUser)
	require.NoError(t, err)

	for _, code := range first {
		assert.ErrorIs(t, svc.Verify(ctx, testUser.ID, code), models.ErrBackupCodeInvalid)
	}
	for _, code := range second {
		assert.NoError(t, svc.Verify(ctx, testUser.ID, code))
	}

	remaining, err := svc.Remaining(ctx, testUser.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestBackupCodeService_SingleUse(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestBackupCodeService(t)
	repo.Enable(testUser.ID)

	codes, err := svc.Generate(ctx, testUser)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(ctx, testUser.ID, codes[0]))
	assert.ErrorIs(t, svc.Verify(ctx, testUser.ID, codes[0]), models.ErrBackupCodeInvalid)

	remaining, err := svc.Remaining(ctx, testUser.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

func TestBackupCodeService_VerifyAcceptsLooseFormatting(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestBackupCodeService(t)
	repo.Enable(testUser.ID)

	codes, err := svc.Generate(ctx, testUser)
	require.NoError(t, err)

	loose := " " + strings.ToLower(strings.ReplaceAll(codes[1], "-", "")) + " "
	assert.NoError(t, svc.Verify(ctx, testUser.ID, loose))
}

func TestBackupCodeService_VerifyRejectsOtherUsersCode(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestBackupCodeService(t)
	repo.Enable(testUser.ID)
	repo.Enable("user-2")

	codes, err := svc.Generate(ctx, testUser)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Verify(ctx, "user-2", codes[0]), models.ErrBackupCodeInvalid)
	assert.ErrorIs(t, svc.Verify(ctx, testUser.ID, "not-a-code"), models.ErrBackupCodeInvalid)
}

func TestBackupCodeService_ConcurrentGenerationLeavesOneBatch(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestBackupCodeService(t)
	repo.Enable(testUser.ID)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := svc.Generate(ctx, testUser)
			return err
		})
	}
	require.NoError(t, g.Wait())

	remaining, err := svc.Remaining(ctx, testUser.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}
