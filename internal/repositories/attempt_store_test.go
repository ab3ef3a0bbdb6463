package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/Kirill552/esg-auth/internal/config"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testGuardPolicy() config.GuardConfig {
	return config.GuardConfig{
		CaptchaThreshold:     3,
		BlockThreshold:       5,
		Window:               15 * time.Minute,
		LockoutDuration:      15 * time.Minute,
		LockoutMultiplier:    2,
		MaxLockoutDuration:   24 * time.Hour,
		SafeDefaultRemaining: 5,
	}
}

func setupAttemptStore(t *testing.T, policy config.GuardConfig) (*AttemptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAttemptStore(client, "bf", policy), mr
}

func TestAttemptStore_KeyFor(t *testing.T) {
	store, _ := setupAttemptStore(t, testGuardPolicy())

	anon := store.KeyFor(models.NewAttemptKey("203.0.113.1", "", ""))
	assert.Equal(t, "bf:auth:203.0.113.1:-", anon)

	named := store.KeyFor(models.NewAttemptKey("203.0.113.1", " User@Example.com ", "login"))
	assert.Regexp(t, `^bf:login:203\.0\.113\.1:[0-9a-f]{16}$`, named)
	assert.NotContains(t, named, "example")

	same := store.KeyFor(models.NewAttemptKey("203.0.113.1", "user@example.com", "LOGIN"))
	assert.Equal(t, named, same)
}

func TestAttemptStore_GetEmpty(t *testing.T) {
	store, _ := setupAttemptStore(t, testGuardPolicy())

	rec, err := store.Get(context.Background(), models.NewAttemptKey("203.0.113.1", "a@b.com", "login"))
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Failures)
	assert.Nil(t, rec.BlockedUntil)
	assert.Nil(t, rec.WindowExpiresAt)
}

func TestAttemptStore_RecordFailure_BlocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	store, mr := setupAttemptStore(t, testGuardPolicy())
	key := models.NewAttemptKey("203.0.113.1", "a@b.com", "login")

	for i := 1; i <= 4; i++ {
		rec, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, i, rec.Failures)
		assert.Nil(t, rec.BlockedUntil)
		require.NotNil(t, rec.WindowExpiresAt)
	}

	rec, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Failures)
	assert.Equal(t, 1, rec.Lockouts)
	require.NotNil(t, rec.BlockedUntil)
	assert.True(t, rec.IsBlocked(time.Now()))

	assert.Equal(t, 15*time.Minute, mr.TTL(store.KeyFor(key)+":block"))
}

func TestAttemptStore_FailuresWhileBlockedDoNotExtend(t *testing.T) {
	ctx := context.Background()
	store, mr := setupAttemptStore(t, testGuardPolicy())
	key := models.NewAttemptKey("203.0.113.1", "", "login")

	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
	}
	mr.FastForward(5 * time.Minute)

	rec, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Lockouts)
	assert.Equal(t, 10*time.Minute, mr.TTL(store.KeyFor(key)+":block"))
}

func TestAttemptStore_ProgressiveLockout(t *testing.T) {
	ctx := context.Background()
	store, mr := setupAttemptStore(t, testGuardPolicy())
	key := models.NewAttemptKey("203.0.113.1", "a@b.com", "login")

	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
	}

	mr.FastForward(15*time.Minute + time.Second)

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, rec.BlockedUntil)
	assert.Equal(t, 4, rec.Failures, "one attempt left after the lockout")

	rec, err = store.RecordFailure(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Lockouts)
	require.NotNil(t, rec.BlockedUntil)
	assert.Equal(t, 30*time.Minute, mr.TTL(store.KeyFor(key)+":block"))
}

func TestAttemptStore_LockoutCappedAtMax(t *testing.T) {
	ctx := context.Background()
	policy := testGuardPolicy()
	policy.BlockThreshold = 1
	policy.CaptchaThreshold = 1
	policy.LockoutDuration = time.Hour
	policy.LockoutMultiplier = 10
	policy.MaxLockoutDuration = 2 * time.Hour
	store, mr := setupAttemptStore(t, policy)
	key := models.NewAttemptKey("203.0.113.1", "", "login")

	_, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	mr.FastForward(time.Hour + time.Second)

	_, err = store.RecordFailure(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, mr.TTL(store.KeyFor(key)+":block"))
}

func TestAttemptStore_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := setupAttemptStore(t, testGuardPolicy())
	key := models.NewAttemptKey("203.0.113.1", "a@b.com", "login")

	_, err := store.RecordFailure(ctx, key)
	require.NoError(t, err)
	_, err = store.RecordFailure(ctx, key)
	require.NoError(t, err)

	mr.FastForward(16 * time.Minute)

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Failures)
}

func TestAttemptStore_Reset(t *testing.T) {
	ctx := context.Background()
	store, mr := setupAttemptStore(t, testGuardPolicy())
	key := models.NewAttemptKey("203.0.113.1", "a@b.com", "login")

	for i := 0; i < 5; i++ {
		_, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
	}

	require.NoError(t, store.Reset(ctx, key))

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Failures)
	assert.Equal(t, 0, rec.Lockouts)
	assert.Nil(t, rec.BlockedUntil)
	assert.False(t, mr.Exists(store.KeyFor(key)+":block"))
}

func TestAttemptStore_EndpointsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store, _ := setupAttemptStore(t, testGuardPolicy())
	login := models.NewAttemptKey("203.0.113.1", "a@b.com", "login")
	reset := models.NewAttemptKey("203.0.113.1", "a@b.com", "password-reset")

	for i := 0; i < 3; i++ {
		_, err := store.RecordFailure(ctx, login)
		require.NoError(t, err)
	}

	rec, err := store.Get(ctx, reset)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Failures)
}

func TestAttemptStore_ConcurrentFailuresAreAtomic(t *testing.T) {
	ctx := context.Background()
	policy := testGuardPolicy()
	policy.BlockThreshold = 1000
	store, _ := setupAttemptStore(t, policy)
	key := models.NewAttemptKey("203.0.113.1", "a@b.com", "login")

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := store.RecordFailure(ctx, key)
			return err
		})
	}
	require.NoError(t, g.Wait())

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 50, rec.Failures)
}

func TestAttemptStore_ConcurrentFailuresBlockOnce(t *testing.T) {
	ctx := context.Background()
	store, _ := setupAttemptStore(t, testGuardPolicy())
	key := models.NewAttemptKey("203.0.113.1", "", "login")

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := store.RecordFailure(ctx, key)
			return err
		})
	}
	require.NoError(t, g.Wait())

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Lockouts)
	assert.NotNil(t, rec.BlockedUntil)
}

func TestAttemptStore_StoreDown(t *testing.T) {
	store, mr := setupAttemptStore(t, testGuardPolicy())
	mr.Close()

	_, err := store.Get(context.Background(), models.NewAttemptKey("203.0.113.1", "", ""))
	assert.Error(t, err)

	_, err = store.RecordFailure(context.Background(), models.NewAttemptKey("203.0.113.1", "", ""))
	assert.Error(t, err)
}
