package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Kirill552/esg-auth/internal/config"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/redis/go-redis/v9"
)

// recordFailureScript increments the failure counter and places the block
// marker in one round trip, so concurrent failures on the same key can never
// both observe a count below the threshold.
//
// KEYS: counter, block marker, lockout count
// ARGV: window ms, block threshold, base lockout ms, multiplier, max lockout ms
// Returns: failures, lockouts, counter ttl ms, block ttl ms
var recordFailureScript = redis.NewScript(`
local blockTTL = redis.call('PTTL', KEYS[2])
if blockTTL > 0 then
  local n = tonumber(redis.call('GET', KEYS[1]) or '0')
  local l = tonumber(redis.call('GET', KEYS[3]) or '0')
  return {n, l, redis.call('PTTL', KEYS[1]), blockTTL}
end

local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end

local threshold = tonumber(ARGV[2])
local lockouts = tonumber(redis.call('GET', KEYS[3]) or '0')
local blockMs = -2
if n >= threshold then
  lockouts = redis.call('INCR', KEYS[3])
  local d = tonumber(ARGV[3]) * (tonumber(ARGV[4]) ^ (lockouts - 1))
  local cap = tonumber(ARGV[5])
  if d > cap then d = cap end
  d = math.floor(d)
  redis.call('PEXPIRE', KEYS[3], cap + tonumber(ARGV[1]))
  redis.call('SET', KEYS[2], lockouts, 'PX', d)
  -- after the lockout the key gets one attempt, under captcha, before the next lockout
  redis.call('SET', KEYS[1], threshold - 1, 'PX', d + tonumber(ARGV[1]))
  blockMs = d
end

return {n, lockouts, redis.call('PTTL', KEYS[1]), blockMs}
`)

// AttemptStore keeps brute-force counters in Redis. Expiry is left to key TTLs.
type AttemptStore struct {
	client *redis.Client
	prefix string
	policy config.GuardConfig
	now    func() time.Time
}

func NewAttemptStore(client *redis.Client, prefix string, policy config.GuardConfig) *AttemptStore {
	if prefix == "" {
		prefix = "bf"
	}
	return &AttemptStore{client: client, prefix: prefix, policy: policy, now: time.Now}
}

// KeyFor renders the Redis key of an attempt bucket. The identifier is hashed
// so raw emails never appear in Redis.
func (s *AttemptStore) KeyFor(key models.AttemptKey) string {
	ident := "-"
	if key.Identifier != "" {
		sum := sha256.Sum256([]byte(key.Identifier))
		ident = hex.EncodeToString(sum[:])[:16]
	}
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, key.Endpoint, key.ClientIP, ident)
}

func (s *AttemptStore) keys(key models.AttemptKey) []string {
	base := s.KeyFor(key)
	return []string{base, base + ":block", base + ":lockouts"}
}

// Get returns the current record; a key with no history yields a zero record
func (s *AttemptStore) Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	k := s.keys(key)

	pipe := s.client.Pipeline()
	countCmd := pipe.Get(ctx, k[0])
	countTTLCmd := pipe.PTTL(ctx, k[0])
	blockTTLCmd := pipe.PTTL(ctx, k[1])
	lockoutsCmd := pipe.Get(ctx, k[2])

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read attempt counters: %w", err)
	}

	failures, err := intOrZero(countCmd)
	if err != nil {
		return nil, err
	}
	lockouts, err := intOrZero(lockoutsCmd)
	if err != nil {
		return nil, err
	}

	return s.buildRecord(key, failures, lockouts, countTTLCmd.Val(), blockTTLCmd.Val()), nil
}

// RecordFailure atomically counts one failure and applies the lockout policy
func (s *AttemptStore) RecordFailure(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	res, err := recordFailureScript.Run(ctx, s.client, s.keys(key),
		s.policy.Window.Milliseconds(),
		s.policy.BlockThreshold,
		s.policy.LockoutDuration.Milliseconds(),
		s.policy.LockoutMultiplier,
		s.policy.MaxLockoutDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("record attempt failure: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("record attempt failure: unexpected script reply %v", res)
	}

	return s.buildRecord(key, int(res[0]), int(res[1]),
		time.Duration(res[2])*time.Millisecond,
		time.Duration(res[3])*time.Millisecond,
	), nil
}

// Reset clears the counter, block marker and lockout history of a key
func (s *AttemptStore) Reset(ctx context.Context, key models.AttemptKey) error {
	if err := s.client.Del(ctx, s.keys(key)...).Err(); err != nil {
		return fmt.Errorf("reset attempt counters: %w", err)
	}
	return nil
}

func (s *AttemptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *AttemptStore) buildRecord(key models.AttemptKey, failures, lockouts int, countTTL, blockTTL time.Duration) *models.AttemptRecord {
	now := s.now()
	record := &models.AttemptRecord{
		Key:      key,
		Failures: failures,
		Lockouts: lockouts,
	}
	if countTTL > 0 {
		t := now.Add(countTTL)
		record.WindowExpiresAt = &t
	}
	if blockTTL > 0 {
		t := now.Add(blockTTL)
		record.BlockedUntil = &t
	}
	return record
}

func intOrZero(cmd *redis.StringCmd) (int, error) {
	n, err := cmd.Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("parse attempt counter: %w", err)
	}
	return n, nil
}
