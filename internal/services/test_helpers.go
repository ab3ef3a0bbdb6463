package services

import (
	"context"
	"sync"
	"time"

	"github.com/Kirill552/esg-auth/internal/models"
)

// MockAttemptStore implements AttemptStore for testing
type MockAttemptStore struct {
	GetFunc           func(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error)
	RecordFailureFunc func(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error)
	ResetFunc         func(ctx context.Context, key models.AttemptKey) error
}

func (m *MockAttemptStore) Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return &models.AttemptRecord{Key: key}, nil
}

func (m *MockAttemptStore) RecordFailure(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, key)
	}
	return &models.AttemptRecord{Key: key, Failures: 1}, nil
}

func (m *MockAttemptStore) Reset(ctx context.Context, key models.AttemptKey) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, key)
	}
	return nil
}

// MockAttemptHistory implements AttemptHistory for testing
type MockAttemptHistory struct {
	RecordAttemptFunc func(ctx context.Context, attempt *models.LoginAttempt) error
}

func (m *MockAttemptHistory) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	return nil
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

// MockCaptchaVerifier implements CaptchaVerifier for testing
type MockCaptchaVerifier struct {
	ValidateForAuthFunc func(ctx context.Context, token, clientIP, action string) models.CaptchaResult
}

func (m *MockCaptchaVerifier) ValidateForAuth(ctx context.Context, token, clientIP, action string) models.CaptchaResult {
	if m.ValidateForAuthFunc != nil {
		return m.ValidateForAuthFunc(ctx, token, clientIP, action)
	}
	if token == "" {
		return models.CaptchaResult{Reason: models.CaptchaReasonMissingToken}
	}
	return models.CaptchaResult{Valid: true}
}

// MockSecondFactor implements SecondFactor for testing
type MockSecondFactor struct {
	StatusFunc     func(ctx context.Context, userID string) (bool, error)
	VerifyCodeFunc func(ctx context.Context, userID, code string) error
}

func (m *MockSecondFactor) Status(ctx context.Context, userID string) (bool, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, userID)
	}
	return false, nil
}

func (m *MockSecondFactor) VerifyCode(ctx context.Context, userID, code string) error {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, userID, code)
	}
	return models.ErrTOTPInvalidCode
}

// MockBackupCodeVerifier implements BackupCodeVerifier for testing
type MockBackupCodeVerifier struct {
	VerifyFunc func(ctx context.Context, userID, code string) error
}

func (m *MockBackupCodeVerifier) Verify(ctx context.Context, userID, code string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, userID, code)
	}
	return models.ErrBackupCodeInvalid
}

// MockSessionRevoker implements SessionRevoker for testing
type MockSessionRevoker struct {
	RevokeFunc func(ctx context.Context, session *models.RevokedSession) error
}

func (m *MockSessionRevoker) Revoke(ctx context.Context, session *models.RevokedSession) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, session)
	}
	return nil
}

// MockNotifier implements SecurityNotifier for testing
type MockNotifier struct {
	mu       sync.Mutex
	TOTP     []string
	Backup   []string
	FailWith error
}

func (m *MockNotifier) NotifyTOTPEnabled(ctx context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TOTP = append(m.TOTP, email)
	return m.FailWith
}

func (m *MockNotifier) NotifyBackupCodesRegenerated(ctx context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Backup = append(m.Backup, email)
	return m.FailWith
}

// MockReportStore implements ReportStore for testing
type MockReportStore struct {
	GetLatestByOrganizationFunc func(ctx context.Context, organizationID string) (*models.Report, error)
}

func (m *MockReportStore) GetLatestByOrganization(ctx context.Context, organizationID string) (*models.Report, error) {
	if m.GetLatestByOrganizationFunc != nil {
		return m.GetLatestByOrganizationFunc(ctx, organizationID)
	}
	return nil, models.ErrNotFound
}

// MemoryTOTPRepository is an in-memory TOTPRepository with the same
// conditional semantics as the Postgres one
type MemoryTOTPRepository struct {
	mu          sync.Mutex
	enrollments map[string]*models.TOTPEnrollment
}

func NewMemoryTOTPRepository() *MemoryTOTPRepository {
	return &MemoryTOTPRepository{enrollments: make(map[string]*models.TOTPEnrollment)}
}

func (r *MemoryTOTPRepository) CreateIfAbsent(ctx context.Context, enrollment *models.TOTPEnrollment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enrollments[enrollment.UserID]; ok {
		return false, nil
	}
	stored := *enrollment
	stored.CreatedAt = time.Now()
	r.enrollments[enrollment.UserID] = &stored
	return true, nil
}

func (r *MemoryTOTPRepository) GetByUserID(ctx context.Context, userID string) (*models.TOTPEnrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (r *MemoryTOTPRepository) Exists(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.enrollments[userID]
	return ok, nil
}

func (r *MemoryTOTPRepository) AdvanceLastUsedStep(ctx context.Context, userID string, step int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[userID]
	if !ok {
		return false, nil
	}
	if e.LastUsedStep != nil && *e.LastUsedStep >= step {
		return false, nil
	}
	e.LastUsedStep = &step
	return true, nil
}

// MemoryBackupCodeRepository is an in-memory BackupCodeRepository. Enabled
// users must be registered with Enable before codes can be stored.
type MemoryBackupCodeRepository struct {
	mu      sync.Mutex
	enabled map[string]bool
	codes   map[string]map[string]bool // user -> hash -> used
}

func NewMemoryBackupCodeRepository() *MemoryBackupCodeRepository {
	return &MemoryBackupCodeRepository{
		enabled: make(map[string]bool),
		codes:   make(map[string]map[string]bool),
	}
}

func (r *MemoryBackupCodeRepository) Enable(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[userID] = true
}

func (r *MemoryBackupCodeRepository) ReplaceUnused(ctx context.Context, userID string, hashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled[userID] {
		return models.ErrTOTPNotEnabled
	}
	kept := make(map[string]bool)
	for h, used := range r.codes[userID] {
		if used {
			kept[h] = true
		}
	}
	for _, h := range hashes {
		kept[h] = false
	}
	r.codes[userID] = kept
	return nil
}

func (r *MemoryBackupCodeRepository) Consume(ctx context.Context, userID, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	used, ok := r.codes[userID][hash]
	if !ok || used {
		return false, nil
	}
	r.codes[userID][hash] = true
	return true, nil
}

func (r *MemoryBackupCodeRepository) CountUnused(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, used := range r.codes[userID] {
		if !used {
			n++
		}
	}
	return n, nil
}
