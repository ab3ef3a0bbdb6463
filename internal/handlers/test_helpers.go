package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Kirill552/esg-auth/internal/auth"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/Kirill552/esg-auth/internal/services"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.1:40000"
	return req
}

// WithSessionUser places a resolved session user in the request context
func WithSessionUser(req *http.Request, user *models.SessionUser) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

// TestSessionUser is the caller used by protected handler tests
func TestSessionUser() *models.SessionUser {
	return &models.SessionUser{ID: "user-1", Email: "a@b.com", Name: "Анна", OrganizationID: "org-1", SessionID: "jti-1"}
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorBody checks the status and that the body is exactly {"error": code}
func AssertErrorBody(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, code string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.JSONEq(t, `{"error":"`+code+`"}`, w.Body.String())
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc  func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	LogoutFunc func(ctx context.Context, user *models.SessionUser, clientIP string) error
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) Logout(ctx context.Context, user *models.SessionUser, clientIP string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, user, clientIP)
	}
	return nil
}

// MockSessionResolver implements SessionResolver for testing
type MockSessionResolver struct {
	CurrentUserFunc func(r *http.Request) (*models.SessionUser, error)
}

func (m *MockSessionResolver) CurrentUser(r *http.Request) (*models.SessionUser, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(r)
	}
	return nil, models.ErrUnauthorized
}

// MockGuard implements GuardChecker for testing
type MockGuard struct {
	CheckFunc func(ctx context.Context, key models.AttemptKey) models.GuardStatus
}

func (m *MockGuard) Check(ctx context.Context, key models.AttemptKey) models.GuardStatus {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, key)
	}
	return m.SafeDefault()
}

func (m *MockGuard) SafeDefault() models.GuardStatus {
	return models.GuardStatus{RemainingAttempts: 5}
}

// MockCaptchaService implements CaptchaServiceInterface for testing
type MockCaptchaService struct {
	ClientConfigFunc    func() (models.CaptchaClientConfig, error)
	ValidateForAuthFunc func(ctx context.Context, token, clientIP, action string) models.CaptchaResult
}

func (m *MockCaptchaService) ClientConfig() (models.CaptchaClientConfig, error) {
	if m.ClientConfigFunc != nil {
		return m.ClientConfigFunc()
	}
	return models.CaptchaClientConfig{}, nil
}

func (m *MockCaptchaService) ValidateForAuth(ctx context.Context, token, clientIP, action string) models.CaptchaResult {
	if m.ValidateForAuthFunc != nil {
		return m.ValidateForAuthFunc(ctx, token, clientIP, action)
	}
	return models.CaptchaResult{Valid: true}
}

// MockTOTPService implements TOTPServiceInterface for testing
type MockTOTPService struct {
	SetupFunc  func(ctx context.Context, user *models.SessionUser) (*models.TOTPSetup, error)
	StatusFunc func(ctx context.Context, userID string) (bool, error)
}

func (m *MockTOTPService) Setup(ctx context.Context, user *models.SessionUser) (*models.TOTPSetup, error) {
	if m.SetupFunc != nil {
		return m.SetupFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTOTPService) Status(ctx context.Context, userID string) (bool, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, userID)
	}
	return false, nil
}

// MockBackupCodeService implements BackupCodeServiceInterface for testing
type MockBackupCodeService struct {
	GenerateFunc func(ctx context.Context, user *models.SessionUser) ([]string, error)
}

func (m *MockBackupCodeService) Generate(ctx context.Context, user *models.SessionUser) ([]string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, user)
	}
	return nil, models.ErrTOTPNotEnabled
}

// MockReportValidator implements ReportValidator for testing
type MockReportValidator struct {
	ValidateLatestFunc func(ctx context.Context, organizationID string) (*models.ValidationResult, error)
}

func (m *MockReportValidator) ValidateLatest(ctx context.Context, organizationID string) (*models.ValidationResult, error) {
	if m.ValidateLatestFunc != nil {
		return m.ValidateLatestFunc(ctx, organizationID)
	}
	return &models.ValidationResult{}, nil
}
