package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserLookup struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (m *mockUserLookup) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.GetByIDFunc(ctx, id)
}

type mockRevocationChecker struct {
	IsRevokedFunc func(ctx context.Context, jti string) (bool, error)
}

func (m *mockRevocationChecker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return m.IsRevokedFunc(ctx, jti)
}

func newTestResolver(users *mockUserLookup, revocations *mockRevocationChecker) (*SessionResolver, *SessionManager) {
	sm := NewSessionManager(testSessionSecret, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSessionResolver(sm, users, revocations, logger), sm
}

func existingUser() *mockUserLookup {
	org := "org-1"
	return &mockUserLookup{GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: id, Email: "a@b.com", Name: "Anna", OrganizationID: &org}, nil
	}}
}

func notRevoked() *mockRevocationChecker {
	return &mockRevocationChecker{IsRevokedFunc: func(ctx context.Context, jti string) (bool, error) {
		return false, nil
	}}
}

func requestWithSession(t *testing.T, sm *SessionManager) *http.Request {
	t.Helper()
	token, _, err := sm.Issue(&models.User{ID: "user-1", Email: "a@b.com"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/totp/status", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	return req
}

func TestCurrentUser_FromCookie(t *testing.T) {
	resolver, sm := newTestResolver(existingUser(), notRevoked())

	user, err := resolver.CurrentUser(requestWithSession(t, sm))
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "org-1", user.OrganizationID)
	assert.NotEmpty(t, user.SessionID)
}

func TestCurrentUser_FromBearerHeader(t *testing.T) {
	resolver, sm := newTestResolver(existingUser(), notRevoked())
	token, _, err := sm.Issue(&models.User{ID: "user-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	user, err := resolver.CurrentUser(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
}

func TestCurrentUser_Unauthorized(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		resolver, _ := newTestResolver(existingUser(), notRevoked())
		_, err := resolver.CurrentUser(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("revoked", func(t *testing.T) {
		revoked := &mockRevocationChecker{IsRevokedFunc: func(ctx context.Context, jti string) (bool, error) {
			return true, nil
		}}
		resolver, sm := newTestResolver(existingUser(), revoked)
		_, err := resolver.CurrentUser(requestWithSession(t, sm))
		assert.ErrorIs(t, err, models.ErrUnauthorized)
		assert.ErrorIs(t, err, models.ErrSessionRevoked)
	})

	t.Run("deleted user", func(t *testing.T) {
		gone := &mockUserLookup{GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return nil, models.ErrNotFound
		}}
		resolver, sm := newTestResolver(gone, notRevoked())
		_, err := resolver.CurrentUser(requestWithSession(t, sm))
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})
}

func TestCurrentUser_StoreFailureIsNotUnauthorized(t *testing.T) {
	broken := &mockRevocationChecker{IsRevokedFunc: func(ctx context.Context, jti string) (bool, error) {
		return false, errors.New("connection refused")
	}}
	resolver, sm := newTestResolver(existingUser(), broken)

	user, err := resolver.CurrentUser(requestWithSession(t, sm))
	assert.Nil(t, user)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrUnauthorized)
}

func TestRequireSession_ExactUnauthorizedBody(t *testing.T) {
	resolver, _ := newTestResolver(existingUser(), notRevoked())
	called := false
	handler := resolver.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/totp/setup", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `{"error":"unauthorized"}`+"\n", w.Body.String())
}

func TestRequireSession_InternalError(t *testing.T) {
	broken := &mockRevocationChecker{IsRevokedFunc: func(ctx context.Context, jti string) (bool, error) {
		return false, errors.New("connection refused")
	}}
	resolver, sm := newTestResolver(existingUser(), broken)
	handler := resolver.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession(t, sm))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, w.Body.String())
}

func TestRequireSession_PutsUserInContext(t *testing.T) {
	resolver, sm := newTestResolver(existingUser(), notRevoked())

	var got *models.SessionUser
	handler := resolver.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), requestWithSession(t, sm))

	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.ID)
}

func TestUserFromContext_Empty(t *testing.T) {
	assert.Nil(t, UserFromContext(context.Background()))
}
