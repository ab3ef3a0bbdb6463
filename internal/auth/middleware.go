package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Kirill552/esg-auth/internal/models"
	pkghttp "github.com/Kirill552/esg-auth/pkg/http"
)

type contextKey string

const userContextKey contextKey = "session_user"

// UserLookup fetches the account behind a session
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RevocationChecker reports whether a session JTI was revoked
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// SessionResolver turns the request's session token into a user
type SessionResolver struct {
	sessions    *SessionManager
	users       UserLookup
	revocations RevocationChecker
	logger      *slog.Logger
}

func NewSessionResolver(sessions *SessionManager, users UserLookup, revocations RevocationChecker, logger *slog.Logger) *SessionResolver {
	return &SessionResolver{
		sessions:    sessions,
		users:       users,
		revocations: revocations,
		logger:      logger,
	}
}

// CurrentUser returns the caller or an error, never neither. A missing,
// invalid or revoked session, or a deleted account, yields
// models.ErrUnauthorized; store failures are returned wrapped.
func (sr *SessionResolver) CurrentUser(r *http.Request) (*models.SessionUser, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := sr.sessions.Parse(token)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	revoked, err := sr.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check session revocation: %w", err)
	}
	if revoked {
		return nil, errors.Join(models.ErrUnauthorized, models.ErrSessionRevoked)
	}

	user, err := sr.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}

	su := &models.SessionUser{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		SessionID: claims.ID,
	}
	if user.OrganizationID != nil {
		su.OrganizationID = *user.OrganizationID
	}
	if claims.ExpiresAt != nil {
		su.SessionExpires = claims.ExpiresAt.Time
	}
	return su, nil
}

// RequireSession rejects requests without a valid session with 401
// {"error":"unauthorized"} and stores the user in the request context
func (sr *SessionResolver) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := sr.CurrentUser(r)
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w)
			return
		}
		if err != nil {
			sr.logger.Error("session resolution failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			pkghttp.WriteInternalError(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func WithUser(ctx context.Context, user *models.SessionUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns nil outside RequireSession
func UserFromContext(ctx context.Context) *models.SessionUser {
	user, _ := ctx.Value(userContextKey).(*models.SessionUser)
	return user
}
