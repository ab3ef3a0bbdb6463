package repositories

import (
	"context"
	"fmt"

	"github.com/Kirill552/esg-auth/internal/database"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRevocationRepository(db *database.DB) *SessionRevocationRepository {
	return &SessionRevocationRepository{pool: db.Pool}
}

// Revoke blacklists a session JTI until the session would have expired anyway
func (r *SessionRevocationRepository) Revoke(ctx context.Context, session *models.RevokedSession) error {
	query := `
		INSERT INTO revoked_sessions (jti, user_id, expires_at, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, session.JTI, session.UserID, session.ExpiresAt, session.Reason); err != nil {
		return fmt.Errorf("revoke session: %w", database.MapPostgresError(err))
	}
	return nil
}

func (r *SessionRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_sessions WHERE jti = $1)`, jti).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// DeleteExpired drops entries whose session has expired
func (r *SessionRevocationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM revoked_sessions WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
