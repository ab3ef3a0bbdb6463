package repositories

import (
	"context"
	"fmt"

	"github.com/Kirill552/esg-auth/internal/database"
	"github.com/Kirill552/esg-auth/internal/models"
)

// LoginAttemptRepository keeps the durable history of guarded attempts.
// Counters live in Redis; this table is for audit and investigation only.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends one reported outcome
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (endpoint, identifier, ip_address, user_agent, success, failure_reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Endpoint,
		attempt.Identifier,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("record login attempt: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteExpiredAttempts removes history past its retention and returns the row count
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
