package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kirill552/esg-auth/internal/database"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TOTPRepository persists the single TOTP enrollment of a user
type TOTPRepository interface {
	CreateIfAbsent(ctx context.Context, enrollment *models.TOTPEnrollment) (bool, error)
	GetByUserID(ctx context.Context, userID string) (*models.TOTPEnrollment, error)
	Exists(ctx context.Context, userID string) (bool, error)
	AdvanceLastUsedStep(ctx context.Context, userID string, step int64) (bool, error)
}

type totpRepoImpl struct {
	db *pgxpool.Pool
}

func NewTOTPRepository(db *database.DB) TOTPRepository {
	return &totpRepoImpl{db: db.Pool}
}

// CreateIfAbsent inserts the enrollment unless one exists. It returns false
// when the user already had one, which also covers two concurrent setups.
func (r *totpRepoImpl) CreateIfAbsent(ctx context.Context, enrollment *models.TOTPEnrollment) (bool, error) {
	query := `
		INSERT INTO totp_enrollments (user_id, secret_encrypted, secret_nonce)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		enrollment.UserID,
		enrollment.SecretEncrypted,
		enrollment.SecretNonce,
	).Scan(&enrollment.CreatedAt)

	switch err = database.MapPostgresError(err); {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrNotFound):
		// ON CONFLICT DO NOTHING returns no row
		return false, nil
	default:
		return false, fmt.Errorf("failed to create TOTP enrollment: %w", err)
	}
}

func (r *totpRepoImpl) GetByUserID(ctx context.Context, userID string) (*models.TOTPEnrollment, error) {
	query := `
		SELECT user_id, secret_encrypted, secret_nonce, last_used_step, created_at
		FROM totp_enrollments
		WHERE user_id = $1
	`

	var e models.TOTPEnrollment
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&e.UserID,
		&e.SecretEncrypted,
		&e.SecretNonce,
		&e.LastUsedStep,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &e, nil
}

func (r *totpRepoImpl) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM totp_enrollments WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// AdvanceLastUsedStep records an accepted time step. It returns false when the
// step is not newer than the last accepted one, so a code cannot be replayed.
func (r *totpRepoImpl) AdvanceLastUsedStep(ctx context.Context, userID string, step int64) (bool, error) {
	query := `
		UPDATE totp_enrollments
		SET last_used_step = $2
		WHERE user_id = $1 AND (last_used_step IS NULL OR last_used_step < $2)
	`

	tag, err := r.db.Exec(ctx, query, userID, step)
	if err != nil {
		return false, fmt.Errorf("failed to advance TOTP step: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
