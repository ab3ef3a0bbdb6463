package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kirill552/esg-auth/internal/database"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// BackupCodeRepository stores hashed one-time backup codes
type BackupCodeRepository interface {
	ReplaceUnused(ctx context.Context, userID string, hashes []string) error
	Consume(ctx context.Context, userID, hash string) (bool, error)
	CountUnused(ctx context.Context, userID string) (int, error)
}

type backupCodeRepoImpl struct {
	db *database.DB
}

func NewBackupCodeRepository(db *database.DB) BackupCodeRepository {
	return &backupCodeRepoImpl{db: db}
}

// ReplaceUnused swaps the user's unused codes for a new batch in one
// transaction. The enrollment row lock serializes concurrent regenerations
// for the same user; without an enrollment the call fails with
// models.ErrTOTPNotEnabled.
func (r *backupCodeRepoImpl) ReplaceUnused(ctx context.Context, userID string, hashes []string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx,
			`SELECT user_id FROM totp_enrollments WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrTOTPNotEnabled
		}
		if err != nil {
			return fmt.Errorf("lock TOTP enrollment: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM backup_codes WHERE user_id = $1 AND used_at IS NULL`, userID,
		); err != nil {
			return fmt.Errorf("delete unused backup codes: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO backup_codes (user_id, code_hash)
			SELECT $1, unnest($2::text[])
		`, userID, pq.Array(hashes)); err != nil {
			return fmt.Errorf("insert backup codes: %w", database.MapPostgresError(err))
		}

		return nil
	})
}

// Consume marks a code used. The conditional update is the whole check, so
// two concurrent uses of one code cannot both succeed.
func (r *backupCodeRepoImpl) Consume(ctx context.Context, userID, hash string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE backup_codes SET used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`, userID, hash)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *backupCodeRepoImpl) CountUnused(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = $1 AND used_at IS NULL`, userID,
	).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}
