//go:build integration

// Package dbtest starts a disposable Postgres for repository integration tests.
package dbtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Kirill552/esg-auth/internal/database"
)

type TestDB struct {
	Container testcontainers.Container
	DB        *database.DB
}

// Setup starts postgres:16-alpine and applies the embedded migrations
func Setup(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("esg"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &TestDB{Container: container, DB: db}, nil
}

func (t *TestDB) Teardown(ctx context.Context) error {
	t.DB.Pool.Close()
	return t.Container.Terminate(ctx)
}

// Truncate empties every table between tests
func (t *TestDB) Truncate(ctx context.Context) error {
	_, err := t.DB.Pool.Exec(ctx, `
		TRUNCATE backup_codes, totp_enrollments, revoked_sessions, login_attempts,
		         reports, users, organizations CASCADE
	`)
	return err
}

// SeedOrganization inserts an organization and returns its id
func (t *TestDB) SeedOrganization(ctx context.Context, name string) (string, error) {
	var id string
	err := t.DB.Pool.QueryRow(ctx,
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`, name,
	).Scan(&id)
	return id, err
}
