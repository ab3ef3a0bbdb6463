package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Kirill552/esg-auth/internal/database"
	"github.com/Kirill552/esg-auth/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReportRepository struct {
	pool *pgxpool.Pool
}

func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{pool: db.Pool}
}

// GetLatestByOrganization returns the most recently updated report, or
// models.ErrNotFound
func (r *ReportRepository) GetLatestByOrganization(ctx context.Context, organizationID string) (*models.Report, error) {
	query := `
		SELECT id, organization_id, organization_name, inn, reporting_year,
		       scope1_tco2e, scope2_tco2e, sources, status, updated_at
		FROM reports
		WHERE organization_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var report models.Report
	var sources []byte
	err := r.pool.QueryRow(ctx, query, organizationID).Scan(
		&report.ID,
		&report.OrganizationID,
		&report.OrganizationName,
		&report.INN,
		&report.ReportingYear,
		&report.Scope1TCO2e,
		&report.Scope2TCO2e,
		&sources,
		&report.Status,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if err := json.Unmarshal(sources, &report.Sources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal emission sources: %w", err)
	}

	return &report, nil
}
