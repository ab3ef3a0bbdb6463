package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Kirill552/esg-auth/internal/models"
)

// Report validation codes
const (
	ReportIssueNotFound      = "report_not_found"
	ReportIssueYearRange     = "year_out_of_range"
	ReportIssueScopeMismatch = "scope1_sources_mismatch"
)

// MinReportingYear is the first year the reporting regime applies to
const MinReportingYear = 2022

const scopeTolerance = 0.01

// ReportStore loads report drafts
type ReportStore interface {
	GetLatestByOrganization(ctx context.Context, organizationID string) (*models.Report, error)
}

// ReportService runs the structural checks on a report draft
type ReportService struct {
	reports  ReportStore
	validate *validator.Validate
	now      func() time.Time
}

func NewReportService(reports ReportStore) *ReportService {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ReportService{reports: reports, validate: v, now: time.Now}
}

// ValidateLatest checks the newest report of the organization. A user
// without an organization or report gets an invalid result, not an error.
func (s *ReportService) ValidateLatest(ctx context.Context, organizationID string) (*models.ValidationResult, error) {
	result := &models.ValidationResult{
		Errors:    []models.ValidationIssue{},
		Warnings:  []models.ValidationIssue{},
		CheckedAt: s.now().UTC(),
	}

	if organizationID == "" {
		result.Errors = append(result.Errors, notFoundIssue())
		return result, nil
	}

	report, err := s.reports.GetLatestByOrganization(ctx, organizationID)
	if errors.Is(err, models.ErrNotFound) {
		result.Errors = append(result.Errors, notFoundIssue())
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}

	result.ReportID = report.ID
	result.Errors = append(result.Errors, s.structIssues(report)...)

	if year := s.now().Year(); report.ReportingYear < MinReportingYear || report.ReportingYear > year {
		result.Errors = append(result.Errors, models.ValidationIssue{
			Field:   "reportingYear",
			Code:    ReportIssueYearRange,
			Message: fmt.Sprintf("reporting year must be between %d and %d", MinReportingYear, year),
		})
	}

	if len(report.Sources) > 0 {
		var sum float64
		for _, src := range report.Sources {
			sum += src.TCO2e
		}
		if math.Abs(sum-report.Scope1TCO2e) > scopeTolerance {
			result.Warnings = append(result.Warnings, models.ValidationIssue{
				Field:   "scope1",
				Code:    ReportIssueScopeMismatch,
				Message: fmt.Sprintf("sources add up to %.2f tCO2e, scope 1 is %.2f", sum, report.Scope1TCO2e),
			})
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

func (s *ReportService) structIssues(report *models.Report) []models.ValidationIssue {
	err := s.validate.Struct(report)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []models.ValidationIssue{{Field: "report", Code: "invalid", Message: err.Error()}}
	}

	issues := make([]models.ValidationIssue, 0, len(ve))
	for _, fe := range ve {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		issues = append(issues, models.ValidationIssue{
			Field:   field,
			Code:    fe.Tag(),
			Message: issueMessage(fe),
		})
	}
	return issues
}

func issueMessage(fe validator.FieldError) string {
	// or-groups such as len=10|len=12 report the whole group as the tag
	if strings.HasPrefix(fe.Tag(), "len") {
		return "must be 10 or 12 digits"
	}
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "numeric":
		return "must contain digits only"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

func notFoundIssue() models.ValidationIssue {
	return models.ValidationIssue{
		Field:   "report",
		Code:    ReportIssueNotFound,
		Message: "no report found for the organization",
	}
}
