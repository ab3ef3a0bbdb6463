package models

import "time"

// Report statuses
const (
	ReportStatusDraft     = "draft"
	ReportStatusSubmitted = "submitted"
)

// EmissionSource is a single line of a scope-1 inventory
type EmissionSource struct {
	Name  string  `json:"name" validate:"required"`
	Gas   string  `json:"gas" validate:"omitempty,oneof=CO2 CH4 N2O HFC PFC SF6"`
	TCO2e float64 `json:"tco2e" validate:"gte=0"`
}

// Report is a carbon report draft owned by an organization
type Report struct {
	ID               string           `json:"id" validate:"required"`
	OrganizationID   string           `json:"organizationId" validate:"required"`
	OrganizationName string           `json:"organizationName" validate:"required"`
	INN              string           `json:"inn" validate:"required,numeric,len=10|len=12"`
	ReportingYear    int              `json:"reportingYear" validate:"required"`
	Scope1TCO2e      float64          `json:"scope1" validate:"gte=0"`
	Scope2TCO2e      float64          `json:"scope2" validate:"gte=0"`
	Sources          []EmissionSource `json:"sources" validate:"dive"`
	Status           string           `json:"status"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ValidationIssue is a single finding of the report validator
type ValidationIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult is the structural check of a report
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	ReportID  string            `json:"reportId,omitempty"`
	Errors    []ValidationIssue `json:"errors"`
	Warnings  []ValidationIssue `json:"warnings"`
	CheckedAt time.Time         `json:"checkedAt"`
}
