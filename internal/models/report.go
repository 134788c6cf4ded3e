package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ReportStatus is the lifecycle position of a report
type ReportStatus string

const (
	ReportStatusDraft       ReportStatus = "draft"
	ReportStatusSubmitted   ReportStatus = "submitted"
	ReportStatusUnderReview ReportStatus = "under_review"
	ReportStatusApproved    ReportStatus = "approved"
	ReportStatusRejected    ReportStatus = "rejected"
)

// Valid reports whether s is a known status
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusDraft, ReportStatusSubmitted, ReportStatusUnderReview, ReportStatusApproved, ReportStatusRejected:
		return true
	}
	return false
}

// Decided reports whether a review decision has been recorded
func (s ReportStatus) Decided() bool {
	return s == ReportStatusApproved || s == ReportStatusRejected
}

// ReportType classifies a report
type ReportType string

const (
	ReportTypeCompliance     ReportType = "compliance"
	ReportTypeAudit          ReportType = "audit"
	ReportTypeFinancial      ReportType = "financial"
	ReportTypeRiskAssessment ReportType = "risk_assessment"
)

// Report is a regulatory report moving through the review workflow
type Report struct {
	Base
	Title            string         `gorm:"size:255;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	ReportType       ReportType     `gorm:"size:50;not null" json:"report_type"`
	Status           ReportStatus   `gorm:"size:50;not null;default:draft;index" json:"status"`
	OwnerID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	CompanyID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	TenantID         uuid.UUID      `gorm:"type:uuid" json:"tenant_id"`
	CountryCode      string         `gorm:"size:10" json:"country_code,omitempty"`
	TaxTypes         datatypes.JSON `json:"tax_types,omitempty"`
	FileReference    string         `gorm:"size:500" json:"file_reference,omitempty"`
	FileName         string         `gorm:"size:255" json:"file_name,omitempty"`
	FileSize         int64          `json:"file_size,omitempty"`
	SubmittedAt      *time.Time     `json:"submitted_at"`
	ReviewedAt       *time.Time     `json:"reviewed_at"`
	ReviewedBy       *uuid.UUID     `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewerComments string         `gorm:"type:text" json:"reviewer_comments,omitempty"`

	Checklist *ChecklistResult `gorm:"-" json:"checklist,omitempty"`
}

// TableName specifies the table for Report
func (Report) TableName() string {
	return "reports"
}

// HasFile reports whether an artifact is attached
func (r *Report) HasFile() bool {
	return r.FileReference != ""
}

// Decision is the outcome a reviewer records
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether d is approved or rejected
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// ReviewDecision is applied to a report by the decide transition
type ReviewDecision struct {
	ReportID   uuid.UUID `json:"report_id"`
	Decision   Decision  `json:"decision"`
	ReviewerID uuid.UUID `json:"reviewer_id"`
	Comment    string    `json:"comment"`
}

// ReportDraftInput carries the fields needed to create a draft.
// Template.Use returns one; ReportService.Create consumes one.
type ReportDraftInput struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	ReportType  ReportType `json:"report_type" validate:"required,oneof=compliance audit financial risk_assessment"`
	CompanyID   uuid.UUID  `json:"company_id"`
	CountryCode string     `json:"country_code" validate:"omitempty,max=10"`
	TaxTypes    []string   `json:"tax_types"`
}

// ReportUpdateInput carries owner edits to a draft
type ReportUpdateInput struct {
	Title       *string     `json:"title" validate:"omitempty,max=255"`
	Description *string     `json:"description"`
	ReportType  *ReportType `json:"report_type" validate:"omitempty,oneof=compliance audit financial risk_assessment"`
	CountryCode *string     `json:"country_code" validate:"omitempty,max=10"`
	TaxTypes    []string    `json:"tax_types"`
}

// ReportSummary is a listing row
type ReportSummary struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	ReportType  ReportType   `json:"report_type"`
	Status      ReportStatus `json:"status"`
	OwnerID     uuid.UUID    `json:"owner_id"`
	CompanyID   uuid.UUID    `json:"company_id"`
	HasFile     bool         `json:"has_file"`
	FileName    string       `json:"file_name,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	SubmittedAt *time.Time   `json:"submitted_at"`
	ReviewedAt  *time.Time   `json:"reviewed_at"`
}

// Summary projects a report into a listing row
func (r *Report) Summary() ReportSummary {
	return ReportSummary{
		ID:          r.ID,
		Title:       r.Title,
		ReportType:  r.ReportType,
		Status:      r.Status,
		OwnerID:     r.OwnerID,
		CompanyID:   r.CompanyID,
		HasFile:     r.HasFile(),
		FileName:    r.FileName,
		CreatedAt:   r.CreatedAt,
		SubmittedAt: r.SubmittedAt,
		ReviewedAt:  r.ReviewedAt,
	}
}
