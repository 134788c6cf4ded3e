package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AnalysisStatus tracks a scoring run
type AnalysisStatus string

const (
	AnalysisStatusPending    AnalysisStatus = "pending"
	AnalysisStatusProcessing AnalysisStatus = "processing"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusFailed     AnalysisStatus = "failed"
)

// PassingScore is the overall score at which the optional analysis checklist item completes
const PassingScore = 80

// ErrorDetail is one finding returned by the scoring service
type ErrorDetail struct {
	Type           string  `json:"type"`
	Severity       string  `json:"severity"`
	Location       string  `json:"location"`
	Expected       *string `json:"expected,omitempty"`
	Found          *string `json:"found,omitempty"`
	Recommendation string  `json:"recommendation"`
}

// ReportAnalysis stores the result of one scoring run. It never affects report status.
type ReportAnalysis struct {
	Base
	ReportID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"report_id"`
	CompanyID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	CountryCode   string         `gorm:"size:10" json:"country_code"`
	TaxTypes      datatypes.JSON `json:"tax_types,omitempty"`
	Status        AnalysisStatus `gorm:"size:20;not null" json:"status"`
	OverallScore  *int           `json:"overall_score"`
	TotalChecks   int            `json:"total_checks"`
	PassedChecks  int            `json:"passed_checks"`
	Errors        int            `json:"errors"`
	Warnings      int            `json:"warnings"`
	ErrorDetails  datatypes.JSON `json:"error_details,omitempty"`
	FailureReason string         `gorm:"type:text" json:"failure_reason,omitempty"`
	StartedAt     *time.Time     `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
}

// TableName specifies the table for ReportAnalysis
func (ReportAnalysis) TableName() string {
	return "report_analyses"
}

// Passed reports whether a completed run reached PassingScore
func (a *ReportAnalysis) Passed() bool {
	return a != nil && a.Status == AnalysisStatusCompleted && a.OverallScore != nil && *a.OverallScore >= PassingScore
}
