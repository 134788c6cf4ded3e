package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEventType represents the type of workflow event
type AuditEventType string

const (
	AuditEventReportCreated     AuditEventType = "REPORT_CREATED"
	AuditEventReportUpdated     AuditEventType = "REPORT_UPDATED"
	AuditEventReportSubmitted   AuditEventType = "REPORT_SUBMITTED"
	AuditEventReviewStarted     AuditEventType = "REVIEW_STARTED"
	AuditEventReportApproved    AuditEventType = "REPORT_APPROVED"
	AuditEventReportRejected    AuditEventType = "REPORT_REJECTED"
	AuditEventReportDeleted     AuditEventType = "REPORT_DELETED"
	AuditEventCommentAdded      AuditEventType = "COMMENT_ADDED"
	AuditEventCommentDeleted    AuditEventType = "COMMENT_DELETED"
	AuditEventAnalysisRequested AuditEventType = "ANALYSIS_REQUESTED"
	AuditEventAnalysisCompleted AuditEventType = "ANALYSIS_COMPLETED"
	AuditEventAnalysisFailed    AuditEventType = "ANALYSIS_FAILED"
)

// AuditLog is one workflow audit entry
type AuditLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Timestamp   time.Time      `gorm:"not null;index" json:"timestamp"`
	ActorID     *uuid.UUID     `gorm:"type:uuid" json:"actor_id"`
	ActorRole   Role           `gorm:"size:20" json:"actor_role"`
	CompanyID   *uuid.UUID     `gorm:"type:uuid;index" json:"company_id"`
	ReportID    *uuid.UUID     `gorm:"type:uuid;index" json:"report_id"`
	EventType   AuditEventType `gorm:"size:40;not null" json:"event_type"`
	Description string         `json:"description"`
	Details     datatypes.JSON `json:"details,omitempty"`
	Success     bool           `json:"success"`
}

// TableName specifies the table for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate sets the id and timestamp when unset
func (l *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	return nil
}
