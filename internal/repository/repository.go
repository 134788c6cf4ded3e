// Package repository persists workflow entities with GORM.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/regdesk/backend/internal/models"
)

// ErrStaleStatus is returned when a compare-and-set on report status matched no row
var ErrStaleStatus = errors.New("report status changed concurrently")

// ReportFilter narrows a report listing. Nil fields are not applied.
type ReportFilter struct {
	CompanyID  *uuid.UUID
	OwnerID    *uuid.UUID
	Status     *models.ReportStatus
	ReportType *models.ReportType
	Search     string
	Limit      int
	Offset     int
}

// TransitionChange is written together with the new status in one statement
type TransitionChange struct {
	To               models.ReportStatus
	At               time.Time
	SubmittedAt      *time.Time
	ReviewedAt       *time.Time
	ReviewedBy       *uuid.UUID
	ReviewerComments *string
}

type ReportRepo interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Report, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Report, error)
	List(ctx context.Context, filter ReportFilter) ([]models.Report, int64, error)
	// UpdateDraft writes fields only while the report is still a draft
	UpdateDraft(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	// ApplyTransition moves id from `from` to change.To, or returns ErrStaleStatus
	ApplyTransition(ctx context.Context, id uuid.UUID, from models.ReportStatus, change TransitionChange) error
	// Delete removes the report and its comments and analyses if it is still in status
	Delete(ctx context.Context, id uuid.UUID, status models.ReportStatus) error
	ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Report, error)
	WithinTx(ctx context.Context, fn func(ReportRepo) error) error
}

type CommentRepo interface {
	Create(ctx context.Context, comment *models.Comment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type TemplateRepo interface {
	Create(ctx context.Context, template *models.ReportTemplate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReportTemplate, error)
	List(ctx context.Context, companyID *uuid.UUID) ([]models.ReportTemplate, error)
	Update(ctx context.Context, template *models.ReportTemplate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type AnalysisRepo interface {
	Create(ctx context.Context, analysis *models.ReportAnalysis) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReportAnalysis, error)
	Update(ctx context.Context, analysis *models.ReportAnalysis) error
	// ListForReport orders by created_at, newest first
	ListForReport(ctx context.Context, reportID uuid.UUID) ([]models.ReportAnalysis, error)
	// LatestForReport returns nil, nil when the report was never analysed
	LatestForReport(ctx context.Context, reportID uuid.UUID) (*models.ReportAnalysis, error)
}

type NotificationRepo interface {
	Create(ctx context.Context, notification *models.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	// ListForUser orders by created_at, newest first
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, int64, error)
	// MarkRead returns NotFound unless id belongs to userID
	MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}

type AuditRepo interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.AuditLog, error)
}

// Repos groups the GORM-backed repositories
type Repos struct {
	Report       ReportRepo
	Comment      CommentRepo
	Template     TemplateRepo
	Analysis     AnalysisRepo
	Notification NotificationRepo
	Audit        AuditRepo
}

func New(db *gorm.DB) *Repos {
	return &Repos{
		Report:       NewReportRepository(db),
		Comment:      NewCommentRepository(db),
		Template:     NewTemplateRepository(db),
		Analysis:     NewAnalysisRepository(db),
		Notification: NewNotificationRepository(db),
		Audit:        NewAuditRepository(db),
	}
}
