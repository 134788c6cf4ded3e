// Package audit records workflow events.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/repository"
)

// Event is one auditable workflow action
type Event struct {
	Type        models.AuditEventType
	Actor       models.Actor
	CompanyID   uuid.UUID
	ReportID    uuid.UUID
	Description string
	Success     bool
	Metadata    map[string]interface{}
}

// Logger is the audit logger
type Logger struct {
	repo repository.AuditRepo
	log  *logrus.Logger
}

// NewLogger creates a new audit logger
func NewLogger(repo repository.AuditRepo, log *logrus.Logger) *Logger {
	return &Logger{repo: repo, log: log}
}

// Record stores an event. A failed write is logged and never fails the caller.
func (l *Logger) Record(ctx context.Context, event Event) {
	entry := &models.AuditLog{
		ActorRole:   event.Actor.Role,
		EventType:   event.Type,
		Description: event.Description,
		Success:     event.Success,
	}
	if event.Actor.UserID != uuid.Nil {
		actorID := event.Actor.UserID
		entry.ActorID = &actorID
	}
	if event.CompanyID != uuid.Nil {
		companyID := event.CompanyID
		entry.CompanyID = &companyID
	}
	if event.ReportID != uuid.Nil {
		reportID := event.ReportID
		entry.ReportID = &reportID
	}
	if event.Metadata != nil {
		metadataBytes, err := json.Marshal(event.Metadata)
		if err == nil {
			entry.Details = datatypes.JSON(metadataBytes)
		}
	}

	// The operation being audited may have used up ctx's deadline
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		config.LogError(l.log, "audit", "Record", string(event.Type), event.ReportID, err)
		return
	}

	l.log.WithFields(logrus.Fields{
		"event":     event.Type,
		"report_id": event.ReportID,
		"actor_id":  event.Actor.UserID,
		"success":   event.Success,
	}).Info(event.Description)
}

// History returns the audit trail of a report in time order
func (l *Logger) History(ctx context.Context, reportID uuid.UUID) ([]models.AuditLog, error) {
	return l.repo.ListByReport(ctx, reportID)
}
