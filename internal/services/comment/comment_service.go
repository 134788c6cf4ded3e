package comment

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/audit"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/repository"
	"github.com/regdesk/backend/internal/workflow"
)

// MaxBodyLength bounds a single comment
const MaxBodyLength = 5000

// CommentService manages the advisory comment thread of a report.
// Comments never read or change report status.
type CommentService struct {
	comments repository.CommentRepo
	reports  repository.ReportRepo
	audit    *audit.Logger
	log      *logrus.Logger
	timeout  time.Duration
}

// NewCommentService creates a new comment service
func NewCommentService(repos *repository.Repos, auditLogger *audit.Logger, log *logrus.Logger, timeout time.Duration) *CommentService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CommentService{
		comments: repos.Comment,
		reports:  repos.Report,
		audit:    auditLogger,
		log:      log,
		timeout:  timeout,
	}
}

func (s *CommentService) begin(ctx context.Context, actor models.Actor) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return database.ScopeContext(ctx, actor), cancel
}

// Add appends a comment authored by actor
func (s *CommentService) Add(ctx context.Context, actor models.Actor, reportID uuid.UUID, body string) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.Validation("body", "comment body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, apperrors.Validation("body", "comment body is too long")
	}

	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionComment, report); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:        uuid.New(),
		ReportID:  report.ID,
		AuthorID:  actor.UserID,
		CompanyID: report.CompanyID,
		Body:      body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventCommentAdded,
		Actor:       actor,
		CompanyID:   report.CompanyID,
		ReportID:    report.ID,
		Description: "Comment added",
		Success:     true,
		Metadata:    map[string]interface{}{"comment_id": comment.ID},
	})
	return comment, nil
}

// Remove deletes a comment. Only its author or an elevated role may do so.
func (s *CommentService) Remove(ctx context.Context, actor models.Actor, commentID uuid.UUID) error {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.AuthorizeCommentRemoval(actor, comment); err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, commentID); err != nil {
		return apperrors.OrTimeout(ctx, err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventCommentDeleted,
		Actor:       actor,
		CompanyID:   comment.CompanyID,
		ReportID:    comment.ReportID,
		Description: "Comment deleted",
		Success:     true,
		Metadata:    map[string]interface{}{"comment_id": comment.ID, "author_id": comment.AuthorID},
	})
	return nil
}

// List returns the thread oldest first
func (s *CommentService) List(ctx context.Context, actor models.Actor, reportID uuid.UUID) ([]models.Comment, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionView, report); err != nil {
		return nil, err
	}

	comments, err := s.comments.ListByReport(ctx, reportID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	return comments, nil
}
