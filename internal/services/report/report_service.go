package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/audit"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/repository"
	"github.com/regdesk/backend/internal/services/notification"
	"github.com/regdesk/backend/internal/services/storage"
	"github.com/regdesk/backend/internal/utils"
	"github.com/regdesk/backend/internal/workflow"
)

// Upload is a file attached to a draft
type Upload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// Notifier delivers owner notifications about lifecycle events
type Notifier interface {
	Notify(ctx context.Context, msg notification.Message) error
}

// Options tunes the report service. A nil Notifier disables notifications.
type Options struct {
	OperationTimeout time.Duration
	MaxUploadSize    int64
	Notifier         Notifier
}

// ReportService applies the report lifecycle: drafts, checklist gating and status transitions
type ReportService struct {
	reports   repository.ReportRepo
	analyses  repository.AnalysisRepo
	store     storage.ArtifactStore
	evaluator *workflow.Evaluator
	audit     *audit.Logger
	validate  *validator.Validate
	log       *logrus.Logger
	opts      Options
	now       func() time.Time
}

// NewReportService creates a new report service
func NewReportService(repos *repository.Repos, store storage.ArtifactStore, evaluator *workflow.Evaluator, auditLogger *audit.Logger, log *logrus.Logger, opts Options) *ReportService {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 10 * time.Second
	}
	return &ReportService{
		reports:   repos.Report,
		analyses:  repos.Analysis,
		store:     store,
		evaluator: evaluator,
		audit:     auditLogger,
		validate:  utils.NewValidator(),
		log:       log,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// begin bounds the operation and scopes persistence to the actor's tenant
func (s *ReportService) begin(ctx context.Context, actor models.Actor) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	return database.ScopeContext(ctx, actor), cancel
}

// Create stores a new draft owned by actor. input usually comes from the client
// or from TemplateService.Use.
func (s *ReportService) Create(ctx context.Context, actor models.Actor, input models.ReportDraftInput, file *Upload) (*models.Report, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	companyID := input.CompanyID
	if companyID == uuid.Nil || !actor.CrossTenant() {
		if companyID != uuid.Nil && companyID != actor.CompanyID {
			return nil, apperrors.Forbidden(string(workflow.ActionCreate))
		}
		companyID = actor.CompanyID
	}
	if err := workflow.AuthorizeCreate(actor, companyID); err != nil {
		return nil, err
	}

	input.Title = strings.TrimSpace(input.Title)
	if err := utils.ValidateStruct(s.validate, input); err != nil {
		return nil, err
	}

	report := &models.Report{
		Base:        models.Base{ID: uuid.New()},
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		ReportType:  input.ReportType,
		Status:      models.ReportStatusDraft,
		OwnerID:     actor.UserID,
		CompanyID:   companyID,
		TenantID:    actor.TenantID,
		CountryCode: strings.ToUpper(strings.TrimSpace(input.CountryCode)),
		TaxTypes:    models.EncodeStrings(input.TaxTypes),
	}

	if file != nil {
		if err := s.attach(ctx, report, file); err != nil {
			return nil, apperrors.OrTimeout(ctx, err)
		}
	}

	if err := s.reports.Create(ctx, report); err != nil {
		if report.HasFile() {
			s.removeArtifact(ctx, report.FileReference)
		}
		config.LogError(s.log, "report", "Create", "persist draft", report.ID, err)
		return nil, apperrors.OrTimeout(ctx, err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventReportCreated,
		Actor:       actor,
		CompanyID:   report.CompanyID,
		ReportID:    report.ID,
		Description: "Report draft created",
		Success:     true,
		Metadata:    map[string]interface{}{"title": report.Title, "report_type": report.ReportType},
	})

	return s.withChecklist(ctx, report)
}

// Get returns a report with its current checklist
func (s *ReportService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Report, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionView, report); err != nil {
		return nil, err
	}
	return s.withChecklist(ctx, report)
}

// Checklist evaluates the checklist of a report. The result is advisory; Submit re-evaluates.
func (s *ReportService) Checklist(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ChecklistResult, error) {
	report, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return report.Checklist, nil
}

// Update edits a draft. Only the owner (or a superadmin) may edit, and only while draft.
func (s *ReportService) Update(ctx context.Context, actor models.Actor, id uuid.UUID, input models.ReportUpdateInput, file *Upload) (*models.Report, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionUpdate, report); err != nil {
		return nil, err
	}
	if report.Status != models.ReportStatusDraft {
		return nil, apperrors.InvalidTransition(workflow.ReasonWrongStatus,
			fmt.Sprintf("report is %s; only drafts can be edited", report.Status), nil)
	}
	if err := utils.ValidateStruct(s.validate, input); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.Validation("title", "title cannot be empty")
		}
		fields["title"] = title
	}
	if input.Description != nil {
		fields["description"] = strings.TrimSpace(*input.Description)
	}
	if input.ReportType != nil {
		fields["report_type"] = *input.ReportType
	}
	if input.CountryCode != nil {
		fields["country_code"] = strings.ToUpper(strings.TrimSpace(*input.CountryCode))
	}
	if input.TaxTypes != nil {
		fields["tax_types"] = models.EncodeStrings(input.TaxTypes)
	}

	previousFile := report.FileReference
	if file != nil {
		if err := s.attach(ctx, report, file); err != nil {
			return nil, apperrors.OrTimeout(ctx, err)
		}
		fields["file_reference"] = report.FileReference
		fields["file_name"] = report.FileName
		fields["file_size"] = report.FileSize
	}

	if len(fields) == 0 {
		return s.withChecklist(ctx, report)
	}

	if err := s.reports.UpdateDraft(ctx, id, fields); err != nil {
		if file != nil {
			s.removeArtifact(ctx, report.FileReference)
		}
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, apperrors.Conflict("report left draft while being edited")
		}
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if file != nil && previousFile != "" {
		s.removeArtifact(ctx, previousFile)
	}

	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventReportUpdated,
		Actor:       actor,
		CompanyID:   report.CompanyID,
		ReportID:    report.ID,
		Description: "Report draft updated",
		Success:     true,
		Metadata:    map[string]interface{}{"fields": fieldNames(fields)},
	})

	updated, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	return s.withChecklist(ctx, updated)
}

// Submit moves a draft to submitted once every required checklist item is complete.
// The checklist is evaluated again inside the transaction that applies the change.
//
// Concurrent submits of one draft serialize on the row lock taken by
// FindByIDForUpdate. The loser reads the committed status and gets
// InvalidTransition with reason already_submitted. The owner is notified
// after commit.
func (s *ReportService) Submit(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Report, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	var submitted *models.Report
	err := s.reports.WithinTx(ctx, func(reports repository.ReportRepo) error {
		report, err := reports.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := workflow.Authorize(actor, workflow.ActionSubmit, report); err != nil {
			return err
		}
		to, err := workflow.Next(report.Status, workflow.EventSubmit, "")
		if err != nil {
			return transitionError(err)
		}

		checklist, err := s.evaluate(ctx, report)
		if err != nil {
			return err
		}
		if !checklist.CanSubmit {
			missing := checklist.MissingRequired()
			return apperrors.InvalidTransition(workflow.ReasonChecklistIncomplete,
				fmt.Sprintf("%d required checklist items incomplete", len(missing)), missing)
		}

		now := s.now()
		if err := reports.ApplyTransition(ctx, id, report.Status, repository.TransitionChange{
			To:          to,
			At:          now,
			SubmittedAt: &now,
		}); err != nil {
			return err
		}

		report.Status = to
		report.SubmittedAt = &now
		report.UpdatedAt = now
		report.Checklist = &checklist
		submitted = report
		return nil
	})
	if err != nil {
		s.auditFailure(ctx, actor, id, models.AuditEventReportSubmitted, err)
		return nil, s.transitionFailure(ctx, err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventReportSubmitted,
		Actor:       actor,
		CompanyID:   submitted.CompanyID,
		ReportID:    submitted.ID,
		Description: "Report submitted for review",
		Success:     true,
	})
	s.notify(ctx, notification.ReportSubmitted(submitted))
	return submitted, nil
}

// BeginReview moves a submitted report to under_review
func (s *ReportService) BeginReview(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Report, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	var reviewed *models.Report
	err := s.reports.WithinTx(ctx, func(reports repository.ReportRepo) error {
		report, err := reports.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := workflow.Authorize(actor, workflow.ActionBeginReview, report); err != nil {
			return err
		}
		to, err := workflow.Next(report.Status, workflow.EventBeginReview, "")
		if err != nil {
			return transitionError(err)
		}

		now := s.now()
		if err := reports.ApplyTransition(ctx, id, report.Status, repository.TransitionChange{To: to, At: now}); err != nil {
			return err
		}
		report.Status = to
		report.UpdatedAt = now
		reviewed = report
		return nil
	})
	if err != nil {
		return nil, s.transitionFailure(ctx, err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventReviewStarted,
		Actor:       actor,
		CompanyID:   reviewed.CompanyID,
		ReportID:    reviewed.ID,
		Description: "Review started",
		Success:     true,
	})
	return reviewed, nil
}

// Decide records an approval or rejection. A rejection needs a non-empty comment.
// Deciding a report that is already approved or rejected returns Conflict.
//
// Of two concurrent decisions the first to take the row lock wins. The
// loser reads the decided status and gets Conflict naming it. If the status
// moved between read and write the compare-and-set matches no row, which
// also surfaces as Conflict; the caller may reload and retry. The owner is
// notified after commit.
func (s *ReportService) Decide(ctx context.Context, actor models.Actor, decision models.ReviewDecision) (*models.Report, error) {
	if !decision.Decision.Valid() {
		return nil, apperrors.Validation("decision", "decision must be approved or rejected")
	}
	comment := strings.TrimSpace(decision.Comment)
	if decision.Decision == models.DecisionRejected && comment == "" {
		return nil, apperrors.Validation("comment", "a rejection reason is required")
	}

	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	var decided *models.Report
	err := s.reports.WithinTx(ctx, func(reports repository.ReportRepo) error {
		report, err := reports.FindByIDForUpdate(ctx, decision.ReportID)
		if err != nil {
			return err
		}
		if err := workflow.Authorize(actor, workflow.ActionDecide, report); err != nil {
			return err
		}
		if report.Status.Decided() {
			return apperrors.Conflict(fmt.Sprintf("report was already %s", report.Status))
		}
		to, err := workflow.Next(report.Status, workflow.EventDecide, decision.Decision)
		if err != nil {
			return transitionError(err)
		}

		now := s.now()
		reviewer := actor.UserID
		if err := reports.ApplyTransition(ctx, report.ID, report.Status, repository.TransitionChange{
			To:               to,
			At:               now,
			ReviewedAt:       &now,
			ReviewedBy:       &reviewer,
			ReviewerComments: &comment,
		}); err != nil {
			return err
		}

		report.Status = to
		report.ReviewedAt = &now
		report.ReviewedBy = &reviewer
		report.ReviewerComments = comment
		report.UpdatedAt = now
		decided = report
		return nil
	})
	if err != nil {
		return nil, s.transitionFailure(ctx, err)
	}

	eventType := models.AuditEventReportApproved
	description := "Report approved"
	if decided.Status == models.ReportStatusRejected {
		eventType = models.AuditEventReportRejected
		description = "Report rejected"
	}
	s.audit.Record(ctx, audit.Event{
		Type:        eventType,
		Actor:       actor,
		CompanyID:   decided.CompanyID,
		ReportID:    decided.ID,
		Description: description,
		Success:     true,
		Metadata:    map[string]interface{}{"comment": comment},
	})
	s.notify(ctx, notification.ReportDecided(decided))
	return decided, nil
}

// Delete removes a report with its comments and analyses
func (s *ReportService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionDelete, report); err != nil {
		return err
	}

	if err := s.reports.Delete(ctx, id, report.Status); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return apperrors.Conflict("report changed while being deleted")
		}
		return apperrors.OrTimeout(ctx, err)
	}
	if report.HasFile() {
		s.removeArtifact(ctx, report.FileReference)
	}

	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventReportDeleted,
		Actor:       actor,
		CompanyID:   report.CompanyID,
		ReportID:    report.ID,
		Description: "Report deleted",
		Success:     true,
		Metadata:    map[string]interface{}{"status": report.Status, "title": report.Title},
	})
	return nil
}

// DownloadURL returns a short-lived link to the report artifact
func (s *ReportService) DownloadURL(ctx context.Context, actor models.Actor, id uuid.UUID) (string, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return "", apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionDownload, report); err != nil {
		return "", err
	}
	if !report.HasFile() {
		return "", apperrors.NotFound("artifact for report", id)
	}
	url, err := s.store.PresignedURL(ctx, report.FileReference, report.FileName)
	if err != nil {
		return "", apperrors.OrUnavailable(ctx, err, "artifact store unavailable")
	}
	return url, nil
}

// History returns the audit trail of a report
func (s *ReportService) History(ctx context.Context, actor models.Actor, id uuid.UUID) ([]models.AuditLog, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionView, report); err != nil {
		return nil, err
	}
	entries, err := s.audit.History(ctx, id)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	return entries, nil
}

// AutoBeginReview starts review of reports that have waited longer than olderThan.
// Reports moved by someone else in the meantime are skipped.
func (s *ReportService) AutoBeginReview(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	system := models.SystemActor()
	listCtx, cancel := s.begin(ctx, system)
	defer cancel()

	candidates, err := s.reports.ListSubmittedBefore(listCtx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, apperrors.OrTimeout(listCtx, err)
	}

	started := 0
	for _, candidate := range candidates {
		if _, err := s.BeginReview(ctx, system, candidate.ID); err != nil {
			kind := apperrors.KindOf(err)
			if kind == apperrors.KindConflict || kind == apperrors.KindInvalidTransition || kind == apperrors.KindNotFound {
				continue
			}
			return started, err
		}
		started++
	}
	return started, nil
}

func (s *ReportService) attach(ctx context.Context, report *models.Report, file *Upload) error {
	contentType, err := storage.ValidateUpload(file.Filename, file.Size, s.opts.MaxUploadSize)
	if err != nil {
		return err
	}
	key := storage.ObjectKey(report.CompanyID, report.ID, file.Filename)
	if err := s.store.Put(ctx, key, file.Reader, file.Size, contentType); err != nil {
		config.LogError(s.log, "report", "attach", "store artifact", key, err)
		return apperrors.OrUnavailable(ctx, err, "artifact store unavailable")
	}
	report.FileReference = key
	report.FileName = file.Filename
	report.FileSize = file.Size
	return nil
}

func (s *ReportService) removeArtifact(ctx context.Context, key string) {
	if err := s.store.Remove(context.WithoutCancel(ctx), key); err != nil {
		config.LogError(s.log, "report", "removeArtifact", "remove artifact", key, err)
	}
}

func (s *ReportService) evaluate(ctx context.Context, report *models.Report) (models.ChecklistResult, error) {
	analysis, err := s.analyses.LatestForReport(ctx, report.ID)
	if err != nil {
		return models.ChecklistResult{}, err
	}
	return s.evaluator.Evaluate(workflow.Subject{Report: report, Analysis: analysis}), nil
}

func (s *ReportService) withChecklist(ctx context.Context, report *models.Report) (*models.Report, error) {
	checklist, err := s.evaluate(ctx, report)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	report.Checklist = &checklist
	return report, nil
}

// notify never fails the committed transition it reports on
func (s *ReportService) notify(ctx context.Context, msg notification.Message) {
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.Notify(ctx, msg); err != nil {
		config.LogError(s.log, "report", "notify", "queue notification", msg.ReportID, err)
	}
}

func (s *ReportService) auditFailure(ctx context.Context, actor models.Actor, id uuid.UUID, eventType models.AuditEventType, err error) {
	if apperrors.KindOf(err) != apperrors.KindInvalidTransition {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Type:        eventType,
		Actor:       actor,
		CompanyID:   actor.CompanyID,
		ReportID:    id,
		Description: err.Error(),
		Success:     false,
	})
}

// transitionFailure maps repository and context errors raised inside a transition
func (s *ReportService) transitionFailure(ctx context.Context, err error) error {
	if errors.Is(err, repository.ErrStaleStatus) {
		return apperrors.Conflict("report status changed concurrently; reload and retry")
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	config.LogError(s.log, "report", "transition", "apply transition", nil, err)
	return apperrors.OrTimeout(ctx, err)
}

func transitionError(err error) error {
	var te *workflow.TransitionError
	if errors.As(err, &te) {
		return apperrors.InvalidTransition(te.Reason, te.Error(), map[string]interface{}{
			"status": te.From,
			"event":  te.Event,
		})
	}
	return err
}

func fieldNames(fields map[string]interface{}) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name == "updated_at" {
			continue
		}
		names = append(names, name)
	}
	return names
}
