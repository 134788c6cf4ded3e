package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/audit"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/queue"
	"github.com/regdesk/backend/internal/repository"
	"github.com/regdesk/backend/internal/services/storage"
	"github.com/regdesk/backend/internal/workflow"
)

// Request selects the jurisdiction to score against. Empty fields fall back to the report's own.
type Request struct {
	CountryCode string   `json:"country_code"`
	TaxTypes    []string `json:"tax_types"`
}

// JobPayload is the queued unit of work
type JobPayload struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
}

// ErrorSummary counts the checks of one analysis
type ErrorSummary struct {
	TotalChecks int  `json:"total_checks"`
	Passed      int  `json:"passed"`
	Warnings    int  `json:"warnings"`
	Errors      int  `json:"errors"`
	Score       *int `json:"score"`
}

// ErrorBreakdown is the findings view of one analysis
type ErrorBreakdown struct {
	AnalysisID uuid.UUID             `json:"analysis_id"`
	Status     models.AnalysisStatus `json:"status"`
	Errors     []models.ErrorDetail  `json:"errors"`
	Summary    ErrorSummary          `json:"summary"`
}

// AnalysisService requests and records scoring runs. It never changes report status.
type AnalysisService struct {
	reports      repository.ReportRepo
	analyses     repository.AnalysisRepo
	store        storage.ArtifactStore
	scorer       Scorer
	queue        queue.Enqueuer
	audit        *audit.Logger
	log          *logrus.Logger
	timeout      time.Duration
	scoreTimeout time.Duration
	now          func() time.Time
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(repos *repository.Repos, store storage.ArtifactStore, scorer Scorer, enqueuer queue.Enqueuer, auditLogger *audit.Logger, log *logrus.Logger, timeout, scoreTimeout time.Duration) *AnalysisService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if scoreTimeout <= 0 {
		scoreTimeout = 2 * time.Minute
	}
	return &AnalysisService{
		reports:      repos.Report,
		analyses:     repos.Analysis,
		store:        store,
		scorer:       scorer,
		queue:        enqueuer,
		audit:        auditLogger,
		log:          log,
		timeout:      timeout,
		scoreTimeout: scoreTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RequestAnalysis creates a pending analysis and queues it for scoring
func (s *AnalysisService) RequestAnalysis(ctx context.Context, actor models.Actor, reportID uuid.UUID, req Request) (*models.ReportAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = database.ScopeContext(ctx, actor)

	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionAnalyze, report); err != nil {
		return nil, err
	}
	if !report.HasFile() {
		return nil, apperrors.Validation("file", "a file must be attached before analysis")
	}

	countryCode := strings.ToUpper(strings.TrimSpace(req.CountryCode))
	if countryCode == "" {
		countryCode = report.CountryCode
	}
	if countryCode == "" {
		return nil, apperrors.Validation("country_code", "country_code is required")
	}
	taxTypes := models.EncodeStrings(req.TaxTypes)
	if taxTypes == nil {
		taxTypes = report.TaxTypes
	}

	analysis := &models.ReportAnalysis{
		Base:        models.Base{ID: uuid.New()},
		ReportID:    report.ID,
		CompanyID:   report.CompanyID,
		CountryCode: countryCode,
		TaxTypes:    taxTypes,
		Status:      models.AnalysisStatusPending,
	}
	if err := s.analyses.Create(ctx, analysis); err != nil {
		config.LogError(s.log, "analysis", "RequestAnalysis", "persist analysis", report.ID, err)
		return nil, apperrors.OrTimeout(ctx, err)
	}

	if _, err := s.queue.Enqueue(ctx, queue.QueueReportAnalysis, JobPayload{AnalysisID: analysis.ID}); err != nil {
		config.LogError(s.log, "analysis", "RequestAnalysis", "enqueue analysis", analysis.ID, err)
		s.markFailed(context.WithoutCancel(ctx), analysis, "could not queue analysis")
		return nil, apperrors.OrUnavailable(ctx, err, "analysis queue unavailable")
	}

	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventAnalysisRequested,
		Actor:       actor,
		CompanyID:   report.CompanyID,
		ReportID:    report.ID,
		Description: "Analysis requested",
		Success:     true,
		Metadata:    map[string]interface{}{"analysis_id": analysis.ID, "country_code": countryCode},
	})
	return analysis, nil
}

// LatestAnalysis returns the most recent analysis of a report, or NotFound if none exists
func (s *AnalysisService) LatestAnalysis(ctx context.Context, actor models.Actor, reportID uuid.UUID) (*models.ReportAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = database.ScopeContext(ctx, actor)

	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionView, report); err != nil {
		return nil, err
	}

	analysis, err := s.analyses.LatestForReport(ctx, report.ID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if analysis == nil {
		return nil, apperrors.NotFound("analysis for report", reportID)
	}
	return analysis, nil
}

// ListAnalyses returns every analysis of a report, newest first
func (s *AnalysisService) ListAnalyses(ctx context.Context, actor models.Actor, reportID uuid.UUID) ([]models.ReportAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = database.ScopeContext(ctx, actor)

	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionView, report); err != nil {
		return nil, err
	}

	analyses, err := s.analyses.ListForReport(ctx, report.ID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	return analyses, nil
}

// AnalysisErrors returns the findings of one analysis. The caller must be
// allowed to view the analysed report.
func (s *AnalysisService) AnalysisErrors(ctx context.Context, actor models.Actor, analysisID uuid.UUID) (*ErrorBreakdown, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = database.ScopeContext(ctx, actor)

	analysis, err := s.analyses.FindByID(ctx, analysisID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	report, err := s.reports.FindByID(ctx, analysis.ReportID)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	if err := workflow.Authorize(actor, workflow.ActionView, report); err != nil {
		return nil, err
	}

	details := []models.ErrorDetail{}
	if len(analysis.ErrorDetails) > 0 {
		if err := json.Unmarshal(analysis.ErrorDetails, &details); err != nil {
			return nil, fmt.Errorf("failed to decode error details: %w", err)
		}
	}
	return &ErrorBreakdown{
		AnalysisID: analysis.ID,
		Status:     analysis.Status,
		Errors:     details,
		Summary: ErrorSummary{
			TotalChecks: analysis.TotalChecks,
			Passed:      analysis.PassedChecks,
			Warnings:    analysis.Warnings,
			Errors:      analysis.Errors,
			Score:       analysis.OverallScore,
		},
	}, nil
}

// HandleJob is the queue handler for QueueReportAnalysis
func (s *AnalysisService) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload JobPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	return s.Process(ctx, payload.AnalysisID, job.CanRetry())
}

// Process scores one analysis. A retryable scoring failure is returned while
// canRetry holds; otherwise the analysis is marked failed and nil is returned.
// When ctx is cancelled mid-run (worker shutdown) the analysis goes back to
// pending and is queued again.
func (s *AnalysisService) Process(ctx context.Context, analysisID uuid.UUID, canRetry bool) error {
	ctx = database.ScopeContext(ctx, models.SystemActor())

	analysis, err := s.analyses.FindByID(ctx, analysisID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			s.log.WithField("analysis_id", analysisID).Warn("analysis vanished before processing")
			return nil
		}
		return err
	}
	if analysis.Status == models.AnalysisStatusCompleted || analysis.Status == models.AnalysisStatusFailed {
		return nil
	}

	report, err := s.reports.FindByID(ctx, analysis.ReportID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			s.markFailed(ctx, analysis, "report no longer exists")
			return nil
		}
		return err
	}
	if !report.HasFile() {
		s.markFailed(ctx, analysis, "report has no attached file")
		return nil
	}

	started := s.now()
	analysis.Status = models.AnalysisStatusProcessing
	analysis.StartedAt = &started
	if err := s.analyses.Update(ctx, analysis); err != nil {
		return fmt.Errorf("failed to mark analysis processing: %w", err)
	}

	fileURL, err := s.store.PresignedURL(ctx, report.FileReference, report.FileName)
	if err != nil {
		return s.scoringFailed(ctx, analysis, report, fmt.Errorf("failed to presign artifact: %w", err), canRetry)
	}

	scoreCtx, cancel := context.WithTimeout(ctx, s.scoreTimeout)
	defer cancel()
	result, err := s.scorer.Score(scoreCtx, ScoreRequest{
		ReportID:    report.ID.String(),
		CountryCode: analysis.CountryCode,
		TaxTypes:    models.DecodeStrings(analysis.TaxTypes),
		FileURL:     fileURL,
	})
	if err != nil {
		return s.scoringFailed(ctx, analysis, report, err, canRetry)
	}

	details, err := json.Marshal(result.ErrorDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal error details: %w", err)
	}
	// the result is kept even if the worker is stopping
	storeCtx, storeCancel := s.detached(ctx)
	defer storeCancel()

	completed := s.now()
	score := result.OverallScore
	analysis.Status = models.AnalysisStatusCompleted
	analysis.OverallScore = &score
	analysis.TotalChecks = result.TotalChecks
	analysis.PassedChecks = result.PassedChecks
	analysis.Errors = result.Errors
	analysis.Warnings = result.Warnings
	analysis.ErrorDetails = details
	analysis.FailureReason = ""
	analysis.CompletedAt = &completed
	if err := s.analyses.Update(storeCtx, analysis); err != nil {
		return fmt.Errorf("failed to store analysis result: %w", err)
	}

	s.audit.Record(storeCtx, audit.Event{
		Type:        models.AuditEventAnalysisCompleted,
		Actor:       models.SystemActor(),
		CompanyID:   report.CompanyID,
		ReportID:    report.ID,
		Description: "Analysis completed",
		Success:     true,
		Metadata:    map[string]interface{}{"analysis_id": analysis.ID, "overall_score": score},
	})
	return nil
}

func (s *AnalysisService) scoringFailed(ctx context.Context, analysis *models.ReportAnalysis, report *models.Report, err error, canRetry bool) error {
	if ctx.Err() != nil {
		return s.requeue(ctx, analysis, err)
	}
	if canRetry && Retryable(err) {
		s.log.WithError(err).WithField("analysis_id", analysis.ID).Warn("scoring failed, will retry")
		return err
	}

	config.LogError(s.log, "analysis", "Process", "score report", analysis.ID, err)
	ctx, cancel := s.detached(ctx)
	defer cancel()
	s.markFailed(ctx, analysis, err.Error())
	s.audit.Record(ctx, audit.Event{
		Type:        models.AuditEventAnalysisFailed,
		Actor:       models.SystemActor(),
		CompanyID:   report.CompanyID,
		ReportID:    report.ID,
		Description: "Analysis failed",
		Success:     false,
		Metadata:    map[string]interface{}{"analysis_id": analysis.ID, "reason": err.Error()},
	})
	return nil
}

func (s *AnalysisService) markFailed(ctx context.Context, analysis *models.ReportAnalysis, reason string) {
	completed := s.now()
	analysis.Status = models.AnalysisStatusFailed
	analysis.FailureReason = reason
	analysis.CompletedAt = &completed
	if err := s.analyses.Update(ctx, analysis); err != nil {
		config.LogError(s.log, "analysis", "markFailed", "persist failure", analysis.ID, err)
	}
}

// requeue hands an interrupted run back to the queue. ctx is already
// cancelled, so the writes use a detached context.
func (s *AnalysisService) requeue(ctx context.Context, analysis *models.ReportAnalysis, cause error) error {
	ctx, cancel := s.detached(ctx)
	defer cancel()

	analysis.Status = models.AnalysisStatusPending
	analysis.StartedAt = nil
	if err := s.analyses.Update(ctx, analysis); err != nil {
		config.LogError(s.log, "analysis", "requeue", "reset analysis", analysis.ID, err)
		return nil
	}
	if _, err := s.queue.Enqueue(ctx, queue.QueueReportAnalysis, JobPayload{AnalysisID: analysis.ID}); err != nil {
		config.LogError(s.log, "analysis", "requeue", "enqueue analysis", analysis.ID, err)
		s.markFailed(ctx, analysis, "interrupted and could not be queued again")
		return nil
	}
	s.log.WithError(cause).WithField("analysis_id", analysis.ID).Warn("scoring interrupted, analysis queued again")
	return nil
}

// detached keeps ctx's values (tenant scope) but not its cancellation
func (s *AnalysisService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}
