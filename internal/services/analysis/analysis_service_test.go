package analysis

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/audit"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/queue"
	"github.com/regdesk/backend/internal/repository"
	"github.com/regdesk/backend/internal/repository/repotest"
)

type stubScorer struct {
	result *ScoreResult
	err    error
	seen   []ScoreRequest
}

func (s *stubScorer) Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	s.seen = append(s.seen, req)
	return s.result, s.err
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []JobPayload
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...queue.EnqueueOption) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, payload.(JobPayload))
	return uuid.NewString(), nil
}

// cancelAwareAnalyses fails writes on a done context the way a database driver does
type cancelAwareAnalyses struct {
	repository.AnalysisRepo
}

func (r cancelAwareAnalyses) Update(ctx context.Context, analysis *models.ReportAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.AnalysisRepo.Update(ctx, analysis)
}

// stoppingScorer cancels the worker context while scoring is in flight
type stoppingScorer struct {
	stop   context.CancelFunc
	result *ScoreResult
}

func (s *stoppingScorer) Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	s.stop()
	if s.result != nil {
		return s.result, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	store  *repotest.Store
	scorer *stubScorer
	queue  *recordingQueue
	svc    *AnalysisService
	report models.Report
	owner  models.Actor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repotest.NewStore()
	artifacts := repotest.NewArtifactStore()
	repos := store.Repos()
	company := uuid.New()
	owner := models.Actor{UserID: uuid.New(), Role: models.RoleAccountant, CompanyID: company}

	report := models.Report{
		Base:          models.Base{ID: uuid.New()},
		Title:         "VAT Q1",
		Description:   "Quarterly VAT filing",
		ReportType:    models.ReportTypeCompliance,
		Status:        models.ReportStatusSubmitted,
		OwnerID:       owner.UserID,
		CompanyID:     company,
		CountryCode:   "NG",
		TaxTypes:      models.EncodeStrings([]string{"VAT"}),
		FileReference: "reports/vat.pdf",
		FileName:      "vat.pdf",
		FileSize:      4,
	}
	require.NoError(t, artifacts.Put(context.Background(), report.FileReference, strings.NewReader("%PDF"), 4, "application/pdf"))
	store.PutReport(report)

	scorer := &stubScorer{}
	q := &recordingQueue{}
	return &fixture{
		store:  store,
		scorer: scorer,
		queue:  q,
		svc:    NewAnalysisService(repos, artifacts, scorer, q, audit.NewLogger(repos.Audit, log), log, time.Second, time.Second),
		report: report,
		owner:  owner,
	}
}

func TestRequestAnalysisQueuesPendingRun(t *testing.T) {
	f := setup(t)

	analysis, err := f.svc.RequestAnalysis(context.Background(), f.owner, f.report.ID, Request{})
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusPending, analysis.Status)
	assert.Equal(t, "NG", analysis.CountryCode)
	assert.Equal(t, []string{"VAT"}, models.DecodeStrings(analysis.TaxTypes))
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, analysis.ID, f.queue.jobs[0].AnalysisID)
	assert.Contains(t, f.store.AuditEvents(), models.AuditEventAnalysisRequested)
}

func TestRequestAnalysisChecks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	viewer := models.Actor{UserID: uuid.New(), Role: models.RoleViewer, CompanyID: f.report.CompanyID}
	_, err := f.svc.RequestAnalysis(ctx, viewer, f.report.ID, Request{})
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	bare := models.Report{Base: models.Base{ID: uuid.New()}, Title: "No file", OwnerID: f.owner.UserID, CompanyID: f.report.CompanyID, Status: models.ReportStatusDraft, CountryCode: "NG"}
	f.store.PutReport(bare)
	_, err = f.svc.RequestAnalysis(ctx, f.owner, bare.ID, Request{})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	f.queue.err = errors.New("redis down")
	_, err = f.svc.RequestAnalysis(ctx, f.owner, f.report.ID, Request{CountryCode: "gh"})
	assert.Equal(t, apperrors.KindUpstreamFailure, apperrors.KindOf(err))

	latest, err := f.svc.LatestAnalysis(ctx, f.owner, f.report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusFailed, latest.Status)
	assert.Equal(t, "GH", latest.CountryCode)
}

func TestProcessStoresResult(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	expected := "VAT 7.5%"
	f.scorer.result = &ScoreResult{
		OverallScore: 85, TotalChecks: 20, PassedChecks: 17, Errors: 1, Warnings: 2,
		ErrorDetails: []models.ErrorDetail{{Type: "rate", Severity: "high", Location: "line 4", Expected: &expected, Recommendation: "Apply the standard rate"}},
	}

	analysis, err := f.svc.RequestAnalysis(ctx, f.owner, f.report.ID, Request{})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, analysis.ID, true))

	latest, err := f.svc.LatestAnalysis(ctx, f.owner, f.report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusCompleted, latest.Status)
	require.NotNil(t, latest.OverallScore)
	assert.Equal(t, 85, *latest.OverallScore)
	assert.True(t, latest.Passed())
	assert.NotNil(t, latest.StartedAt)
	assert.NotNil(t, latest.CompletedAt)
	assert.Contains(t, string(latest.ErrorDetails), "Apply the standard rate")

	require.Len(t, f.scorer.seen, 1)
	assert.Contains(t, f.scorer.seen[0].FileURL, f.report.FileReference)

	stored, _ := f.store.Report(f.report.ID)
	assert.Equal(t, models.ReportStatusSubmitted, stored.Status)
	assert.Contains(t, f.store.AuditEvents(), models.AuditEventAnalysisCompleted)
}

func TestProcessRetriesThenFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.scorer.err = &StatusError{StatusCode: 503, Body: "busy"}

	analysis, err := f.svc.RequestAnalysis(ctx, f.owner, f.report.ID, Request{})
	require.NoError(t, err)

	assert.Error(t, f.svc.Process(ctx, analysis.ID, true))
	latest, _ := f.svc.LatestAnalysis(ctx, f.owner, f.report.ID)
	assert.Equal(t, models.AnalysisStatusProcessing, latest.Status)

	require.NoError(t, f.svc.Process(ctx, analysis.ID, false))
	latest, _ = f.svc.LatestAnalysis(ctx, f.owner, f.report.ID)
	assert.Equal(t, models.AnalysisStatusFailed, latest.Status)
	assert.Contains(t, latest.FailureReason, "503")

	stored, _ := f.store.Report(f.report.ID)
	assert.Equal(t, models.ReportStatusSubmitted, stored.Status)
	assert.Contains(t, f.store.AuditEvents(), models.AuditEventAnalysisFailed)
}

func TestHandleJobDecodesPayload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.scorer.result = &ScoreResult{OverallScore: 60, TotalChecks: 5, PassedChecks: 3}

	analysis, err := f.svc.RequestAnalysis(ctx, f.owner, f.report.ID, Request{})
	require.NoError(t, err)

	job := &queue.Job{ID: "j1", Queue: queue.QueueReportAnalysis, Payload: []byte(`{"analysis_id":"` + analysis.ID.String() + `"}`), MaxRetries: 3}
	require.NoError(t, f.svc.HandleJob(ctx, job))

	latest, _ := f.svc.LatestAnalysis(ctx, f.owner, f.report.ID)
	assert.Equal(t, models.AnalysisStatusCompleted, latest.Status)
	assert.False(t, latest.Passed())
}

func TestLatestAnalysisNotFound(t *testing.T) {
	f := setup(t)

	_, err := f.svc.LatestAnalysis(context.Background(), f.owner, f.report.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestProcessRequeuesWhenWorkerStops(t *testing.T) {
	f := setup(t)
	f.svc.analyses = cancelAwareAnalyses{f.svc.analyses}

	analysis, err := f.svc.RequestAnalysis(context.Background(), f.owner, f.report.ID, Request{})
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	f.svc.scorer = &stoppingScorer{stop: stop}

	require.NoError(t, f.svc.Process(ctx, analysis.ID, true))

	latest, err := f.svc.LatestAnalysis(context.Background(), f.owner, f.report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusPending, latest.Status)
	assert.Nil(t, latest.StartedAt)
	require.Len(t, f.queue.jobs, 2)
	assert.Equal(t, analysis.ID, f.queue.jobs[1].AnalysisID)
	assert.NotContains(t, f.store.AuditEvents(), models.AuditEventAnalysisFailed)
}

func TestProcessFailsWhenRequeueIsImpossible(t *testing.T) {
	f := setup(t)
	f.svc.analyses = cancelAwareAnalyses{f.svc.analyses}

	analysis, err := f.svc.RequestAnalysis(context.Background(), f.owner, f.report.ID, Request{})
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	f.svc.scorer = &stoppingScorer{stop: stop}
	f.queue.err = errors.New("redis down")

	require.NoError(t, f.svc.Process(ctx, analysis.ID, true))

	latest, err := f.svc.LatestAnalysis(context.Background(), f.owner, f.report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusFailed, latest.Status)
	assert.Contains(t, latest.FailureReason, "interrupted")
}

func TestProcessKeepsResultWhenWorkerStops(t *testing.T) {
	f := setup(t)
	f.svc.analyses = cancelAwareAnalyses{f.svc.analyses}

	analysis, err := f.svc.RequestAnalysis(context.Background(), f.owner, f.report.ID, Request{})
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	f.svc.scorer = &stoppingScorer{stop: stop, result: &ScoreResult{OverallScore: 92, TotalChecks: 10, PassedChecks: 10}}

	require.NoError(t, f.svc.Process(ctx, analysis.ID, true))

	latest, err := f.svc.LatestAnalysis(context.Background(), f.owner, f.report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusCompleted, latest.Status)
	assert.True(t, latest.Passed())
}

func TestListAnalysesNewestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.RequestAnalysis(ctx, f.owner, f.report.ID, Request{})
	require.NoError(t, err)
	second, err := f.svc.RequestAnalysis(ctx, f.owner, f.report.ID, Request{CountryCode: "GH"})
	require.NoError(t, err)

	analyses, err := f.svc.ListAnalyses(ctx, f.owner, f.report.ID)
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, second.ID, analyses[0].ID)
	assert.Equal(t, first.ID, analyses[1].ID)

	outsider := models.Actor{UserID: uuid.New(), Role: models.RoleAccountant, CompanyID: uuid.New()}
	_, err = f.svc.ListAnalyses(ctx, outsider, f.report.ID)
	assert.Error(t, err)
}

func TestAnalysisErrorsBreakdown(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	found := "5%"
	f.scorer.result = &ScoreResult{
		OverallScore: 70, TotalChecks: 12, PassedChecks: 9, Errors: 2, Warnings: 1,
		ErrorDetails: []models.ErrorDetail{
			{Type: "rate", Severity: "high", Location: "line 4", Found: &found, Recommendation: "Apply the standard rate"},
			{Type: "missing_field", Severity: "medium", Location: "header", Recommendation: "Add the TIN"},
		},
	}

	analysis, err := f.svc.RequestAnalysis(ctx, f.owner, f.report.ID, Request{})
	require.NoError(t, err)

	pending, err := f.svc.AnalysisErrors(ctx, f.owner, analysis.ID)
	require.NoError(t, err)
	assert.Empty(t, pending.Errors)
	assert.NotNil(t, pending.Errors)
	assert.Nil(t, pending.Summary.Score)

	require.NoError(t, f.svc.Process(ctx, analysis.ID, true))

	breakdown, err := f.svc.AnalysisErrors(ctx, f.owner, analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.ID, breakdown.AnalysisID)
	assert.Equal(t, models.AnalysisStatusCompleted, breakdown.Status)
	require.Len(t, breakdown.Errors, 2)
	assert.Equal(t, "5%", *breakdown.Errors[0].Found)
	assert.Equal(t, ErrorSummary{TotalChecks: 12, Passed: 9, Warnings: 1, Errors: 2, Score: breakdown.Summary.Score}, breakdown.Summary)
	require.NotNil(t, breakdown.Summary.Score)
	assert.Equal(t, 70, *breakdown.Summary.Score)

	_, err = f.svc.AnalysisErrors(ctx, f.owner, uuid.New())
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
