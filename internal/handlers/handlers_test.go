package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/audit"
	"github.com/regdesk/backend/internal/middleware"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/queue"
	"github.com/regdesk/backend/internal/repository/repotest"
	"github.com/regdesk/backend/internal/services/analysis"
	"github.com/regdesk/backend/internal/services/collection"
	"github.com/regdesk/backend/internal/services/comment"
	"github.com/regdesk/backend/internal/services/notification"
	"github.com/regdesk/backend/internal/services/report"
	"github.com/regdesk/backend/internal/services/template"
	"github.com/regdesk/backend/internal/workflow"
)

// inlineQueue delivers notification jobs at once and keeps analysis jobs for the test to run
type inlineQueue struct {
	notifications *notification.NotificationService
	analysisJobs  []analysis.JobPayload
}

func (q *inlineQueue) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...queue.EnqueueOption) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	job := &queue.Job{ID: uuid.NewString(), Queue: queueName, Payload: data}
	switch queueName {
	case queue.QueueNotifications:
		return job.ID, q.notifications.HandleJob(ctx, job)
	case queue.QueueReportAnalysis:
		q.analysisJobs = append(q.analysisJobs, payload.(analysis.JobPayload))
	}
	return job.ID, nil
}

type fixedScorer struct {
	result *analysis.ScoreResult
}

func (s fixedScorer) Score(ctx context.Context, req analysis.ScoreRequest) (*analysis.ScoreResult, error) {
	return s.result, nil
}

type testEnv struct {
	store     *repotest.Store
	artifacts *repotest.ArtifactStore
	queue     *inlineQueue
	company   uuid.UUID
	owner     models.Actor
	admin     models.Actor
	viewer    models.Actor

	analysisService *analysis.AnalysisService

	reports       *ReportHandler
	comments      *CommentHandler
	templates     *TemplateHandler
	collections   *CollectionHandler
	analyses      *AnalysisHandler
	notifications *NotificationHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repotest.NewStore()
	repos := store.Repos()
	artifacts := repotest.NewArtifactStore()
	auditLogger := audit.NewLogger(repos.Audit, log)

	notificationService := notification.NewNotificationService(repos, log, time.Second)
	q := &inlineQueue{notifications: notificationService}
	reportService := report.NewReportService(repos, artifacts, workflow.NewEvaluator(), auditLogger, log, report.Options{
		OperationTimeout: time.Second,
		MaxUploadSize:    1 << 20,
		Notifier:         notification.NewPublisher(q),
	})
	score := &analysis.ScoreResult{OverallScore: 72, TotalChecks: 10, PassedChecks: 7, Errors: 2, Warnings: 1, ErrorDetails: []models.ErrorDetail{
		{Type: "rate", Severity: "high", Location: "line 4", Recommendation: "Apply the standard rate"},
		{Type: "missing_field", Severity: "medium", Location: "header", Recommendation: "Add the TIN"},
	}}
	analysisService := analysis.NewAnalysisService(repos, artifacts, fixedScorer{result: score}, q, auditLogger, log, time.Second, time.Second)

	company := uuid.New()
	return &testEnv{
		store:           store,
		artifacts:       artifacts,
		queue:           q,
		company:         company,
		owner:           models.Actor{UserID: uuid.New(), Role: models.RoleAccountant, CompanyID: company},
		admin:           models.Actor{UserID: uuid.New(), Role: models.RoleAdmin, CompanyID: company},
		viewer:          models.Actor{UserID: uuid.New(), Role: models.RoleViewer, CompanyID: company},
		analysisService: analysisService,
		reports:         NewReportHandler(reportService, log),
		comments:        NewCommentHandler(comment.NewCommentService(repos, auditLogger, log, time.Second), log),
		templates:       NewTemplateHandler(template.NewTemplateService(repos, log, time.Second), reportService, log),
		collections:     NewCollectionHandler(collection.NewCollectionService(repos, artifacts, log, time.Second), log),
		analyses:        NewAnalysisHandler(analysisService, log),
		notifications:   NewNotificationHandler(notificationService, log),
	}
}

// router serves the handlers as actor; a nil actor leaves the request unauthenticated
func (e *testEnv) router(actor *models.Actor) *gin.Engine {
	r := gin.New()
	if actor != nil {
		r.Use(func(c *gin.Context) { middleware.SetActor(c, *actor) })
	}
	r.POST("/reports", e.reports.CreateReport)
	r.GET("/reports/:id", e.reports.GetReport)
	r.POST("/reports/:id/submit", e.reports.SubmitReport)
	r.POST("/reports/:id/decision", e.reports.DecideReport)
	r.POST("/reports/:id/analysis", e.analyses.RequestAnalysis)
	r.GET("/reports/:id/analyses", e.analyses.ListAnalyses)
	r.GET("/analyses/:id/errors", e.analyses.GetAnalysisErrors)
	r.GET("/notifications", e.notifications.ListNotifications)
	r.POST("/notifications/:id/read", e.notifications.MarkRead)
	r.POST("/notifications/read-all", e.notifications.MarkAllRead)
	r.GET("/reports/:id/download", e.reports.DownloadReport)
	r.GET("/reports/:id/comments", e.comments.ListComments)
	r.POST("/reports/:id/comments", e.comments.AddComment)
	r.POST("/templates", e.templates.CreateTemplate)
	r.POST("/templates/:id/reports", e.templates.CreateReportFromTemplate)
	r.POST("/reports/export", e.collections.BatchExport)
	r.GET("/reports/export.xlsx", e.collections.ExportExcel)
	r.GET("/reports", e.collections.ListReports)
	return r
}

func (e *testEnv) do(actor *models.Actor, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router(actor).ServeHTTP(w, req)
	return w
}

func (e *testEnv) addReport(t *testing.T, title string, withFile bool) models.Report {
	t.Helper()
	r := models.Report{
		Base:       models.Base{ID: uuid.New(), CreatedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)},
		Title:      title,
		ReportType: models.ReportTypeCompliance,
		Status:     models.ReportStatusSubmitted,
		OwnerID:    e.owner.UserID,
		CompanyID:  e.company,
	}
	if withFile {
		r.FileReference = "reports/" + r.ID.String() + "/file.pdf"
		r.FileName = title + ".pdf"
		r.FileSize = 4
		require.NoError(t, e.artifacts.Put(context.Background(), r.FileReference, strings.NewReader("%PDF"), 4, "application/pdf"))
	}
	e.store.PutReport(r)
	return r
}

// addDraft stores a draft that passes every required checklist item
func (e *testEnv) addDraft(t *testing.T, title string) models.Report {
	t.Helper()
	r := e.addReport(t, title, true)
	r.Status = models.ReportStatusDraft
	r.Description = "Quarterly filing with every schedule attached"
	e.store.PutReport(r)
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperrors.NotFound("report", uuid.New()), http.StatusNotFound},
		{"forbidden", apperrors.Forbidden("submit"), http.StatusForbidden},
		{"invalid transition", apperrors.InvalidTransition(workflow.ReasonWrongStatus, "wrong status", nil), http.StatusConflict},
		{"conflict", apperrors.Conflict("stale"), http.StatusConflict},
		{"validation", apperrors.Validation("title", "title is required"), http.StatusBadRequest},
		{"partial", &apperrors.PartialFailure{}, http.StatusMultiStatus},
		{"upstream", apperrors.Upstream(apperrors.ReasonUnavailable, "down", nil), http.StatusBadGateway},
		{"timeout", apperrors.Upstream(apperrors.ReasonTimeout, "slow", nil), http.StatusGatewayTimeout},
		{"wrapped", errors.Join(errors.New("ctx"), apperrors.Forbidden("delete")), http.StatusForbidden},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(nil, http.MethodGet, "/reports", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndFetchReport(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(&e.owner, http.MethodPost, "/reports", gin.H{"title": "VAT Q1", "report_type": "compliance"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode(t, w)["report"].(map[string]interface{})
	assert.Equal(t, "draft", created["status"])

	w = e.do(&e.owner, http.MethodGet, "/reports/"+created["id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestViewerCannotCreate(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(&e.viewer, http.MethodPost, "/reports", gin.H{"title": "VAT Q1", "report_type": "compliance"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode(t, w)["code"])
}

func TestSubmitIncompleteDraftIsConflict(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(&e.owner, http.MethodPost, "/reports", gin.H{"title": "VAT Q1", "report_type": "compliance"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["report"].(map[string]interface{})["id"].(string)

	w = e.do(&e.owner, http.MethodPost, "/reports/"+id+"/submit", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	body := decode(t, w)
	assert.Equal(t, "invalid_transition", body["code"])
	details := body["details"].(map[string]interface{})
	assert.Equal(t, workflow.ReasonChecklistIncomplete, details["reason"])
}

func TestInvalidPathID(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(&e.owner, http.MethodGet, "/reports/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadRedirects(t *testing.T) {
	e := newTestEnv(t)
	r := e.addReport(t, "A", true)

	w := e.do(&e.admin, http.MethodGet, "/reports/"+r.ID.String()+"/download", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), r.FileReference)

	w = e.do(&e.admin, http.MethodGet, "/reports/"+r.ID.String()+"/download?redirect=false", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["download_url"], r.FileReference)
}

func TestCommentThread(t *testing.T) {
	e := newTestEnv(t)
	r := e.addReport(t, "A", false)
	path := "/reports/" + r.ID.String() + "/comments"

	w := e.do(&e.admin, http.MethodPost, path, gin.H{"body": "Please attach the ledger"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(&e.owner, http.MethodPost, path, gin.H{"body": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(&e.owner, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["comments"], 1)
}

func TestCreateReportFromTemplate(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(&e.admin, http.MethodPost, "/templates", gin.H{
		"name":         "Monthly VAT",
		"report_type":  "compliance",
		"country_code": "ke",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["template"].(map[string]interface{})["id"].(string)

	w = e.do(&e.owner, http.MethodPost, "/templates/"+id+"/reports", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)["report"].(map[string]interface{})
	assert.Equal(t, "Monthly VAT - Report", created["title"])
	assert.Equal(t, "draft", created["status"])
}

func TestBatchExportPartialIsMultiStatus(t *testing.T) {
	e := newTestEnv(t)
	a := e.addReport(t, "A", true)
	b := e.addReport(t, "B", true)
	c := e.addReport(t, "C", true)
	e.artifacts.Drop(b.FileReference)

	w := e.do(&e.admin, http.MethodPost, "/reports/export", gin.H{"report_ids": []uuid.UUID{a.ID, b.ID, c.ID}})
	require.Equal(t, http.StatusMultiStatus, w.Code)

	body := decode(t, w)
	assert.Equal(t, "partial_failure", body["code"])
	assert.Len(t, body["items"], 2)
	details := body["details"].(map[string]interface{})
	assert.Equal(t, []interface{}{a.ID.String(), c.ID.String()}, details["succeeded"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"id": b.ID.String(), "reason": collection.ReasonArtifactUnavailable},
	}, details["failed"])
}

func TestBatchExportAllSucceed(t *testing.T) {
	e := newTestEnv(t)
	a := e.addReport(t, "A", true)

	w := e.do(&e.admin, http.MethodPost, "/reports/export", gin.H{"report_ids": []uuid.UUID{a.ID}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)
}

func TestBatchExportRejectsEmptySelection(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(&e.admin, http.MethodPost, "/reports/export", gin.H{"report_ids": []uuid.UUID{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndExcelExport(t *testing.T) {
	e := newTestEnv(t)
	e.addReport(t, "A", false)
	e.addReport(t, "B", false)

	w := e.do(&e.admin, http.MethodGet, "/reports?status=submitted&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["reports"], 1)

	w = e.do(&e.admin, http.MethodGet, "/reports?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(&e.admin, http.MethodGet, "/reports/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reports_export_")
	assert.NotZero(t, w.Body.Len())
}

func TestCrossTenantSubmitIsHidden(t *testing.T) {
	e := newTestEnv(t)
	e.store.EnforceTenantScope = true
	r := e.addDraft(t, "VAT Q1")
	path := "/reports/" + r.ID.String() + "/submit"

	outsider := models.Actor{UserID: uuid.New(), Role: models.RoleAccountant, CompanyID: uuid.New()}
	w := e.do(&outsider, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	assert.Equal(t, "not_found", decode(t, w)["code"])

	w = e.do(&e.viewer, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	stored, _ := e.store.Report(r.ID)
	assert.Equal(t, models.ReportStatusDraft, stored.Status)

	w = e.do(&e.owner, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestNotificationsFollowLifecycle(t *testing.T) {
	e := newTestEnv(t)
	r := e.addDraft(t, "VAT Q1")

	w := e.do(&e.owner, http.MethodPost, "/reports/"+r.ID.String()+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(&e.admin, http.MethodPost, "/reports/"+r.ID.String()+"/decision", gin.H{"decision": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(&e.owner, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["total"])
	items := body["notifications"].([]interface{})
	latest := items[0].(map[string]interface{})
	assert.Equal(t, "Report Approved", latest["title"])
	assert.Equal(t, "success", latest["type"])
	assert.Equal(t, "/reports/"+r.ID.String(), latest["link"])
	assert.Equal(t, false, latest["read"])

	id := latest["id"].(string)
	w = e.do(&e.admin, http.MethodPost, "/notifications/"+id+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(&e.owner, http.MethodPost, "/notifications/"+id+"/read", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(&e.owner, http.MethodGet, "/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = e.do(&e.owner, http.MethodPost, "/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["marked"])

	w = e.do(&e.admin, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["total"])
}

func TestAnalysisListAndErrors(t *testing.T) {
	e := newTestEnv(t)
	e.store.EnforceTenantScope = true
	r := e.addReport(t, "VAT Q1", true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		w := e.do(&e.owner, http.MethodPost, "/reports/"+r.ID.String()+"/analysis", gin.H{"country_code": "ng"})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}
	require.Len(t, e.queue.analysisJobs, 2)
	latestID := e.queue.analysisJobs[1].AnalysisID
	require.NoError(t, e.analysisService.Process(ctx, latestID, true))

	w := e.do(&e.viewer, http.MethodGet, "/reports/"+r.ID.String()+"/analyses", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(2), body["total"])
	first := body["analyses"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, latestID.String(), first["id"])
	assert.Equal(t, "completed", first["status"])

	w = e.do(&e.owner, http.MethodGet, "/analyses/"+latestID.String()+"/errors", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, latestID.String(), body["analysis_id"])
	assert.Len(t, body["errors"], 2)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(10), summary["total_checks"])
	assert.Equal(t, float64(7), summary["passed"])
	assert.Equal(t, float64(1), summary["warnings"])
	assert.Equal(t, float64(2), summary["errors"])
	assert.Equal(t, float64(72), summary["score"])

	outsider := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin, CompanyID: uuid.New()}
	w = e.do(&outsider, http.MethodGet, "/analyses/"+latestID.String()+"/errors", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(&e.owner, http.MethodGet, "/analyses/not-a-uuid/errors", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
