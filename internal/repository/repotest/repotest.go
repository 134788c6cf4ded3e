// Package repotest provides in-memory repositories for service tests.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/repository"
)

// Store holds every table in memory behind one mutex
type Store struct {
	// EnforceTenantScope hides reports outside the company carried by the
	// context, like the GORM tenant guard does.
	EnforceTenantScope bool

	mu            sync.Mutex
	txMu          sync.Mutex
	reports       map[uuid.UUID]models.Report
	comments      map[uuid.UUID]models.Comment
	templates     map[uuid.UUID]models.ReportTemplate
	analyses      map[uuid.UUID]models.ReportAnalysis
	notifications map[uuid.UUID]models.Notification
	audit         []models.AuditLog
	seq           int
}

func NewStore() *Store {
	return &Store{
		reports:       make(map[uuid.UUID]models.Report),
		comments:      make(map[uuid.UUID]models.Comment),
		templates:     make(map[uuid.UUID]models.ReportTemplate),
		analyses:      make(map[uuid.UUID]models.ReportAnalysis),
		notifications: make(map[uuid.UUID]models.Notification),
	}
}

// Repos returns repository implementations backed by the store
func (s *Store) Repos() *repository.Repos {
	return &repository.Repos{
		Report:       &ReportRepo{s: s},
		Comment:      &CommentRepo{s: s},
		Template:     &TemplateRepo{s: s},
		Analysis:     &AnalysisRepo{s: s},
		Notification: &NotificationRepo{s: s},
		Audit:        &AuditRepo{s: s},
	}
}

// Report returns a copy of the stored report
func (s *Store) Report(id uuid.UUID) (models.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	return r, ok
}

// PutReport stores r as is
func (s *Store) PutReport(r models.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.reports[r.ID] = r
}

// AuditEvents returns the recorded event types in order
func (s *Store) AuditEvents() []models.AuditEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]models.AuditEventType, 0, len(s.audit))
	for _, entry := range s.audit {
		events = append(events, entry.EventType)
	}
	return events
}

// Notifications returns the stored notifications of userID, oldest first
func (s *Store) Notifications(userID uuid.UUID) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// inScope reports whether a row of companyID is visible to ctx
func (s *Store) inScope(ctx context.Context, companyID uuid.UUID) bool {
	if !s.EnforceTenantScope {
		return true
	}
	scoped, ok := database.CompanyFromContext(ctx)
	return !ok || scoped == companyID
}

// tick returns strictly increasing creation times so ordering is deterministic
func (s *Store) tick() time.Time {
	s.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Millisecond)
}

type ReportRepo struct {
	s    *Store
	inTx bool
}

func (r *ReportRepo) Create(ctx context.Context, report *models.Report) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	now := r.s.tick()
	report.CreatedAt = now
	report.UpdatedAt = now
	r.s.reports[report.ID] = *report
	return nil
}

func (r *ReportRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[id]
	if !ok || !r.s.inScope(ctx, report.CompanyID) {
		return nil, apperrors.NotFound("report", id)
	}
	return &report, nil
}

func (r *ReportRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	return r.FindByID(ctx, id)
}

func (r *ReportRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var reports []models.Report
	for _, id := range ids {
		if report, ok := r.s.reports[id]; ok {
			reports = append(reports, report)
		}
	}
	return reports, nil
}

func (r *ReportRepo) List(ctx context.Context, filter repository.ReportFilter) ([]models.Report, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var reports []models.Report
	for _, report := range r.s.reports {
		if filter.CompanyID != nil && report.CompanyID != *filter.CompanyID {
			continue
		}
		if filter.OwnerID != nil && report.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && report.Status != *filter.Status {
			continue
		}
		if filter.ReportType != nil && report.ReportType != *filter.ReportType {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(report.Title), strings.ToLower(filter.Search)) {
			continue
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].CreatedAt.After(reports[j].CreatedAt) })

	total := int64(len(reports))
	if filter.Offset > 0 {
		if filter.Offset >= len(reports) {
			reports = nil
		} else {
			reports = reports[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(reports) > filter.Limit {
		reports = reports[:filter.Limit]
	}
	return reports, total, nil
}

func (r *ReportRepo) UpdateDraft(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[id]
	if !ok || report.Status != models.ReportStatusDraft {
		return repository.ErrStaleStatus
	}
	for key, value := range fields {
		switch key {
		case "title":
			report.Title = value.(string)
		case "description":
			report.Description = value.(string)
		case "report_type":
			report.ReportType = value.(models.ReportType)
		case "country_code":
			report.CountryCode = value.(string)
		case "tax_types":
			report.TaxTypes = value.(datatypes.JSON)
		case "file_reference":
			report.FileReference = value.(string)
		case "file_name":
			report.FileName = value.(string)
		case "file_size":
			report.FileSize = value.(int64)
		}
	}
	report.UpdatedAt = r.s.tick()
	r.s.reports[id] = report
	return nil
}

func (r *ReportRepo) ApplyTransition(ctx context.Context, id uuid.UUID, from models.ReportStatus, change repository.TransitionChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[id]
	if !ok || report.Status != from {
		return repository.ErrStaleStatus
	}
	report.Status = change.To
	report.UpdatedAt = change.At
	if change.SubmittedAt != nil {
		report.SubmittedAt = change.SubmittedAt
	}
	if change.ReviewedAt != nil {
		report.ReviewedAt = change.ReviewedAt
	}
	if change.ReviewedBy != nil {
		report.ReviewedBy = change.ReviewedBy
	}
	if change.ReviewerComments != nil {
		report.ReviewerComments = *change.ReviewerComments
	}
	r.s.reports[id] = report
	return nil
}

func (r *ReportRepo) Delete(ctx context.Context, id uuid.UUID, status models.ReportStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[id]
	if !ok || report.Status != status {
		return repository.ErrStaleStatus
	}
	delete(r.s.reports, id)
	for cid, c := range r.s.comments {
		if c.ReportID == id {
			delete(r.s.comments, cid)
		}
	}
	for aid, a := range r.s.analyses {
		if a.ReportID == id {
			delete(r.s.analyses, aid)
		}
	}
	return nil
}

func (r *ReportRepo) ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var reports []models.Report
	for _, report := range r.s.reports {
		if report.Status == models.ReportStatusSubmitted && report.SubmittedAt != nil && report.SubmittedAt.Before(cutoff) {
			reports = append(reports, report)
		}
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].SubmittedAt.Before(*reports[j].SubmittedAt) })
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

// WithinTx serializes transactions, which stands in for row locks
func (r *ReportRepo) WithinTx(ctx context.Context, fn func(repository.ReportRepo) error) error {
	if r.inTx {
		return fn(r)
	}
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()
	return fn(&ReportRepo{s: r.s, inTx: true})
}

type CommentRepo struct {
	s *Store
}

func (r *CommentRepo) Create(ctx context.Context, comment *models.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	comment.CreatedAt = r.s.tick()
	r.s.comments[comment.ID] = *comment
	return nil
}

func (r *CommentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	comment, ok := r.s.comments[id]
	if !ok {
		return nil, apperrors.NotFound("comment", id)
	}
	return &comment, nil
}

func (r *CommentRepo) ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	comments := []models.Comment{}
	for _, c := range r.s.comments {
		if c.ReportID == reportID {
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}

func (r *CommentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.comments[id]; !ok {
		return apperrors.NotFound("comment", id)
	}
	delete(r.s.comments, id)
	return nil
}

type TemplateRepo struct {
	s *Store
}

func (r *TemplateRepo) Create(ctx context.Context, template *models.ReportTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if template.ID == uuid.Nil {
		template.ID = uuid.New()
	}
	template.CreatedAt = r.s.tick()
	template.UpdatedAt = template.CreatedAt
	r.s.templates[template.ID] = *template
	return nil
}

func (r *TemplateRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ReportTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	template, ok := r.s.templates[id]
	if !ok {
		return nil, apperrors.NotFound("template", id)
	}
	return &template, nil
}

func (r *TemplateRepo) List(ctx context.Context, companyID *uuid.UUID) ([]models.ReportTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	templates := []models.ReportTemplate{}
	for _, t := range r.s.templates {
		if companyID == nil || t.CompanyID == *companyID {
			templates = append(templates, t)
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

func (r *TemplateRepo) Update(ctx context.Context, template *models.ReportTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[template.ID]; !ok {
		return apperrors.NotFound("template", template.ID)
	}
	template.UpdatedAt = r.s.tick()
	r.s.templates[template.ID] = *template
	return nil
}

func (r *TemplateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[id]; !ok {
		return apperrors.NotFound("template", id)
	}
	delete(r.s.templates, id)
	return nil
}

type AnalysisRepo struct {
	s *Store
}

func (r *AnalysisRepo) Create(ctx context.Context, analysis *models.ReportAnalysis) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if analysis.ID == uuid.Nil {
		analysis.ID = uuid.New()
	}
	analysis.CreatedAt = r.s.tick()
	analysis.UpdatedAt = analysis.CreatedAt
	r.s.analyses[analysis.ID] = *analysis
	return nil
}

func (r *AnalysisRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ReportAnalysis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	analysis, ok := r.s.analyses[id]
	if !ok {
		return nil, apperrors.NotFound("analysis", id)
	}
	return &analysis, nil
}

func (r *AnalysisRepo) Update(ctx context.Context, analysis *models.ReportAnalysis) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.analyses[analysis.ID]; !ok {
		return apperrors.NotFound("analysis", analysis.ID)
	}
	analysis.UpdatedAt = r.s.tick()
	r.s.analyses[analysis.ID] = *analysis
	return nil
}

func (r *AnalysisRepo) LatestForReport(ctx context.Context, reportID uuid.UUID) (*models.ReportAnalysis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.ReportAnalysis
	for _, a := range r.s.analyses {
		if a.ReportID != reportID {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			candidate := a
			latest = &candidate
		}
	}
	return latest, nil
}

func (r *AnalysisRepo) ListForReport(ctx context.Context, reportID uuid.UUID) ([]models.ReportAnalysis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var analyses []models.ReportAnalysis
	for _, a := range r.s.analyses {
		if a.ReportID == reportID {
			analyses = append(analyses, a)
		}
	}
	sort.Slice(analyses, func(i, j int) bool { return analyses[i].CreatedAt.After(analyses[j].CreatedAt) })
	return analyses, nil
}

type NotificationRepo struct {
	s *Store
}

func (r *NotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	notification.CreatedAt = r.s.tick()
	notification.UpdatedAt = notification.CreatedAt
	r.s.notifications[notification.ID] = *notification
	return nil
}

func (r *NotificationRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	notification, ok := r.s.notifications[id]
	if !ok {
		return nil, apperrors.NotFound("notification", id)
	}
	return &notification, nil
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var notifications []models.Notification
	for _, n := range r.s.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		notifications = append(notifications, n)
	}
	sort.Slice(notifications, func(i, j int) bool { return notifications[i].CreatedAt.After(notifications[j].CreatedAt) })
	total := int64(len(notifications))
	if offset >= len(notifications) {
		return nil, total, nil
	}
	notifications = notifications[offset:]
	if limit > 0 && limit < len(notifications) {
		notifications = notifications[:limit]
	}
	return notifications, total, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok || n.UserID != userID {
		return apperrors.NotFound("notification", id)
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		r.s.notifications[id] = n
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var marked int64
	for id, n := range r.s.notifications {
		if n.UserID != userID || n.IsRead {
			continue
		}
		n.IsRead = true
		n.ReadAt = &at
		r.s.notifications[id] = n
		marked++
	}
	return marked, nil
}

type AuditRepo struct {
	s *Store
}

func (r *AuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.Timestamp = r.s.tick()
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r *AuditRepo) ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var entries []models.AuditLog
	for _, entry := range r.s.audit {
		if entry.ReportID != nil && *entry.ReportID == reportID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
