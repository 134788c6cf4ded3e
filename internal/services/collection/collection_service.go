package collection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/repository"
	"github.com/regdesk/backend/internal/services/storage"
	"github.com/regdesk/backend/internal/workflow"
)

const (
	// MaxBatchSize bounds select and export requests
	MaxBatchSize = 100
	// DefaultPageSize applies when a listing has no limit
	DefaultPageSize = 50
	maxPageSize     = 200
	maxExportRows   = 10000
)

// Per-item failure reasons of batch operations
const (
	ReasonNotFound            = "not_found"
	ReasonForbidden           = "forbidden"
	ReasonArtifactUnavailable = "artifact_unavailable"
	ReasonUpstreamFailure     = "upstream_failure"
)

// ListFilter is the client-supplied listing filter. CompanyID is honoured only for superadmins.
type ListFilter struct {
	CompanyID  *uuid.UUID
	Status     *models.ReportStatus
	ReportType *models.ReportType
	Search     string
	Limit      int
	Offset     int
}

// Page is one page of report summaries
type Page struct {
	Items  []models.ReportSummary `json:"items"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// Selection is the working set resolved from a list of ids
type Selection struct {
	Reports  []models.ReportSummary   `json:"reports"`
	Rejected []apperrors.ItemFailure `json:"rejected"`
}

// ExportItem is one downloadable artifact
type ExportItem struct {
	ReportID    uuid.UUID `json:"report_id"`
	FileName    string    `json:"file_name"`
	DownloadURL string    `json:"download_url"`
}

// CollectionService lists, selects and exports reports within the actor's tenant scope
type CollectionService struct {
	reports repository.ReportRepo
	store   storage.ArtifactStore
	log     *logrus.Logger
	timeout time.Duration
}

// NewCollectionService creates a new collection service
func NewCollectionService(repos *repository.Repos, store storage.ArtifactStore, log *logrus.Logger, timeout time.Duration) *CollectionService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CollectionService{reports: repos.Report, store: store, log: log, timeout: timeout}
}

func (s *CollectionService) begin(ctx context.Context, actor models.Actor) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return database.ScopeContext(ctx, actor), cancel
}

// List returns reports visible to actor. Non-superadmins are confined to their
// company, and contributors to their own reports, whatever the filter asks for.
func (s *CollectionService) List(ctx context.Context, actor models.Actor, filter ListFilter) (*Page, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	repoFilter, err := s.scopedFilter(actor, filter)
	if err != nil {
		return nil, err
	}
	if repoFilter.Limit <= 0 {
		repoFilter.Limit = DefaultPageSize
	}
	if repoFilter.Limit > maxPageSize {
		repoFilter.Limit = maxPageSize
	}

	reports, total, err := s.reports.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}

	page := &Page{Items: make([]models.ReportSummary, 0, len(reports)), Total: total, Limit: repoFilter.Limit, Offset: repoFilter.Offset}
	for i := range reports {
		page.Items = append(page.Items, reports[i].Summary())
	}
	return page, nil
}

// Select resolves ids into the visible working set and a per-id rejection list
func (s *CollectionService) Select(ctx context.Context, actor models.Actor, ids []uuid.UUID) (*Selection, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	found, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	selection := &Selection{Reports: []models.ReportSummary{}, Rejected: []apperrors.ItemFailure{}}
	for _, id := range ids {
		report, ok := found[id]
		switch {
		case !ok:
			selection.Rejected = append(selection.Rejected, apperrors.ItemFailure{ID: id.String(), Reason: ReasonNotFound})
		case !workflow.Permitted(actor, workflow.ActionView, report):
			selection.Rejected = append(selection.Rejected, apperrors.ItemFailure{ID: id.String(), Reason: ReasonForbidden})
		default:
			selection.Reports = append(selection.Reports, report.Summary())
		}
	}
	return selection, nil
}

// BatchExport produces a download link per report. Items are handled
// independently; when any fails the successful items are still returned
// together with a *apperrors.PartialFailure listing every outcome.
func (s *CollectionService) BatchExport(ctx context.Context, actor models.Actor, ids []uuid.UUID) ([]ExportItem, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	found, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := []ExportItem{}
	partial := &apperrors.PartialFailure{Succeeded: []string{}, Failed: []apperrors.ItemFailure{}}
	for _, id := range ids {
		item, reason := s.exportOne(ctx, actor, id, found[id])
		if reason != "" {
			partial.Failed = append(partial.Failed, apperrors.ItemFailure{ID: id.String(), Reason: reason})
			continue
		}
		items = append(items, item)
		partial.Succeeded = append(partial.Succeeded, id.String())
	}

	if len(partial.Failed) > 0 {
		s.log.WithFields(logrus.Fields{
			"actor_id":  actor.UserID,
			"succeeded": len(partial.Succeeded),
			"failed":    len(partial.Failed),
		}).Warn("batch export partially failed")
		return items, partial
	}
	return items, nil
}

func (s *CollectionService) exportOne(ctx context.Context, actor models.Actor, id uuid.UUID, report *models.Report) (ExportItem, string) {
	if report == nil {
		return ExportItem{}, ReasonNotFound
	}
	if !workflow.Permitted(actor, workflow.ActionDownload, report) {
		return ExportItem{}, ReasonForbidden
	}
	if !report.HasFile() {
		return ExportItem{}, ReasonArtifactUnavailable
	}
	if _, err := s.store.Stat(ctx, report.FileReference); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ExportItem{}, ReasonArtifactUnavailable
		}
		config.LogError(s.log, "collection", "exportOne", "stat artifact", id, err)
		return ExportItem{}, ReasonUpstreamFailure
	}
	url, err := s.store.PresignedURL(ctx, report.FileReference, report.FileName)
	if err != nil {
		config.LogError(s.log, "collection", "exportOne", "presign artifact", id, err)
		return ExportItem{}, ReasonUpstreamFailure
	}
	return ExportItem{ReportID: id, FileName: report.FileName, DownloadURL: url}, ""
}

// ExportExcel renders the scoped listing as an xlsx workbook
func (s *CollectionService) ExportExcel(ctx context.Context, actor models.Actor, filter ListFilter) (*bytes.Buffer, string, error) {
	ctx, cancel := s.begin(ctx, actor)
	defer cancel()

	repoFilter, err := s.scopedFilter(actor, filter)
	if err != nil {
		return nil, "", err
	}
	repoFilter.Limit = maxExportRows
	repoFilter.Offset = 0

	reports, _, err := s.reports.List(ctx, repoFilter)
	if err != nil {
		return nil, "", apperrors.OrTimeout(ctx, err)
	}

	buf, err := renderWorkbook(reports)
	if err != nil {
		config.LogError(s.log, "collection", "ExportExcel", "render workbook", len(reports), err)
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}
	filename := fmt.Sprintf("reports_export_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	return buf, filename, nil
}

func (s *CollectionService) scopedFilter(actor models.Actor, filter ListFilter) (repository.ReportFilter, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return repository.ReportFilter{}, apperrors.Validation("status", fmt.Sprintf("unknown status %q", *filter.Status))
	}
	scope := workflow.ScopeFor(actor, filter.CompanyID)
	return repository.ReportFilter{
		CompanyID:  scope.CompanyID,
		OwnerID:    scope.OwnerID,
		Status:     filter.Status,
		ReportType: filter.ReportType,
		Search:     filter.Search,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (s *CollectionService) load(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Report, error) {
	reports, err := s.reports.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.OrTimeout(ctx, err)
	}
	found := make(map[uuid.UUID]*models.Report, len(reports))
	for i := range reports {
		found[reports[i].ID] = &reports[i]
	}
	return found, nil
}

// normalizeIDs drops duplicates and keeps request order
func normalizeIDs(ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, apperrors.Validation("report_ids", "at least one report id is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) > MaxBatchSize {
		return nil, apperrors.Validation("report_ids", fmt.Sprintf("at most %d reports per request", MaxBatchSize))
	}
	return unique, nil
}
