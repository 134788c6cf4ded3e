package collection

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/repository/repotest"
)

type fixture struct {
	store     *repotest.Store
	artifacts *repotest.ArtifactStore
	svc       *CollectionService
	company   uuid.UUID
	admin     models.Actor
	owner     models.Actor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repotest.NewStore()
	artifacts := repotest.NewArtifactStore()
	company := uuid.New()
	return &fixture{
		store:     store,
		artifacts: artifacts,
		svc:       NewCollectionService(store.Repos(), artifacts, log, time.Second),
		company:   company,
		admin:     models.Actor{UserID: uuid.New(), Role: models.RoleAdmin, CompanyID: company},
		owner:     models.Actor{UserID: uuid.New(), Role: models.RoleAccountant, CompanyID: company},
	}
}

// addReport stores a report; withFile also uploads its artifact
func (f *fixture) addReport(t *testing.T, company, owner uuid.UUID, title string, status models.ReportStatus, withFile bool) models.Report {
	t.Helper()
	r := models.Report{
		Base:       models.Base{ID: uuid.New(), CreatedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)},
		Title:      title,
		ReportType: models.ReportTypeCompliance,
		Status:     status,
		OwnerID:    owner,
		CompanyID:  company,
	}
	if withFile {
		r.FileReference = "reports/" + r.ID.String() + "/file.pdf"
		r.FileName = title + ".pdf"
		r.FileSize = 4
		require.NoError(t, f.artifacts.Put(context.Background(), r.FileReference, strings.NewReader("%PDF"), 4, "application/pdf"))
	}
	f.store.PutReport(r)
	return r
}

func TestListConfinesToTenant(t *testing.T) {
	f := setup(t)
	f.addReport(t, f.company, f.owner.UserID, "Mine", models.ReportStatusDraft, false)
	f.addReport(t, f.company, uuid.New(), "Colleague", models.ReportStatusSubmitted, false)
	f.addReport(t, uuid.New(), uuid.New(), "Elsewhere", models.ReportStatusSubmitted, false)

	other := uuid.New()
	page, err := f.svc.List(context.Background(), f.admin, ListFilter{CompanyID: &other})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	for _, item := range page.Items {
		assert.Equal(t, f.company, item.CompanyID)
	}

	page, err = f.svc.List(context.Background(), f.owner, ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Mine", page.Items[0].Title)
	assert.Equal(t, DefaultPageSize, page.Limit)
}

func TestListSuperAdminSeesAllCompanies(t *testing.T) {
	f := setup(t)
	f.addReport(t, f.company, f.owner.UserID, "Mine", models.ReportStatusDraft, false)
	elsewhere := uuid.New()
	f.addReport(t, elsewhere, uuid.New(), "Elsewhere", models.ReportStatusSubmitted, false)

	super := models.Actor{UserID: uuid.New(), Role: models.RoleSuperAdmin}
	page, err := f.svc.List(context.Background(), super, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = f.svc.List(context.Background(), super, ListFilter{CompanyID: &elsewhere})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Elsewhere", page.Items[0].Title)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := setup(t)
	status := models.ReportStatus("archived")

	_, err := f.svc.List(context.Background(), f.admin, ListFilter{Status: &status})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSelectSplitsVisibleAndRejected(t *testing.T) {
	f := setup(t)
	mine := f.addReport(t, f.company, f.owner.UserID, "Mine", models.ReportStatusDraft, false)
	colleague := f.addReport(t, f.company, uuid.New(), "Colleague", models.ReportStatusDraft, false)
	missing := uuid.New()

	selection, err := f.svc.Select(context.Background(), f.owner, []uuid.UUID{mine.ID, colleague.ID, missing, mine.ID})
	require.NoError(t, err)
	require.Len(t, selection.Reports, 1)
	assert.Equal(t, mine.ID, selection.Reports[0].ID)
	assert.Equal(t, []apperrors.ItemFailure{
		{ID: colleague.ID.String(), Reason: ReasonForbidden},
		{ID: missing.String(), Reason: ReasonNotFound},
	}, selection.Rejected)
}

func TestSelectValidatesInput(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Select(context.Background(), f.admin, nil)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	ids := make([]uuid.UUID, MaxBatchSize+1)
	for i := range ids {
		ids[i] = uuid.New()
	}
	_, err = f.svc.Select(context.Background(), f.admin, ids)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestBatchExportAllSucceed(t *testing.T) {
	f := setup(t)
	a := f.addReport(t, f.company, f.owner.UserID, "A", models.ReportStatusSubmitted, true)
	b := f.addReport(t, f.company, f.owner.UserID, "B", models.ReportStatusApproved, true)

	items, err := f.svc.BatchExport(context.Background(), f.admin, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ReportID)
	assert.Equal(t, "A.pdf", items[0].FileName)
	assert.Contains(t, items[0].DownloadURL, a.FileReference)
}

func TestBatchExportReportsPartialFailure(t *testing.T) {
	f := setup(t)
	a := f.addReport(t, f.company, f.owner.UserID, "A", models.ReportStatusSubmitted, true)
	b := f.addReport(t, f.company, f.owner.UserID, "B", models.ReportStatusSubmitted, true)
	c := f.addReport(t, f.company, f.owner.UserID, "C", models.ReportStatusSubmitted, true)
	f.artifacts.Drop(b.FileReference)

	items, err := f.svc.BatchExport(context.Background(), f.admin, []uuid.UUID{a.ID, b.ID, c.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPartialFailure))

	var partial *apperrors.PartialFailure
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{a.ID.String(), c.ID.String()}, partial.Succeeded)
	assert.Equal(t, []apperrors.ItemFailure{{ID: b.ID.String(), Reason: ReasonArtifactUnavailable}}, partial.Failed)

	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ReportID)
	assert.Equal(t, c.ID, items[1].ReportID)
}

func TestBatchExportPerItemReasons(t *testing.T) {
	f := setup(t)
	ok := f.addReport(t, f.company, f.owner.UserID, "Mine", models.ReportStatusDraft, true)
	noFile := f.addReport(t, f.company, f.owner.UserID, "No file", models.ReportStatusDraft, false)
	foreign := f.addReport(t, uuid.New(), uuid.New(), "Foreign", models.ReportStatusSubmitted, true)
	missing := uuid.New()

	items, err := f.svc.BatchExport(context.Background(), f.owner, []uuid.UUID{ok.ID, noFile.ID, foreign.ID, missing})
	var partial *apperrors.PartialFailure
	require.True(t, errors.As(err, &partial))
	require.Len(t, items, 1)
	assert.Equal(t, []string{ok.ID.String()}, partial.Succeeded)
	assert.Equal(t, []apperrors.ItemFailure{
		{ID: noFile.ID.String(), Reason: ReasonArtifactUnavailable},
		{ID: foreign.ID.String(), Reason: ReasonForbidden},
		{ID: missing.String(), Reason: ReasonNotFound},
	}, partial.Failed)
}

func TestBatchExportStorageOutage(t *testing.T) {
	f := setup(t)
	a := f.addReport(t, f.company, f.owner.UserID, "A", models.ReportStatusSubmitted, true)
	f.artifacts.PresignErr = errors.New("connection refused")

	items, err := f.svc.BatchExport(context.Background(), f.admin, []uuid.UUID{a.ID})
	var partial *apperrors.PartialFailure
	require.True(t, errors.As(err, &partial))
	assert.Empty(t, items)
	assert.Empty(t, partial.Succeeded)
	assert.Equal(t, []apperrors.ItemFailure{{ID: a.ID.String(), Reason: ReasonUpstreamFailure}}, partial.Failed)
}

func TestExportExcel(t *testing.T) {
	f := setup(t)
	f.addReport(t, f.company, f.owner.UserID, "VAT Q1", models.ReportStatusSubmitted, true)
	f.addReport(t, uuid.New(), uuid.New(), "Elsewhere", models.ReportStatusSubmitted, false)

	buf, filename, err := f.svc.ExportExcel(context.Background(), f.admin, ListFilter{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(filename, ".xlsx"))

	book, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, excelHeadings, rows[0])
	assert.Equal(t, "VAT Q1", rows[1][0])
	assert.Equal(t, "submitted", rows[1][2])
	assert.Equal(t, "VAT Q1.pdf", rows[1][6])
}
