package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/services/report"
)

// ReportHandler handles report lifecycle requests
type ReportHandler struct {
	reportService *report.ReportService
	log           *logrus.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *report.ReportService, log *logrus.Logger) *ReportHandler {
	return &ReportHandler{reportService: reportService, log: log}
}

// DecideRequest represents a review decision
type DecideRequest struct {
	Decision models.Decision `json:"decision"`
	Comment  string          `json:"comment"`
}

// CreateReport creates a draft from JSON or a multipart form with an optional "file"
func (h *ReportHandler) CreateReport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var input models.ReportDraftInput
	var upload *report.Upload
	if isMultipart(c) {
		var err error
		input, err = draftFromForm(c)
		if err != nil {
			badRequest(c, err)
			return
		}
		var closeFile func()
		upload, closeFile, ok = h.formUpload(c)
		defer closeFile()
		if !ok {
			return
		}
	} else if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.reportService.Create(c.Request.Context(), actor, input, upload)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "report": created})
}

// GetReport returns a report with its checklist
func (h *ReportHandler) GetReport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	found, err := h.reportService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "report": found})
}

// GetChecklist returns the evaluated checklist of a report
func (h *ReportHandler) GetChecklist(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	checklist, err := h.reportService.Checklist(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "checklist": checklist})
}

// UpdateReport edits a draft
func (h *ReportHandler) UpdateReport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var input models.ReportUpdateInput
	var upload *report.Upload
	if isMultipart(c) {
		input = updateFromForm(c)
		var closeFile func()
		upload, closeFile, ok = h.formUpload(c)
		defer closeFile()
		if !ok {
			return
		}
	} else if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.reportService.Update(c.Request.Context(), actor, id, input, upload)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "report": updated})
}

// SubmitReport moves a draft to submitted
func (h *ReportHandler) SubmitReport(c *gin.Context) {
	h.transition(c, h.reportService.Submit)
}

// BeginReview moves a submitted report to under_review
func (h *ReportHandler) BeginReview(c *gin.Context) {
	h.transition(c, h.reportService.BeginReview)
}

// DecideReport approves or rejects a report
func (h *ReportHandler) DecideReport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	decided, err := h.reportService.Decide(c.Request.Context(), actor, models.ReviewDecision{
		ReportID:   id,
		Decision:   req.Decision,
		ReviewerID: actor.UserID,
		Comment:    req.Comment,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "report": decided})
}

// DeleteReport removes a report and its artifact
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.reportService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Report deleted"})
}

// DownloadReport redirects to a presigned artifact URL. ?redirect=false returns it as JSON.
func (h *ReportHandler) DownloadReport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	url, err := h.reportService.DownloadURL(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if c.Query("redirect") == "false" {
		c.JSON(http.StatusOK, gin.H{"status": "success", "download_url": url})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// GetHistory returns the audit trail of a report
func (h *ReportHandler) GetHistory(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	history, err := h.reportService.History(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "history": history})
}

func (h *ReportHandler) transition(c *gin.Context, apply func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Report, error)) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	moved, err := apply(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "report": moved})
}

// formUpload opens the optional "file" part. A missing part is not an error.
// The returned func closes the part and is never nil.
func (h *ReportHandler) formUpload(c *gin.Context) (*report.Upload, func(), bool) {
	noop := func() {}
	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, noop, true
		}
		badRequest(c, err)
		return nil, noop, false
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, fmt.Errorf("failed to read upload: %w", err))
		return nil, noop, false
	}
	return &report.Upload{Filename: header.Filename, Size: header.Size, Reader: file}, func() { file.Close() }, true
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

func draftFromForm(c *gin.Context) (models.ReportDraftInput, error) {
	input := models.ReportDraftInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		ReportType:  models.ReportType(c.PostForm("report_type")),
		CountryCode: c.PostForm("country_code"),
		TaxTypes:    formList(c, "tax_types"),
	}
	companyID, err := optionalUUID(c.PostForm("company_id"))
	if err != nil {
		return input, fmt.Errorf("invalid company_id: %w", err)
	}
	if companyID != nil {
		input.CompanyID = *companyID
	}
	return input, nil
}

func updateFromForm(c *gin.Context) models.ReportUpdateInput {
	var input models.ReportUpdateInput
	if v, ok := c.GetPostForm("title"); ok {
		input.Title = &v
	}
	if v, ok := c.GetPostForm("description"); ok {
		input.Description = &v
	}
	if v, ok := c.GetPostForm("report_type"); ok {
		reportType := models.ReportType(v)
		input.ReportType = &reportType
	}
	if v, ok := c.GetPostForm("country_code"); ok {
		input.CountryCode = &v
	}
	input.TaxTypes = formList(c, "tax_types")
	return input
}

// formList accepts repeated fields or one comma separated value
func formList(c *gin.Context, name string) []string {
	var values []string
	for _, raw := range c.PostFormArray(name) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}
