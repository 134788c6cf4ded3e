package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/services/collection"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CollectionHandler handles listing, selection and batch export
type CollectionHandler struct {
	collectionService *collection.CollectionService
	log               *logrus.Logger
}

// NewCollectionHandler creates a new collection handler
func NewCollectionHandler(collectionService *collection.CollectionService, log *logrus.Logger) *CollectionHandler {
	return &CollectionHandler{collectionService: collectionService, log: log}
}

// BatchRequest carries the ids of a batch operation
type BatchRequest struct {
	ReportIDs []uuid.UUID `json:"report_ids"`
}

// ListReports lists reports visible to the caller
func (h *CollectionHandler) ListReports(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter, err := listFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	page, err := h.collectionService.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "reports": page.Items, "total": page.Total, "limit": page.Limit, "offset": page.Offset})
}

// SelectReports resolves ids into the visible working set
func (h *CollectionHandler) SelectReports(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	selection, err := h.collectionService.Select(c.Request.Context(), actor, req.ReportIDs)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "reports": selection.Reports, "rejected": selection.Rejected})
}

// BatchExport returns a download link per report. Partial results answer 207.
func (h *CollectionHandler) BatchExport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	items, err := h.collectionService.BatchExport(c.Request.Context(), actor, req.ReportIDs)
	var partial *apperrors.PartialFailure
	switch {
	case errors.As(err, &partial):
		c.JSON(http.StatusMultiStatus, gin.H{
			"status":  "partial",
			"error":   partial.Error(),
			"code":    string(apperrors.KindPartialFailure),
			"details": partial,
			"items":   items,
		})
	case err != nil:
		respondError(c, h.log, err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success", "items": items})
	}
}

// ExportExcel streams the scoped listing as an xlsx workbook
func (h *CollectionHandler) ExportExcel(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter, err := listFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	buf, filename, err := h.collectionService.ExportExcel(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func listFilter(c *gin.Context) (collection.ListFilter, error) {
	filter := collection.ListFilter{
		Search: c.Query("search"),
		Limit:  queryInt(c, "limit", collection.DefaultPageSize),
		Offset: queryInt(c, "offset", 0),
	}
	companyID, err := optionalUUID(c.Query("company_id"))
	if err != nil {
		return filter, fmt.Errorf("invalid company_id: %w", err)
	}
	filter.CompanyID = companyID
	if v := c.Query("status"); v != "" {
		status := models.ReportStatus(v)
		filter.Status = &status
	}
	if v := c.Query("report_type"); v != "" {
		reportType := models.ReportType(v)
		filter.ReportType = &reportType
	}
	return filter, nil
}
