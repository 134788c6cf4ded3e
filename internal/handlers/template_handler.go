package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/services/report"
	"github.com/regdesk/backend/internal/services/template"
)

// TemplateHandler handles report templates
type TemplateHandler struct {
	templateService *template.TemplateService
	reportService   *report.ReportService
	log             *logrus.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(templateService *template.TemplateService, reportService *report.ReportService, log *logrus.Logger) *TemplateHandler {
	return &TemplateHandler{templateService: templateService, reportService: reportService, log: log}
}

// CreateTemplate stores a template
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input models.TemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.templateService.Create(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "template": created})
}

// ListTemplates lists templates of the caller's company
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	companyID, err := optionalUUID(c.Query("company_id"))
	if err != nil {
		badRequest(c, err)
		return
	}

	templates, err := h.templateService.List(c.Request.Context(), actor, companyID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "templates": templates})
}

// GetTemplate returns one template
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	found, err := h.templateService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "template": found})
}

// UpdateTemplate replaces a template's fields
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var input models.TemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.templateService.Update(c.Request.Context(), actor, id, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "template": updated})
}

// DeleteTemplate removes a template
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.templateService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Template deleted"})
}

// UseTemplate returns the draft payload built from a template without creating anything
func (h *TemplateHandler) UseTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	draft, err := h.templateService.Use(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "draft": draft})
}

// CreateReportFromTemplate builds the draft payload and hands it to report creation
func (h *TemplateHandler) CreateReportFromTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	draft, err := h.templateService.Use(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	created, err := h.reportService.Create(c.Request.Context(), actor, *draft, nil)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "report": created})
}
