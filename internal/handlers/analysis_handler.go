package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/services/analysis"
)

// AnalysisHandler handles scoring requests
type AnalysisHandler struct {
	analysisService *analysis.AnalysisService
	log             *logrus.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analysisService *analysis.AnalysisService, log *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService, log: log}
}

// RequestAnalysis queues a scoring run. The body is optional.
func (h *AnalysisHandler) RequestAnalysis(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	reportID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req analysis.Request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	queued, err := h.analysisService.RequestAnalysis(c.Request.Context(), actor, reportID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "success", "analysis": queued})
}

// GetLatestAnalysis returns the most recent scoring run of a report
func (h *AnalysisHandler) GetLatestAnalysis(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	reportID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	latest, err := h.analysisService.LatestAnalysis(c.Request.Context(), actor, reportID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "analysis": latest})
}

// ListAnalyses returns every scoring run of a report, newest first
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	reportID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	analyses, err := h.analysisService.ListAnalyses(c.Request.Context(), actor, reportID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "analyses": analyses, "total": len(analyses)})
}

// GetAnalysisErrors returns the findings and check summary of one run
func (h *AnalysisHandler) GetAnalysisErrors(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	analysisID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	breakdown, err := h.analysisService.AnalysisErrors(c.Request.Context(), actor, analysisID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "analysis_id": breakdown.AnalysisID, "errors": breakdown.Errors, "summary": breakdown.Summary})
}
