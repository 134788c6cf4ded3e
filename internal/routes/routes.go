package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regdesk/backend/internal/handlers"
	"github.com/regdesk/backend/internal/middleware"
)

// Handlers groups the HTTP handlers served by the API
type Handlers struct {
	Report       *handlers.ReportHandler
	Comment      *handlers.CommentHandler
	Template     *handlers.TemplateHandler
	Collection   *handlers.CollectionHandler
	Analysis     *handlers.AnalysisHandler
	Notification *handlers.NotificationHandler
}

// SetupRoutes registers all API routes. Everything under /api requires a bearer token.
func SetupRoutes(router *gin.Engine, h Handlers, jwtSecret string) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtSecret))

	reports := api.Group("/reports")
	{
		// Collection
		reports.GET("", h.Collection.ListReports)
		reports.POST("/select", h.Collection.SelectReports)
		reports.POST("/export", h.Collection.BatchExport)
		reports.GET("/export.xlsx", h.Collection.ExportExcel)

		// Lifecycle
		reports.POST("", h.Report.CreateReport)
		reports.GET("/:id", h.Report.GetReport)
		reports.PUT("/:id", h.Report.UpdateReport)
		reports.DELETE("/:id", h.Report.DeleteReport)
		reports.GET("/:id/checklist", h.Report.GetChecklist)
		reports.POST("/:id/submit", h.Report.SubmitReport)
		reports.POST("/:id/review", h.Report.BeginReview)
		reports.POST("/:id/decision", h.Report.DecideReport)
		reports.GET("/:id/download", h.Report.DownloadReport)
		reports.GET("/:id/history", h.Report.GetHistory)

		// Comments
		reports.GET("/:id/comments", h.Comment.ListComments)
		reports.POST("/:id/comments", h.Comment.AddComment)
		reports.DELETE("/:id/comments/:comment_id", h.Comment.DeleteComment)

		// Analysis
		reports.POST("/:id/analysis", h.Analysis.RequestAnalysis)
		reports.GET("/:id/analysis", h.Analysis.GetLatestAnalysis)
		reports.GET("/:id/analyses", h.Analysis.ListAnalyses)
	}

	api.GET("/analyses/:id/errors", h.Analysis.GetAnalysisErrors)

	notifications := api.Group("/notifications")
	{
		notifications.GET("", h.Notification.ListNotifications)
		notifications.POST("/:id/read", h.Notification.MarkRead)
		notifications.POST("/read-all", h.Notification.MarkAllRead)
	}

	templates := api.Group("/templates")
	{
		templates.GET("", h.Template.ListTemplates)
		templates.POST("", h.Template.CreateTemplate)
		templates.GET("/:id", h.Template.GetTemplate)
		templates.PUT("/:id", h.Template.UpdateTemplate)
		templates.DELETE("/:id", h.Template.DeleteTemplate)
		templates.POST("/:id/use", h.Template.UseTemplate)
		templates.POST("/:id/reports", h.Template.CreateReportFromTemplate)
	}
}
