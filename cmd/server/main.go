package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/audit"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/database"
	"github.com/regdesk/backend/internal/handlers"
	"github.com/regdesk/backend/internal/jobs"
	"github.com/regdesk/backend/internal/middleware"
	"github.com/regdesk/backend/internal/queue"
	"github.com/regdesk/backend/internal/repository"
	"github.com/regdesk/backend/internal/routes"
	"github.com/regdesk/backend/internal/services/analysis"
	"github.com/regdesk/backend/internal/services/collection"
	"github.com/regdesk/backend/internal/services/comment"
	"github.com/regdesk/backend/internal/services/notification"
	"github.com/regdesk/backend/internal/services/report"
	"github.com/regdesk/backend/internal/services/storage"
	"github.com/regdesk/backend/internal/services/template"
	"github.com/regdesk/backend/internal/workflow"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()
	log := config.NewLogger(cfg.LogLevel)

	// Initialize database
	db, err := database.InitDB(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	repos := repository.New(db)

	ctx := context.Background()

	// Artifact store
	store, err := storage.NewMinioStore(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize artifact store")
	}

	// Initialize Redis client and queue
	redisClient, err := queue.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	redisQueue := queue.NewRedisQueue(redisClient, log)

	// Initialize services
	timeout := cfg.Workflow.OperationTimeout
	auditLogger := audit.NewLogger(repos.Audit, log)
	reportService := report.NewReportService(repos, store, workflow.NewEvaluator(), auditLogger, log, report.Options{
		OperationTimeout: timeout,
		MaxUploadSize:    cfg.Storage.MaxUploadSize,
		Notifier:         notification.NewPublisher(redisQueue),
	})
	commentService := comment.NewCommentService(repos, auditLogger, log, timeout)
	templateService := template.NewTemplateService(repos, log, timeout)
	collectionService := collection.NewCollectionService(repos, store, log, timeout)
	analysisService := analysis.NewAnalysisService(repos, store, analysis.NewScoringClient(cfg.Scoring), redisQueue, auditLogger, log, timeout, cfg.Scoring.Timeout)
	notificationService := notification.NewNotificationService(repos, log, timeout)

	// Background workers
	workerPool := queue.NewWorkerPool(redisQueue, log, cfg.Workflow.WorkerCount)
	jobs.RegisterAllJobHandlers(workerPool, analysisService, notificationService)
	workerPool.Start()

	scheduler := jobs.NewScheduler()
	if err := jobs.ScheduleRecurringJobs(scheduler, cfg.Workflow, reportService, log); err != nil {
		log.WithError(err).Fatal("Failed to schedule recurring jobs")
	}
	scheduler.StartAsync()

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.IPRateLimit,
		cfg.Security.IPRateBurst,
		time.Duration(cfg.Security.RateLimitCleanupMin)*time.Minute,
	)

	router := gin.New()
	router.Use(middleware.RequestLogger(log))
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	router.Use(middleware.SecureHeadersMiddleware(middleware.SecureHeadersConfigFrom(cfg.Security, cfg.Environment)))
	router.Use(rateLimiter.IPRateLimiterMiddleware())

	routes.SetupRoutes(router, routes.Handlers{
		Report:       handlers.NewReportHandler(reportService, log),
		Comment:      handlers.NewCommentHandler(commentService, log),
		Template:     handlers.NewTemplateHandler(templateService, reportService, log),
		Collection:   handlers.NewCollectionHandler(collectionService, log),
		Analysis:     handlers.NewAnalysisHandler(analysisService, log),
		Notification: handlers.NewNotificationHandler(notificationService, log),
	}, cfg.JWT.Secret)

	// Start server
	srv := startServer(router, cfg.Server, log)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	workerPool.Stop()
	scheduler.Stop()
	rateLimiter.Stop()

	// Create a deadline to wait for
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}
	if err := redisClient.Close(); err != nil {
		log.WithError(err).Warn("Failed to close Redis client")
	}

	log.Info("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig, log *logrus.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.WithField("port", cfg.Port).Info("Server started")
	return srv
}
