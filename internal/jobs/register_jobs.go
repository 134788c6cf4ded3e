package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/queue"
)

// AutoReviewInterval is how often the auto review job runs
const AutoReviewInterval = 15 * time.Minute

// JobHandler consumes one queued job
type JobHandler interface {
	HandleJob(ctx context.Context, job *queue.Job) error
}

// RegisterAllJobHandlers registers the queue consumers with the worker pool
func RegisterAllJobHandlers(pool *queue.WorkerPool, analysis, notifications JobHandler) {
	pool.RegisterHandler(queue.QueueReportAnalysis, analysis.HandleJob)
	pool.RegisterHandler(queue.QueueNotifications, notifications.HandleJob)
}

// NewScheduler creates the scheduler for recurring jobs
func NewScheduler() *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return s
}

// ScheduleRecurringJobs schedules all recurring jobs enabled by cfg
func ScheduleRecurringJobs(s *gocron.Scheduler, cfg config.WorkflowConfig, reviews ReviewStarter, log *logrus.Logger) error {
	if !cfg.AutoReviewEnabled {
		log.Info("auto review disabled")
		return nil
	}

	job := NewAutoReviewJob(reviews, cfg.AutoReviewAfter, log)
	timeout := cfg.OperationTimeout * DefaultAutoReviewBatch
	if timeout <= 0 {
		timeout = AutoReviewInterval
	}
	_, err := s.Every(AutoReviewInterval).Tag("auto_review").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		job.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule auto review: %w", err)
	}
	return nil
}
