package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/config"
)

// DefaultAutoReviewBatch bounds how many reports one run moves
const DefaultAutoReviewBatch = 100

// ReviewStarter moves long-waiting submitted reports into review
type ReviewStarter interface {
	AutoBeginReview(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// AutoReviewJob starts review of reports submitted longer than After ago
type AutoReviewJob struct {
	reviews ReviewStarter
	after   time.Duration
	batch   int
	log     *logrus.Logger
}

// NewAutoReviewJob creates a new auto review job
func NewAutoReviewJob(reviews ReviewStarter, after time.Duration, log *logrus.Logger) *AutoReviewJob {
	if after <= 0 {
		after = 24 * time.Hour
	}
	return &AutoReviewJob{reviews: reviews, after: after, batch: DefaultAutoReviewBatch, log: log}
}

// Run processes one batch and returns how many reports moved to under_review
func (j *AutoReviewJob) Run(ctx context.Context) int {
	started, err := j.reviews.AutoBeginReview(ctx, j.after, j.batch)
	if err != nil {
		config.LogError(j.log, "jobs", "AutoReviewJob.Run", "auto begin review", started, err)
		return started
	}
	if started > 0 {
		j.log.WithField("started", started).Info("auto review started")
	}
	return started
}
