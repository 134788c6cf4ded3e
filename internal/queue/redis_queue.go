package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/config"
)

// Redis key prefixes
const (
	jobPrefix     = "jobs:"
	delayedPrefix = "delayed:"
)

// Enqueuer is the producer side of the queue
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...EnqueueOption) (string, error)
}

// Broker is the consumer side of the queue
type Broker interface {
	Dequeue(ctx context.Context, queueName string, wait time.Duration) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job, jobErr error) error
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisQueue stores jobs in Redis lists, with a sorted set per queue for delayed runs
type RedisQueue struct {
	client *redis.Client
	log    *logrus.Logger
}

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client *redis.Client, log *logrus.Logger) *RedisQueue {
	return &RedisQueue{client: client, log: log}
}

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...EnqueueOption) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Queue:      queueName,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: DefaultRetryCount,
		CreatedAt:  now,
		UpdatedAt:  now,
		RunAt:      now,
	}
	for _, opt := range opts {
		opt(job)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if job.RunAt.After(now) {
		err = q.client.ZAdd(ctx, delayedPrefix+queueName, &redis.Z{
			Score:  float64(job.RunAt.Unix()),
			Member: jobBytes,
		}).Err()
	} else {
		err = q.client.LPush(ctx, queueName, jobBytes).Err()
	}
	if err != nil {
		return "", fmt.Errorf("failed to push job to queue: %w", err)
	}

	q.store(ctx, job.ID, jobBytes)
	return job.ID, nil
}

// Dequeue pops the next ready job, waiting up to wait. It returns nil, nil when the queue is empty.
func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, wait time.Duration) (*Job, error) {
	q.moveReadyDelayedJobs(ctx, queueName)

	result, err := q.client.BRPop(ctx, wait, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	job.Status = JobStatusProcessing
	job.UpdatedAt = time.Now()
	q.save(ctx, &job)
	return &job, nil
}

// Complete marks a job as completed
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	job.Status = JobStatusCompleted
	job.UpdatedAt = time.Now()
	return q.save(ctx, job)
}

// Fail records the error and schedules a retry with exponential backoff while retries remain
func (q *RedisQueue) Fail(ctx context.Context, job *Job, jobErr error) error {
	job.UpdatedAt = time.Now()
	if jobErr != nil {
		job.LastError = jobErr.Error()
	}

	if !job.CanRetry() {
		job.Status = JobStatusFailed
		return q.save(ctx, job)
	}

	job.Status = JobStatusPending
	job.RunAt = time.Now().Add(calculateBackoff(job.RetryCount))
	job.RetryCount++

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	err = q.client.ZAdd(ctx, delayedPrefix+job.Queue, &redis.Z{
		Score:  float64(job.RunAt.Unix()),
		Member: jobBytes,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add job to delayed queue: %w", err)
	}
	q.store(ctx, job.ID, jobBytes)
	return nil
}

// Stats returns queue depths
func (q *RedisQueue) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	waiting, err := q.client.LLen(ctx, queueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, delayedPrefix+queueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read delayed queue length: %w", err)
	}
	return &QueueStats{Queue: queueName, Waiting: waiting, Delayed: delayed}, nil
}

// moveReadyDelayedJobs moves delayed jobs that are ready to run to the main queue
func (q *RedisQueue) moveReadyDelayedJobs(ctx context.Context, queueName string) {
	jobs, err := q.client.ZRangeByScore(ctx, delayedPrefix+queueName, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		q.log.WithError(err).WithField("queue", queueName).Error("failed to read delayed jobs")
		return
	}

	for _, jobStr := range jobs {
		// ZRem first so two workers never both move the same job
		removed, err := q.client.ZRem(ctx, delayedPrefix+queueName, jobStr).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, queueName, jobStr).Err(); err != nil {
			q.log.WithError(err).WithField("queue", queueName).Error("failed to move delayed job")
		}
	}
}

func (q *RedisQueue) save(ctx context.Context, job *Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.store(ctx, job.ID, jobBytes)
}

func (q *RedisQueue) store(ctx context.Context, id string, jobBytes []byte) error {
	if err := q.client.HSet(ctx, jobPrefix+id, "data", jobBytes).Err(); err != nil {
		config.LogError(q.log, "queue", "store", "store job details", id, err)
		return fmt.Errorf("failed to store job details: %w", err)
	}
	if err := q.client.Expire(ctx, jobPrefix+id, DefaultTTL).Err(); err != nil {
		q.log.WithError(err).WithField("job_id", id).Warn("failed to set TTL on job")
	}
	return nil
}
