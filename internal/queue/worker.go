package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler processes one job. A returned error triggers a retry while retries remain.
type Handler func(ctx context.Context, job *Job) error

// WorkerPool polls registered queues and dispatches jobs to their handlers
type WorkerPool struct {
	broker      Broker
	log         *logrus.Logger
	handlers    map[string]Handler
	workerCount int
	pollWait    time.Duration
	wg          sync.WaitGroup
	processing  sync.Map
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(broker Broker, log *logrus.Logger, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		broker:      broker,
		log:         log,
		handlers:    make(map[string]Handler),
		workerCount: workerCount,
		pollWait:    time.Second,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterHandler registers a handler for a queue. Call before Start.
func (p *WorkerPool) RegisterHandler(queueName string, handler Handler) {
	p.handlers[queueName] = handler
}

// Start launches the workers
func (p *WorkerPool) Start() {
	p.log.WithField("workers", p.workerCount).Info("starting job workers")
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels in-flight polls and waits for workers to exit
func (p *WorkerPool) Stop() {
	p.log.Info("stopping job workers")
	p.cancel()
	p.wg.Wait()
	p.log.Info("job workers stopped")
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	queues := make([]string, 0, len(p.handlers))
	for queueName := range p.handlers {
		queues = append(queues, queueName)
	}
	if len(queues) == 0 {
		p.log.WithField("worker", id).Warn("no queues registered, worker exiting")
		return
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		for _, queueName := range queues {
			job, err := p.broker.Dequeue(p.ctx, queueName, p.pollWait)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.log.WithError(err).WithFields(logrus.Fields{"worker": id, "queue": queueName}).Error("failed to dequeue job")
				time.Sleep(time.Second)
				continue
			}
			if job == nil {
				continue
			}
			if err := p.ProcessJob(p.ctx, job); err != nil {
				p.log.WithError(err).WithFields(logrus.Fields{"worker": id, "job_id": job.ID}).Warn("job failed")
			}
			// one job per pass gives the other queues a turn
			break
		}
	}
}

// ProcessJob runs the handler for job and records the outcome with the broker
func (p *WorkerPool) ProcessJob(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}

	handler, ok := p.handlers[job.Queue]
	if !ok {
		err := fmt.Errorf("no handler registered for queue: %s", job.Queue)
		job.MaxRetries = 0
		if failErr := p.broker.Fail(ctx, job, err); failErr != nil {
			p.log.WithError(failErr).WithField("job_id", job.ID).Error("failed to mark job as failed")
		}
		return err
	}

	p.processing.Store(job.ID, true)
	defer p.processing.Delete(job.ID)

	if err := handler(ctx, job); err != nil {
		if failErr := p.broker.Fail(ctx, job, err); failErr != nil {
			p.log.WithError(failErr).WithField("job_id", job.ID).Error("failed to mark job as failed")
		}
		return fmt.Errorf("job processing failed: %w", err)
	}

	if err := p.broker.Complete(ctx, job); err != nil {
		p.log.WithError(err).WithField("job_id", job.ID).Error("failed to mark job as completed")
	}
	return nil
}

// IsProcessing checks if a job is currently being processed
func (p *WorkerPool) IsProcessing(jobID string) bool {
	_, ok := p.processing.Load(jobID)
	return ok
}
