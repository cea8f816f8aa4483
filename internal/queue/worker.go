package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/models"
)

// JobHandler executes one job type. The returned value becomes the
// job's result payload.
type JobHandler func(ctx context.Context, job *models.JobRequest) (interface{}, error)

// WorkerPoolConfig controls pool size, polling, and per-type timeouts
type WorkerPoolConfig struct {
	Workers            int
	PollInterval       time.Duration
	TailoringTimeout   time.Duration
	ApplicationTimeout time.Duration
	SearchTimeout      time.Duration
}

// DefaultWorkerPoolConfig returns the standing defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:            5,
		PollInterval:       time.Second,
		TailoringTimeout:   10 * time.Minute,
		ApplicationTimeout: 30 * time.Minute,
		SearchTimeout:      5 * time.Minute,
	}
}

// WorkerPool runs a fixed set of workers that poll the queue and
// dispatch to registered handlers.
type WorkerPool struct {
	queueMgr *Manager
	config   WorkerPoolConfig
	handlers map[models.JobType]JobHandler
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorkerPool creates a worker pool. Handlers are registered before
// Start; registration after Start races the workers.
func NewWorkerPool(queueMgr *Manager, config WorkerPoolConfig, logger arbor.ILogger) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = 5
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queueMgr: queueMgr,
		config:   config,
		handlers: make(map[models.JobType]JobHandler),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler registers a job type handler
func (wp *WorkerPool) RegisterHandler(jobType models.JobType, handler JobHandler) {
	wp.handlers[jobType] = handler
	wp.logger.Debug().
		Str("job_type", string(jobType)).
		Msg("Job handler registered")
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("workers", wp.config.Workers).
		Dur("poll_interval", wp.config.PollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	return nil
}

// Stop signals workers to stop and waits for in-flight jobs to finish
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
	return nil
}

// worker is the poll loop
func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger starts to spread claim contention across the interval
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Workers)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processOne(workerID); err != nil && !errors.Is(err, ErrNoJob) {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing job")
			}
		}
	}
}

// processOne claims and executes a single job, guaranteeing a terminal
// result and active-set cleanup on every exit path.
func (wp *WorkerPool) processOne(workerID int) error {
	job, err := wp.queueMgr.Pop(wp.ctx)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	result := &models.JobResult{
		JobID:     job.JobID,
		StartedAt: &startedAt,
	}

	defer func() {
		completedAt := time.Now()
		result.CompletedAt = &completedAt
		result.ExecutionTime = completedAt.Sub(startedAt).Seconds()
		if err := wp.queueMgr.Finish(wp.ctx, result); err != nil {
			wp.logger.Error().
				Err(err).
				Str("job_id", job.JobID).
				Msg("Failed to record job result")
		}
	}()

	handler, exists := wp.handlers[job.JobType]
	if !exists {
		result.Status = models.JobStatusFailed
		result.Error = fmt.Sprintf("no handler registered for job type: %s", job.JobType)
		wp.logger.Error().
			Str("job_type", string(job.JobType)).
			Str("job_id", job.JobID).
			Msg("No handler registered for job type")
		return nil
	}

	// A cancel issued while the job sat queued still wins
	if wp.queueMgr.IsCancelled(wp.ctx, job.JobID) {
		result.Status = models.JobStatusCancelled
		result.Error = "cancelled before execution"
		wp.logger.Info().
			Str("job_id", job.JobID).
			Int("worker_id", workerID).
			Msg("Job cancelled before execution")
		return nil
	}

	wp.logger.Info().
		Str("job_id", job.JobID).
		Str("job_type", string(job.JobType)).
		Str("user_id", job.UserID).
		Int("worker_id", workerID).
		Msg("Processing job")

	ctx, cancel := context.WithTimeout(wp.ctx, wp.timeoutFor(job))
	defer cancel()

	output, handlerErr := wp.runHandler(ctx, handler, job)
	duration := time.Since(startedAt)

	switch {
	case handlerErr == nil:
		result.Status = models.JobStatusCompleted
		result.Result = output
		wp.logger.Info().
			Str("job_id", job.JobID).
			Str("job_type", string(job.JobType)).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job completed successfully")

	case errors.Is(handlerErr, context.DeadlineExceeded):
		result.Status = models.JobStatusTimeout
		result.Error = fmt.Sprintf("job exceeded timeout of %s", wp.timeoutFor(job))
		wp.logger.Error().
			Str("job_id", job.JobID).
			Str("job_type", string(job.JobType)).
			Dur("duration", duration).
			Msg("Job timed out")

	case errors.Is(handlerErr, context.Canceled):
		result.Status = models.JobStatusCancelled
		result.Error = "cancelled during execution"
		wp.logger.Info().
			Str("job_id", job.JobID).
			Dur("duration", duration).
			Msg("Job cancelled during execution")

	default:
		result.Status = models.JobStatusFailed
		result.Error = handlerErr.Error()
		wp.logger.Error().
			Err(handlerErr).
			Str("job_id", job.JobID).
			Str("job_type", string(job.JobType)).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")
	}

	return nil
}

// runHandler executes the handler, converting a panic into an error so
// the worker survives.
func (wp *WorkerPool) runHandler(ctx context.Context, handler JobHandler, job *models.JobRequest) (output interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
			wp.logger.Error().
				Str("job_id", job.JobID).
				Str("stack", string(debug.Stack())).
				Msg("Job handler panicked")
		}
	}()
	return handler(ctx, job)
}

// timeoutFor resolves the per-type timeout, honoring an explicit
// per-job override.
func (wp *WorkerPool) timeoutFor(job *models.JobRequest) time.Duration {
	if job.TimeoutSeconds > 0 {
		return time.Duration(job.TimeoutSeconds) * time.Second
	}
	switch job.JobType {
	case models.JobTypeResumeTailoring:
		return wp.config.TailoringTimeout
	case models.JobTypeJobApplication:
		return wp.config.ApplicationTimeout
	case models.JobTypeJobSearch:
		return wp.config.SearchTimeout
	default:
		return wp.config.TailoringTimeout
	}
}
