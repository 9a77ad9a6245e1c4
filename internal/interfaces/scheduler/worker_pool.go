package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	jobTracer          = otel.Tracer("ledgersync/scheduler")
	jobMeter           = otel.Meter("ledgersync/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped due to full queue"))
)

// DefaultJobTimeout bounds a single job. Transaction imports pace their
// provider calls, so a large connection can take several minutes.
const DefaultJobTimeout = 10 * time.Minute

var (
	ErrQueueFull  = errors.New("job queue full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers    int
	JobDelay   time.Duration // pause after each job, per worker
	QueueSize  int
	JobTimeout time.Duration
}

// WorkerPool runs jobs on a fixed number of goroutines fed by a bounded queue.
type WorkerPool struct {
	workerCount int
	jobDelay    time.Duration
	jobTimeout  time.Duration
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool. Call Start to launch the workers.
func NewWorkerPool(cfg PoolConfig, logger *zap.Logger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workerCount: cfg.Workers,
		jobDelay:    cfg.JobDelay,
		jobTimeout:  cfg.JobTimeout,
		jobs:        make(chan Job, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("worker_pool"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.logger.Info("Starting worker pool", zap.Int("workers", wp.workerCount), zap.Duration("job_delay", wp.jobDelay))

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}

			wp.processJob(id, job)

			if wp.jobDelay > 0 {
				select {
				case <-time.After(wp.jobDelay):
				case <-wp.ctx.Done():
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job Job) {
	logger := wp.logger.With(zap.Int("worker", workerID), zap.String("job", job.Description()), zap.String("key", job.Key()))

	ctx, cancel := context.WithTimeout(wp.ctx, wp.jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.String("job.key", job.Key()),
		),
	)
	defer span.End()

	start := time.Now()

	if err := job.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		jobDuration.Record(ctx, time.Since(start).Seconds())
		logger.Error("Job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	jobDuration.Record(ctx, time.Since(start).Seconds())
	logger.Debug("Job completed", zap.Duration("elapsed", time.Since(start)))
}

// Submit enqueues a job without blocking. A full queue drops the job and
// returns ErrQueueFull.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1)
		wp.logger.Warn("Job queue full, dropping job", zap.String("key", job.Key()))
		return ErrQueueFull
	}
}

// SubmitBatch enqueues jobs and returns how many were accepted.
func (wp *WorkerPool) SubmitBatch(jobs []Job) int {
	submitted := 0
	for _, job := range jobs {
		if err := wp.Submit(job); err != nil {
			continue
		}
		submitted++
	}
	wp.logger.Info("Submitted jobs", zap.Int("submitted", submitted), zap.Int("total", len(jobs)))
	return submitted
}

func (wp *WorkerPool) close() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return false
	}
	wp.closed = true
	close(wp.jobs)
	return true
}

// Shutdown stops accepting jobs, drains the queue and waits for the workers.
func (wp *WorkerPool) Shutdown() {
	if !wp.close() {
		return
	}
	wp.wg.Wait()
	wp.cancel()
	wp.logger.Info("Worker pool stopped")
}

// ShutdownWithTimeout is Shutdown with a deadline. Jobs still running when it
// expires have their context cancelled.
func (wp *WorkerPool) ShutdownWithTimeout(timeout time.Duration) {
	if !wp.close() {
		return
	}

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info("Worker pool stopped")
	case <-time.After(timeout):
		wp.logger.Warn("Worker pool shutdown timed out, cancelling running jobs", zap.Duration("timeout", timeout))
	}
	wp.cancel()
}
