package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RunnerConfig holds configuration for the job runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process jobs.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// QueueSize determines the buffer size of the in-memory queue
	QueueSize int

	// StuckJobAge defines how long a job can stay processing before the
	// monitor resets and requeues it
	StuckJobAge time.Duration

	// MonitorInterval defines how often to check for stuck jobs.
	// If zero, defaults to 5 minutes.
	MonitorInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:     2,
		QueueSize:       100,
		StuckJobAge:     30 * time.Minute,
		MonitorInterval: 5 * time.Minute,
	}
}

// Runner saves submitted jobs, queues them and executes them on a fixed pool
// of workers.
type Runner struct {
	store    Store
	registry *Registry
	queue    *Queue
	config   RunnerConfig
	logger   *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	errHandler func(job Job, err error)
}

// NewRunner creates a Runner. Recovered records are rebuilt through registry.
func NewRunner(store Store, registry *Registry, config RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "job_runner"))

	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			slog.Int("specified_count", config.WorkerCount),
			slog.Int("default_count", 1))
		config.WorkerCount = 1
	}
	if config.MonitorInterval <= 0 {
		config.MonitorInterval = 5 * time.Minute
	}
	if registry == nil {
		registry = NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:    store,
		registry: registry,
		queue:    NewQueue(config.QueueSize, logger),
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		errHandler: func(job Job, err error) {
			logger.Error("job execution failed",
				slog.String("job_id", job.ID().String()),
				slog.String("job_type", job.Type()),
				slog.String("error", err.Error()))
		},
	}
}

// SetErrorHandler replaces the handler called when a job fails.
func (r *Runner) SetErrorHandler(handler func(job Job, err error)) {
	r.errHandler = handler
}

// Submit persists the job and queues it for execution.
func (r *Runner) Submit(ctx context.Context, job Job) error {
	if err := r.store.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if err := r.queue.Enqueue(job); err != nil {
		// The record stays pending and is picked up by the next Recover.
		return fmt.Errorf("failed to queue job: %w", err)
	}
	return nil
}

// Start recovers unfinished jobs from previous runs, then starts the workers
// and the stuck-job monitor.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckJobMonitor()

	return nil
}

// Stop signals the workers to exit, waits for in-flight jobs and closes the
// queue. Jobs still queued remain pending in the store.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.wg.Wait()
		r.queue.Close()
	})
}

// Recover requeues pending jobs and resets processing jobs, which were
// interrupted by a previous shutdown, back to pending.
func (r *Runner) Recover(ctx context.Context) error {
	pending, err := r.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}
	processing, err := r.store.ListProcessing(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing jobs: %w", err)
	}

	r.logger.Info("recovering unfinished jobs",
		slog.Int("pending_count", len(pending)),
		slog.Int("processing_count", len(processing)))

	for _, rec := range pending {
		r.requeue(ctx, rec)
	}
	for _, rec := range processing {
		if err := r.store.UpdateStatus(ctx, rec.ID, StatusPending, "reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing job status",
				slog.String("job_id", rec.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		r.requeue(ctx, rec)
	}
	return nil
}

// requeue rebuilds a persisted job and puts it back on the queue. Records of
// unknown type are marked failed.
func (r *Runner) requeue(ctx context.Context, rec Record) {
	log := r.logger.With(
		slog.String("job_id", rec.ID.String()),
		slog.String("job_type", rec.Type))

	job, err := r.registry.Rehydrate(rec)
	if err != nil {
		log.Error("failed to rebuild job", slog.String("error", err.Error()))
		if updateErr := r.store.UpdateStatus(ctx, rec.ID, StatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to mark job failed", slog.String("error", updateErr.Error()))
		}
		return
	}
	if err := r.queue.Enqueue(job); err != nil {
		log.Error("failed to requeue job", slog.String("error", err.Error()))
	}
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", slog.Int("worker_id", id))

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", slog.Int("worker_id", id))
			return

		case job, ok := <-r.queue.Jobs():
			if !ok {
				r.logger.Debug("job queue closed, stopping worker", slog.Int("worker_id", id))
				return
			}
			r.processJob(job, id)
		}
	}
}

func (r *Runner) processJob(job Job, workerID int) {
	ctx := context.Background()
	log := r.logger.With(
		slog.String("job_id", job.ID().String()),
		slog.String("job_type", job.Type()),
		slog.Int("worker_id", workerID))

	if err := r.store.UpdateStatus(ctx, job.ID(), StatusProcessing, ""); err != nil {
		log.Error("failed to update job status to processing", slog.String("error", err.Error()))
		return
	}

	log.Info("processing job")

	if err := r.execute(ctx, job); err != nil {
		if updateErr := r.store.UpdateStatus(ctx, job.ID(), StatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update job status to failed", slog.String("error", updateErr.Error()))
		}
		r.errHandler(job, err)
		return
	}

	log.Info("job completed successfully")
	if err := r.store.UpdateStatus(ctx, job.ID(), StatusCompleted, ""); err != nil {
		log.Error("failed to update job status to completed", slog.String("error", err.Error()))
	}
}

// execute runs the job, turning a panic into an error.
func (r *Runner) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return job.Execute(ctx)
}

// stuckJobMonitor periodically resets jobs that have been processing for too
// long and requeues them.
func (r *Runner) stuckJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			r.resetStuckJobs(r.ctx)
		}
	}
}

func (r *Runner) resetStuckJobs(ctx context.Context) {
	stuck, err := r.store.ListProcessing(ctx, r.config.StuckJobAge)
	if err != nil {
		r.logger.Error("failed to check for stuck jobs", slog.String("error", err.Error()))
		return
	}
	if len(stuck) == 0 {
		return
	}

	r.logger.Info("found stuck jobs", slog.Int("count", len(stuck)))
	for _, rec := range stuck {
		if err := r.store.UpdateStatus(ctx, rec.ID, StatusPending,
			"reset after being stuck in processing state"); err != nil {
			r.logger.Error("failed to reset stuck job status",
				slog.String("job_id", rec.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		r.requeue(ctx, rec)
	}
}
