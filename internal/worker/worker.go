// Package worker runs the background scrape job pool.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/repository"
	"github.com/shelfwise/shelfwise-api/internal/scraper"
	"github.com/shelfwise/shelfwise-api/internal/service"
)

// RetryPolicy decides whether and when a failed job runs again.
type RetryPolicy struct {
	// MaxAttempts is the retry budget: how many times a job goes back to
	// pending after a transient failure before it fails for good. A job
	// therefore runs up to MaxAttempts+1 times.
	MaxAttempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
}

// DefaultRetryPolicy matches the pipeline defaults: three retries with
// exponential backoff starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Delay returns the backoff before the retry that follows retryCount
// completed attempts: BaseDelay doubled per prior retry.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
	}
	return d
}

// Exhausted reports whether a job that has already retried retryCount times
// is out of retries.
func (p RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxAttempts
}

// Worker polls the job queue and drives claimed jobs through fetch and
// reconcile. Each job runs on one goroutine; concurrency is the number of
// pollers.
type Worker struct {
	jobRepo      repository.JobRepository
	fetcher      scraper.Fetcher
	reconciler   *service.ReconcileService
	storageSvc   *service.StorageService
	pollInterval time.Duration
	concurrency  int
	retry        RetryPolicy
	stop         chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
	Retry        RetryPolicy
}

// New creates a new worker pool.
func New(
	jobRepo repository.JobRepository,
	fetcher scraper.Fetcher,
	reconciler *service.ReconcileService,
	storageSvc *service.StorageService,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 3
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		jobRepo:      jobRepo,
		fetcher:      fetcher,
		reconciler:   reconciler,
		storageSvc:   storageSvc,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		retry:        cfg.Retry,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker"),
	}
}

// Start begins processing jobs.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency, "poll_interval", w.pollInterval.String())

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
}

// Stop gracefully stops the pool, waiting for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

// StopWithTimeout stops the pool but gives up waiting after grace. It
// returns false when workers were still busy; their jobs will be swept by
// RequeueInterrupted on the next start.
func (w *Worker) StopWithTimeout(grace time.Duration) bool {
	w.logger.Info("stopping", "grace_period", grace.String())
	close(w.stop)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("stopped")
		return true
	case <-time.After(grace):
		w.logger.Warn("workers still busy after grace period")
		return false
	}
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before going back to sleep.
			for w.processNextJob(ctx, workerID) {
				select {
				case <-w.stop:
					return
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}
}

// processNextJob claims and runs one job. Returns true if a job was claimed.
func (w *Worker) processNextJob(ctx context.Context, workerID int) bool {
	job, err := w.jobRepo.ClaimPending(ctx)
	if err != nil {
		w.logger.Error("failed to claim job", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	w.logger.Info("processing job",
		"worker_id", workerID,
		"job_id", job.ID,
		"target_type", job.TargetType,
		"url", job.TargetURL,
		"attempt", job.RetryCount+1,
	)
	w.runJob(ctx, job)
	return true
}

func (w *Worker) runJob(ctx context.Context, job *models.ScrapeJob) {
	// A cancel can land between enqueue and claim.
	if w.checkCancelled(ctx, job) {
		return
	}

	result, err := w.fetcher.Fetch(ctx, job.TargetURL, job.TargetType)
	if err != nil {
		w.handleFetchError(ctx, job, err)
		return
	}

	// Cooperative cancel point between fetch and reconcile: nothing has
	// been written yet, so stopping here loses no work.
	if w.checkCancelled(ctx, job) {
		return
	}

	applied, err := w.reconciler.Apply(ctx, job, result)
	if err != nil {
		w.handleReconcileError(ctx, job, err)
		return
	}

	if err := w.jobRepo.MarkCompleted(ctx, job.ID, applied); err != nil {
		w.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
		return
	}
	w.logger.Info("completed job", "job_id", job.ID, "items_scraped", applied)

	if w.storageSvc != nil && w.storageSvc.IsEnabled() {
		snapshot := service.SnapshotFromJob(job, result, applied)
		if err := w.storageSvc.StoreSnapshot(ctx, snapshot); err != nil {
			// Archival is best effort; the job stays completed.
			w.logger.Error("failed to store job snapshot", "job_id", job.ID, "error", err)
		}
	}
}

// checkCancelled honors a pending cancel flag, transitioning the job to
// cancelled. Returns true when the job should not proceed.
func (w *Worker) checkCancelled(ctx context.Context, job *models.ScrapeJob) bool {
	requested, err := w.jobRepo.IsCancelRequested(ctx, job.ID)
	if err != nil {
		w.logger.Error("failed to check cancel flag", "job_id", job.ID, "error", err)
		return false
	}
	if !requested {
		return false
	}
	if err := w.jobRepo.MarkCancelled(ctx, job.ID); err != nil {
		w.logger.Error("failed to mark job cancelled", "job_id", job.ID, "error", err)
	} else {
		w.logger.Info("job cancelled", "job_id", job.ID)
	}
	return true
}

func (w *Worker) handleFetchError(ctx context.Context, job *models.ScrapeJob, err error) {
	ferr, ok := scraper.AsFetchError(err)
	if !ok {
		w.failJob(ctx, job, err.Error())
		return
	}

	// A vanished page is a fact about the source, not a failure: complete
	// with zero items so the job never burns retries on it.
	if ferr.Kind == scraper.FetchNotFound {
		if err := w.jobRepo.MarkCompleted(ctx, job.ID, 0); err != nil {
			w.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
			return
		}
		w.logger.Info("target gone, completed with no items", "job_id", job.ID, "url", job.TargetURL)
		return
	}

	if ferr.Retryable() && !w.retry.Exhausted(job.RetryCount) {
		w.scheduleRetry(ctx, job, ferr.Error())
		return
	}
	w.failJob(ctx, job, ferr.Error())
}

func (w *Worker) handleReconcileError(ctx context.Context, job *models.ScrapeJob, err error) {
	rerr, ok := service.AsReconcileError(err)
	if ok && rerr.Retryable() && !w.retry.Exhausted(job.RetryCount) {
		w.scheduleRetry(ctx, job, rerr.Error())
		return
	}
	w.failJob(ctx, job, err.Error())
}

func (w *Worker) scheduleRetry(ctx context.Context, job *models.ScrapeJob, errMsg string) {
	delay := w.retry.Delay(job.RetryCount)
	runAfter := time.Now().Add(delay)
	if err := w.jobRepo.ScheduleRetry(ctx, job.ID, errMsg, runAfter); err != nil {
		w.logger.Error("failed to schedule retry", "job_id", job.ID, "error", err)
		return
	}
	w.logger.Warn("retry scheduled",
		"job_id", job.ID,
		"attempt", job.RetryCount+1,
		"max_attempts", w.retry.MaxAttempts,
		"delay", delay.String(),
		"error", errMsg,
	)
}

func (w *Worker) failJob(ctx context.Context, job *models.ScrapeJob, errMsg string) {
	if err := w.jobRepo.MarkFailed(ctx, job.ID, errMsg); err != nil {
		w.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}
	w.logger.Error("job failed", "job_id", job.ID, "error", errMsg)
}
