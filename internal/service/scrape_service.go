package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/repository"
)

// ErrJobNotFound is returned when the referenced job does not exist.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTarget is returned for an unusable target URL or type.
var ErrInvalidTarget = errors.New("invalid scrape target")

// ScrapeService creates and manages scrape jobs. Triggering is synchronous
// only up to validation; everything after the job row exists is observable
// solely through job polling.
type ScrapeService struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

// NewScrapeService creates a new scrape orchestrator.
func NewScrapeService(jobs repository.JobRepository, logger *slog.Logger) *ScrapeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScrapeService{jobs: jobs, logger: logger.With("component", "scrape")}
}

// Trigger validates the target and creates a pending job for it.
func (s *ScrapeService) Trigger(ctx context.Context, targetURL string, targetType models.TargetType, metadata map[string]any) (*models.ScrapeJob, error) {
	if err := validateTargetURL(targetURL); err != nil {
		return nil, err
	}
	if !targetType.Valid() {
		return nil, fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, targetType)
	}

	now := time.Now()
	job := &models.ScrapeJob{
		ID:         ulid.Make().String(),
		TargetURL:  targetURL,
		TargetType: targetType,
		Status:     models.JobStatusPending,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create scrape job: %w", err)
	}

	s.logger.Info("scrape job created", "job_id", job.ID, "url", targetURL, "target_type", targetType)
	return job, nil
}

// TriggerNavigationScrape enqueues a crawl of the site's navigation page.
// This is the usual entry point: the reconciler fans out category, listing
// and detail jobs from there.
func (s *ScrapeService) TriggerNavigationScrape(ctx context.Context, baseURL string) (*models.ScrapeJob, error) {
	return s.Trigger(ctx, baseURL, models.TargetNavigation, nil)
}

// TriggerCategoryScrape enqueues a category page crawl under a navigation.
func (s *ScrapeService) TriggerCategoryScrape(ctx context.Context, targetURL string, navigationID int64, navigationSlug string) (*models.ScrapeJob, error) {
	return s.Trigger(ctx, targetURL, models.TargetCategory, map[string]any{
		"navigation_id":   navigationID,
		"navigation_slug": navigationSlug,
	})
}

// TriggerProductListScrape enqueues a listing crawl, optionally bound to a
// category and bounded by maxPages of pagination.
func (s *ScrapeService) TriggerProductListScrape(ctx context.Context, targetURL string, categoryID *int64, categorySlug string, maxPages int) (*models.ScrapeJob, error) {
	metadata := map[string]any{}
	if categoryID != nil {
		metadata["category_id"] = *categoryID
		metadata["category_slug"] = categorySlug
	}
	if maxPages > 0 {
		metadata["max_pages"] = maxPages
		metadata["page"] = 1
	}
	return s.Trigger(ctx, targetURL, models.TargetProductList, metadata)
}

// TriggerProductDetailScrape enqueues a single product detail crawl.
func (s *ScrapeService) TriggerProductDetailScrape(ctx context.Context, targetURL string, sourceID string) (*models.ScrapeJob, error) {
	metadata := map[string]any{}
	if sourceID != "" {
		metadata["source_id"] = sourceID
	}
	return s.Trigger(ctx, targetURL, models.TargetProductDetail, metadata)
}

// GetJob returns a job by id.
func (s *ScrapeService) GetJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns jobs, optionally filtered by status.
func (s *ScrapeService) ListJobs(ctx context.Context, status string, limit, offset int) ([]*models.ScrapeJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.jobs.List(ctx, status, limit, offset)
}

// CancelJob cancels a pending job immediately or flags a running one for
// cooperative cancellation. Terminal jobs are returned unchanged.
func (s *ScrapeService) CancelJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	status, err := s.jobs.RequestCancel(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	s.logger.Info("cancel requested", "job_id", id, "status", status)
	return s.GetJob(ctx, id)
}

// GetStats returns the live job aggregate.
func (s *ScrapeService) GetStats(ctx context.Context) (*models.JobStats, error) {
	return s.jobs.Stats(ctx)
}

func validateTargetURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	return nil
}
