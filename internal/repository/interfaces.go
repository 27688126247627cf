// Package repository contains data access interfaces and their SQLite
// implementations.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shelfwise/shelfwise-api/internal/models"
)

// JobRepository handles scrape job persistence and queue operations.
type JobRepository interface {
	Create(ctx context.Context, job *models.ScrapeJob) error
	GetByID(ctx context.Context, id string) (*models.ScrapeJob, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.ScrapeJob, error)

	// ClaimPending atomically claims the oldest runnable pending job and
	// transitions it to running. Returns (nil, nil) when the queue is empty.
	ClaimPending(ctx context.Context) (*models.ScrapeJob, error)

	// HasActive reports whether a pending or running job already exists for
	// the same URL and target type. Used to dedup child-job enqueues.
	HasActive(ctx context.Context, targetURL string, targetType models.TargetType) (bool, error)

	MarkCompleted(ctx context.Context, id string, itemsScraped int) error
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// ScheduleRetry returns a running job to pending with an incremented
	// retry count and a run_after gate, appending errMsg to the error log.
	ScheduleRetry(ctx context.Context, id string, errMsg string, runAfter time.Time) error

	// RequestCancel cancels a pending job outright, or flags a running job
	// for cooperative cancellation. Returns the resulting status.
	RequestCancel(ctx context.Context, id string) (models.JobStatus, error)
	MarkCancelled(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)

	// RequeueInterrupted sweeps jobs left in running state by a crash:
	// jobs with attempts remaining go back to pending, the rest fail.
	RequeueInterrupted(ctx context.Context, maxAttempts int) (requeued, failed int64, err error)

	Stats(ctx context.Context) (*models.JobStats, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CatalogRepository handles the scraped entity hierarchy. All writes are
// upserts keyed on the entity's natural key so re-running a job against the
// same pages never duplicates rows.
type CatalogRepository interface {
	UpsertNavigation(ctx context.Context, nav *models.Navigation) (int64, error)
	UpsertCategory(ctx context.Context, cat *models.Category) (int64, error)
	UpsertProduct(ctx context.Context, p *models.Product) (int64, error)
	UpsertProductDetail(ctx context.Context, d *models.ProductDetail) error
	UpsertReview(ctx context.Context, rev *models.Review) (inserted bool, err error)

	GetNavigationBySlug(ctx context.Context, slug string) (*models.Navigation, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	GetProductBySourceID(ctx context.Context, sourceID string) (*models.Product, error)
	GetProductDetail(ctx context.Context, productID int64) (*models.ProductDetail, error)

	ListNavigations(ctx context.Context) ([]*models.Navigation, error)
	ListCategories(ctx context.Context, navigationID int64) ([]*models.Category, error)
	ListProducts(ctx context.Context, categoryID int64, limit, offset int) ([]*models.Product, error)
	ListReviews(ctx context.Context, productID int64, limit, offset int) ([]*models.Review, error)

	// RefreshCategoryCount recomputes product_count for a category from the
	// product table. Counts are always derived, never incremented in place.
	RefreshCategoryCount(ctx context.Context, categoryID int64) error

	// RefreshDetailAggregates recomputes reviews_count and ratings_avg for a
	// product's detail row from the review table.
	RefreshDetailAggregates(ctx context.Context, productID int64) error

	TouchNavigationScraped(ctx context.Context, id int64, at time.Time) error
	TouchCategoryScraped(ctx context.Context, id int64, at time.Time) error
}

// Repositories aggregates all repositories for dependency injection.
type Repositories struct {
	Jobs    JobRepository
	Catalog CatalogRepository
}

// NewRepositories creates all SQLite repositories sharing one connection.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Jobs:    NewSQLiteJobRepository(db),
		Catalog: NewSQLiteCatalogRepository(db),
	}
}
