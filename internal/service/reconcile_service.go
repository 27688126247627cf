package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/repository"
	"github.com/shelfwise/shelfwise-api/internal/scraper"
)

// ReconcileService applies fetched records to the catalog. Every write is an
// upsert keyed on the entity's natural key, so applying the same result twice
// converges on the same rows.
type ReconcileService struct {
	catalog repository.CatalogRepository
	jobs    repository.JobRepository
	logger  *slog.Logger
}

// NewReconcileService creates a new reconciler.
func NewReconcileService(catalog repository.CatalogRepository, jobs repository.JobRepository, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		catalog: catalog,
		jobs:    jobs,
		logger:  logger.With("component", "reconciler"),
	}
}

// Apply merges result into the catalog for job and enqueues any child jobs.
// Returns the number of records applied.
func (s *ReconcileService) Apply(ctx context.Context, job *models.ScrapeJob, result *scraper.Result) (int, error) {
	switch job.TargetType {
	case models.TargetNavigation:
		return s.applyNavigations(ctx, job, result)
	case models.TargetCategory:
		return s.applyCategories(ctx, job, result)
	case models.TargetProductList:
		return s.applyProductList(ctx, job, result)
	case models.TargetProductDetail:
		return s.applyProductDetail(ctx, job, result)
	default:
		return 0, NewReconcileError(MalformedPayload, fmt.Errorf("unknown target type %q", job.TargetType))
	}
}

func (s *ReconcileService) applyNavigations(ctx context.Context, job *models.ScrapeJob, result *scraper.Result) (int, error) {
	now := time.Now()
	for _, rec := range result.Navigations {
		if rec.Slug == "" {
			return 0, NewReconcileError(MalformedPayload, fmt.Errorf("navigation entry %q has no slug", rec.Title))
		}
		nav := &models.Navigation{Slug: rec.Slug, Title: rec.Title, URL: rec.URL, Position: rec.Position}
		id, err := s.catalog.UpsertNavigation(ctx, nav)
		if err != nil {
			return 0, classifyStoreError(err)
		}
		if err := s.catalog.TouchNavigationScraped(ctx, id, now); err != nil {
			return 0, classifyStoreError(err)
		}
		if rec.URL != "" {
			if err := s.enqueueChild(ctx, rec.URL, models.TargetCategory, map[string]any{
				"navigation_id":   id,
				"navigation_slug": rec.Slug,
			}); err != nil {
				return 0, err
			}
		}
	}
	return len(result.Navigations), nil
}

func (s *ReconcileService) applyCategories(ctx context.Context, job *models.ScrapeJob, result *scraper.Result) (int, error) {
	navID, ok := metaInt64(job.Metadata, "navigation_id")
	if !ok {
		return 0, NewReconcileError(MalformedPayload, fmt.Errorf("category job missing navigation_id metadata"))
	}
	// Validate the parent at point of use: the navigation could have been
	// removed between enqueue and execution.
	if slug, _ := metaString(job.Metadata, "navigation_slug"); slug != "" {
		nav, err := s.catalog.GetNavigationBySlug(ctx, slug)
		if err != nil {
			return 0, classifyStoreError(err)
		}
		if nav == nil || nav.ID != navID {
			return 0, NewReconcileError(ReferencedResourceMissing, fmt.Errorf("navigation %q no longer exists", slug))
		}
	}

	now := time.Now()
	for _, rec := range result.Categories {
		if rec.Slug == "" {
			return 0, NewReconcileError(MalformedPayload, fmt.Errorf("category entry %q has no slug", rec.Title))
		}

		cat := &models.Category{Slug: rec.Slug, NavigationID: navID, Title: rec.Title, URL: rec.URL}
		if rec.ParentSlug != "" {
			parent, err := s.catalog.GetCategoryBySlug(ctx, rec.ParentSlug)
			if err != nil {
				return 0, classifyStoreError(err)
			}
			if parent == nil {
				return 0, NewReconcileError(ReferencedResourceMissing, fmt.Errorf("parent category %q not found", rec.ParentSlug))
			}
			cat.ParentID = &parent.ID
		}

		id, err := s.catalog.UpsertCategory(ctx, cat)
		if err != nil {
			return 0, classifyStoreError(err)
		}
		if err := s.catalog.TouchCategoryScraped(ctx, id, now); err != nil {
			return 0, classifyStoreError(err)
		}
		if rec.URL != "" {
			if err := s.enqueueChild(ctx, rec.URL, models.TargetProductList, map[string]any{
				"category_id":   id,
				"category_slug": rec.Slug,
			}); err != nil {
				return 0, err
			}
		}
	}
	return len(result.Categories), nil
}

func (s *ReconcileService) applyProductList(ctx context.Context, job *models.ScrapeJob, result *scraper.Result) (int, error) {
	var categoryID *int64
	if id, ok := metaInt64(job.Metadata, "category_id"); ok {
		if slug, _ := metaString(job.Metadata, "category_slug"); slug != "" {
			cat, err := s.catalog.GetCategoryBySlug(ctx, slug)
			if err != nil {
				return 0, classifyStoreError(err)
			}
			if cat == nil || cat.ID != id {
				return 0, NewReconcileError(ReferencedResourceMissing, fmt.Errorf("category %q no longer exists", slug))
			}
		}
		categoryID = &id
	}

	for _, rec := range result.Products {
		if rec.SourceID == "" {
			return 0, NewReconcileError(MalformedPayload, fmt.Errorf("product %q has no source id", rec.Title))
		}
		p := &models.Product{
			SourceID:     rec.SourceID,
			CategoryID:   categoryID,
			Title:        rec.Title,
			Price:        rec.Price,
			Currency:     rec.Currency,
			Availability: rec.Availability,
			Rating:       rec.Rating,
			ImageURL:     rec.ImageURL,
			ProductURL:   rec.ProductURL,
		}
		id, err := s.catalog.UpsertProduct(ctx, p)
		if err != nil {
			return 0, classifyStoreError(err)
		}
		if rec.ProductURL != "" {
			if err := s.enqueueChild(ctx, rec.ProductURL, models.TargetProductDetail, map[string]any{
				"product_id": id,
				"source_id":  rec.SourceID,
			}); err != nil {
				return 0, err
			}
		}
	}

	// Recompute the derived count as a fresh aggregate so crash-and-retry
	// can never double-count.
	if categoryID != nil {
		if err := s.catalog.RefreshCategoryCount(ctx, *categoryID); err != nil {
			return 0, classifyStoreError(err)
		}
	}

	if result.NextPageURL != "" {
		if err := s.enqueueNextPage(ctx, job, result.NextPageURL); err != nil {
			return 0, err
		}
	}

	return len(result.Products), nil
}

func (s *ReconcileService) applyProductDetail(ctx context.Context, job *models.ScrapeJob, result *scraper.Result) (int, error) {
	detail := result.Detail
	if detail == nil {
		return 0, NewReconcileError(MalformedPayload, fmt.Errorf("product_detail result carries no detail record"))
	}

	sourceID := detail.Product.SourceID
	if sid, _ := metaString(job.Metadata, "source_id"); sid != "" {
		sourceID = sid
	}
	product, err := s.catalog.GetProductBySourceID(ctx, sourceID)
	if err != nil {
		return 0, classifyStoreError(err)
	}
	if product == nil {
		// A detail row must never exist without its product.
		return 0, NewReconcileError(ReferencedResourceMissing, fmt.Errorf("product %q not found for detail", sourceID))
	}

	// Merge the fresher listing fields the detail page carries.
	product.Title = detail.Product.Title
	product.Price = detail.Product.Price
	if detail.Product.Currency != "" {
		product.Currency = detail.Product.Currency
	}
	if detail.Product.Availability != "" {
		product.Availability = detail.Product.Availability
	}
	product.Rating = detail.Product.Rating
	if _, err := s.catalog.UpsertProduct(ctx, product); err != nil {
		return 0, classifyStoreError(err)
	}

	row := &models.ProductDetail{
		ProductID:   product.ID,
		Description: detail.Description,
		Publisher:   detail.Publisher,
		ISBN:        detail.ISBN,
		PageCount:   detail.PageCount,
		SpecsJSON:   marshalJSON(detail.Specs),
		GenresJSON:  marshalJSON(detail.Genres),
	}
	if err := s.catalog.UpsertProductDetail(ctx, row); err != nil {
		return 0, classifyStoreError(err)
	}

	applied := 1
	for _, rec := range detail.Reviews {
		rev := &models.Review{
			ProductID:  product.ID,
			Author:     rec.Author,
			Rating:     rec.Rating,
			ReviewDate: rec.Date,
			Text:       rec.Text,
			TextHash:   hashReviewText(rec.Text),
		}
		inserted, err := s.catalog.UpsertReview(ctx, rev)
		if err != nil {
			return 0, classifyStoreError(err)
		}
		if inserted {
			applied++
		}
	}

	// Derived aggregates, recomputed from scratch.
	if err := s.catalog.RefreshDetailAggregates(ctx, product.ID); err != nil {
		return 0, classifyStoreError(err)
	}

	return applied, nil
}

// enqueueChild creates a pending child job unless an identical pending or
// running job already exists.
func (s *ReconcileService) enqueueChild(ctx context.Context, targetURL string, targetType models.TargetType, metadata map[string]any) error {
	active, err := s.jobs.HasActive(ctx, targetURL, targetType)
	if err != nil {
		return classifyStoreError(err)
	}
	if active {
		s.logger.Debug("skipping duplicate child job", "url", targetURL, "target_type", targetType)
		return nil
	}

	now := time.Now()
	child := &models.ScrapeJob{
		ID:         ulid.Make().String(),
		TargetURL:  targetURL,
		TargetType: targetType,
		Status:     models.JobStatusPending,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobs.Create(ctx, child); err != nil {
		return classifyStoreError(err)
	}
	s.logger.Debug("enqueued child job", "job_id", child.ID, "url", targetURL, "target_type", targetType)
	return nil
}

// enqueueNextPage follows listing pagination, carrying the parent's metadata
// forward and honoring the optional max_pages budget.
func (s *ReconcileService) enqueueNextPage(ctx context.Context, job *models.ScrapeJob, nextURL string) error {
	page := int64(1)
	if p, ok := metaInt64(job.Metadata, "page"); ok {
		page = p
	}
	if maxPages, ok := metaInt64(job.Metadata, "max_pages"); ok && page >= maxPages {
		s.logger.Debug("page budget reached, not following pagination", "job_id", job.ID, "page", page)
		return nil
	}

	metadata := make(map[string]any, len(job.Metadata)+1)
	for k, v := range job.Metadata {
		metadata[k] = v
	}
	metadata["page"] = page + 1

	return s.enqueueChild(ctx, nextURL, models.TargetProductList, metadata)
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// hashReviewText returns the sha256 hex digest of a review body. It is part
// of the composite dedup key because the source exposes no stable review id.
func hashReviewText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Metadata travels through JSON, so numbers come back as float64.
func metaInt64(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func metaString(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}
