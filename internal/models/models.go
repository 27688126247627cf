// Package models defines the domain models for the application.
// Catalog rows (navigation, category, product, product detail, review) are
// keyed by integer surrogate ids with natural-key UNIQUE constraints; scrape
// jobs use ULID string ids.
package models

import (
	"time"
)

// JobStatus represents the status of a scrape job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a job in this status can never transition again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// TargetType identifies which kind of page a scrape job fetches.
type TargetType string

const (
	TargetNavigation    TargetType = "navigation"
	TargetCategory      TargetType = "category"
	TargetProductList   TargetType = "product_list"
	TargetProductDetail TargetType = "product_detail"
)

// Valid reports whether t is one of the known target types.
func (t TargetType) Valid() bool {
	switch t {
	case TargetNavigation, TargetCategory, TargetProductList, TargetProductDetail:
		return true
	}
	return false
}

// ScrapeJob represents one unit of crawl work. Jobs are never deleted by the
// pipeline; they only reach a terminal status.
type ScrapeJob struct {
	ID              string         `json:"id"`
	TargetURL       string         `json:"target_url"`
	TargetType      TargetType     `json:"target_type"`
	Status          JobStatus      `json:"status"`
	RetryCount      int            `json:"retry_count"`
	ItemsScraped    int            `json:"items_scraped"`
	ErrorLog        string         `json:"error_log,omitempty"` // append-only failure summaries
	Metadata        map[string]any `json:"metadata,omitempty"`  // shape varies by target type
	CancelRequested bool           `json:"cancel_requested"`
	RunAfter        *time.Time     `json:"run_after,omitempty"` // backoff gate; nil = runnable now
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Navigation is a top-level navigation entry of the source site.
type Navigation struct {
	ID            int64      `json:"id"`
	Slug          string     `json:"slug"` // natural key
	Title         string     `json:"title"`
	URL           string     `json:"url,omitempty"`
	Position      int        `json:"position"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Category is a node of the self-referential category tree under a navigation.
// ProductCount is a derived cache recomputed from product rows, never
// incremented in place.
type Category struct {
	ID            int64      `json:"id"`
	Slug          string     `json:"slug"` // natural key
	Title         string     `json:"title"`
	URL           string     `json:"url,omitempty"`
	NavigationID  int64      `json:"navigation_id"`
	ParentID      *int64     `json:"parent_id,omitempty"`
	ProductCount  int        `json:"product_count"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Product is one catalog item. CategoryID may be nil (uncategorized).
type Product struct {
	ID            int64      `json:"id"`
	SourceID      string     `json:"source_id"` // natural key from the source site
	CategoryID    *int64     `json:"category_id,omitempty"`
	Title         string     `json:"title"`
	Price         float64    `json:"price"`
	Currency      string     `json:"currency,omitempty"`
	Availability  string     `json:"availability,omitempty"`
	Rating        float64    `json:"rating"`
	ImageURL      string     `json:"image_url,omitempty"`
	ProductURL    string     `json:"product_url,omitempty"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ProductDetail holds the 1:1 extended record for a product.
// ReviewsCount and RatingsAvg are derived caches recomputed from review rows.
type ProductDetail struct {
	ID            int64      `json:"id"`
	ProductID     int64      `json:"product_id"` // natural key (1:1)
	Description   string     `json:"description,omitempty"`
	SpecsJSON     string     `json:"specs_json,omitempty"` // key/value spec table as JSON
	Publisher     string     `json:"publisher,omitempty"`
	ISBN          string     `json:"isbn,omitempty"`
	PageCount     int        `json:"page_count"`
	GenresJSON    string     `json:"genres_json,omitempty"`
	ReviewsCount  int        `json:"reviews_count"`
	RatingsAvg    float64    `json:"ratings_avg"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Review is one review of a product. The source exposes no stable review id,
// so rows are deduplicated on (product_id, author, review_date, text_hash).
type Review struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	Author     string    `json:"author,omitempty"`
	Rating     float64   `json:"rating"`
	ReviewDate string    `json:"review_date,omitempty"` // YYYY-MM-DD as published
	Text       string    `json:"text,omitempty"`
	TextHash   string    `json:"-"` // sha256 of Text, part of the dedup key
	CreatedAt  time.Time `json:"created_at"`
}

// JobStats is the aggregate view over all scrape jobs, computed live from job
// rows rather than maintained as counters.
type JobStats struct {
	TotalJobs         int        `json:"total_jobs"`
	PendingJobs       int        `json:"pending_jobs"`
	RunningJobs       int        `json:"running_jobs"`
	CompletedJobs     int        `json:"completed_jobs"`
	FailedJobs        int        `json:"failed_jobs"`
	CancelledJobs     int        `json:"cancelled_jobs"`
	TotalItemsScraped int        `json:"total_items_scraped"`
	LastScrapeAt      *time.Time `json:"last_scrape_at,omitempty"`
}
