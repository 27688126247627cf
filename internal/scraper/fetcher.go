// Package scraper retrieves catalog pages from the source site and extracts
// typed records from them. Consumers only see the Fetcher contract; the
// reconciler never touches HTML.
package scraper

import (
	"context"

	"github.com/shelfwise/shelfwise-api/internal/models"
)

// Fetcher retrieves one target page and extracts its records.
// Implementations return a *FetchError for classified failures.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, targetType models.TargetType) (*Result, error)
}

// Result is the extracted payload of one page. Exactly the slices matching
// the requested target type are populated.
type Result struct {
	Navigations []NavigationRecord
	Categories  []CategoryRecord
	Products    []ProductRecord
	Detail      *DetailRecord

	// NextPageURL is the absolute URL of the next listing page, or "" on the
	// last page. Only set for product_list targets.
	NextPageURL string
}

// ItemCount returns the number of records carried by the result.
func (r *Result) ItemCount() int {
	n := len(r.Navigations) + len(r.Categories) + len(r.Products)
	if r.Detail != nil {
		n += 1 + len(r.Detail.Reviews)
	}
	return n
}

// NavigationRecord is one top-level navigation entry.
type NavigationRecord struct {
	Slug     string
	Title    string
	URL      string
	Position int
}

// CategoryRecord is one category entry found on a navigation or category page.
type CategoryRecord struct {
	Slug       string
	Title      string
	URL        string
	ParentSlug string // "" for top-level categories
}

// ProductRecord is one product card from a listing page.
type ProductRecord struct {
	SourceID     string
	Title        string
	Price        float64
	Currency     string
	Availability string
	Rating       float64
	ImageURL     string
	ProductURL   string
}

// DetailRecord is the extended payload of a product detail page.
type DetailRecord struct {
	Product     ProductRecord
	Description string
	Specs       map[string]string
	Publisher   string
	ISBN        string
	PageCount   int
	Genres      []string
	Reviews     []ReviewRecord
}

// ReviewRecord is one review scraped from a detail page.
type ReviewRecord struct {
	Author string
	Rating float64
	Date   string // YYYY-MM-DD as published
	Text   string
}
