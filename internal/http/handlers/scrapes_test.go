package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/shelfwise/shelfwise-api/internal/database/migrations"
	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/repository"
	"github.com/shelfwise/shelfwise-api/internal/service"
)

func setupHandlerTest(t *testing.T) (*ScrapeHandler, *CatalogHandler, *repository.Repositories) {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	repos := repository.NewRepositories(db)
	scrapeSvc := service.NewScrapeService(repos.Jobs, nil)
	catalogSvc := service.NewCatalogService(repos.Catalog, nil)
	return NewScrapeHandler(scrapeSvc, "http://localhost:8080"), NewCatalogHandler(catalogSvc), repos
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	se, ok := err.(huma.StatusError)
	if !ok {
		t.Fatalf("expected a status error, got %v", err)
	}
	return se.GetStatus()
}

func TestCreateScrape(t *testing.T) {
	h, _, _ := setupHandlerTest(t)

	input := &CreateScrapeInput{}
	input.Body.URL = "https://books.toscrape.com/"
	input.Body.TargetType = "navigation"

	output, err := h.CreateScrape(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateScrape failed: %v", err)
	}
	if output.Status != http.StatusCreated {
		t.Errorf("Status = %d, want %d", output.Status, http.StatusCreated)
	}
	if output.Body.Job == nil || output.Body.Job.Status != models.JobStatusPending {
		t.Fatalf("expected a pending job, got %+v", output.Body.Job)
	}
	if !strings.HasSuffix(output.Body.StatusURL, "/api/v1/scrapes/"+output.Body.Job.ID) {
		t.Errorf("unexpected status url %q", output.Body.StatusURL)
	}
}

func TestCreateScrape_InvalidTarget(t *testing.T) {
	h, _, _ := setupHandlerTest(t)

	tests := []struct {
		name       string
		url        string
		targetType string
	}{
		{"bad url", "not-a-url", "navigation"},
		{"bad scheme", "ftp://example.com/", "navigation"},
		{"unknown target type", "https://example.com/", "everything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &CreateScrapeInput{}
			input.Body.URL = tt.url
			input.Body.TargetType = tt.targetType

			_, err := h.CreateScrape(context.Background(), input)
			if err == nil {
				t.Fatal("expected error")
			}
			if status := statusOf(t, err); status != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", status)
			}
		})
	}
}

func TestGetScrape_NotFound(t *testing.T) {
	h, _, _ := setupHandlerTest(t)

	_, err := h.GetScrape(context.Background(), &GetScrapeInput{ID: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	if status := statusOf(t, err); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestListScrapes_FilterByStatus(t *testing.T) {
	h, _, _ := setupHandlerTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		input := &CreateScrapeInput{}
		input.Body.URL = "https://books.toscrape.com/"
		input.Body.TargetType = "navigation"
		if _, err := h.CreateScrape(ctx, input); err != nil {
			t.Fatalf("CreateScrape failed: %v", err)
		}
	}

	output, err := h.ListScrapes(ctx, &ListScrapesInput{Status: "pending", Limit: 50})
	if err != nil {
		t.Fatalf("ListScrapes failed: %v", err)
	}
	if output.Body.Count != 3 {
		t.Errorf("Count = %d, want 3", output.Body.Count)
	}

	output, err = h.ListScrapes(ctx, &ListScrapesInput{Status: "failed", Limit: 50})
	if err != nil {
		t.Fatalf("ListScrapes failed: %v", err)
	}
	if output.Body.Count != 0 {
		t.Errorf("Count = %d, want 0", output.Body.Count)
	}
}

func TestCancelScrape(t *testing.T) {
	h, _, _ := setupHandlerTest(t)
	ctx := context.Background()

	input := &CreateScrapeInput{}
	input.Body.URL = "https://books.toscrape.com/"
	input.Body.TargetType = "navigation"
	created, err := h.CreateScrape(ctx, input)
	if err != nil {
		t.Fatalf("CreateScrape failed: %v", err)
	}

	output, err := h.CancelScrape(ctx, &CancelScrapeInput{ID: created.Body.Job.ID})
	if err != nil {
		t.Fatalf("CancelScrape failed: %v", err)
	}
	if output.Body.Job.Status != models.JobStatusCancelled {
		t.Errorf("Status = %s, want cancelled", output.Body.Job.Status)
	}

	_, err = h.CancelScrape(ctx, &CancelScrapeInput{ID: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	if status := statusOf(t, err); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestGetScrapeStats(t *testing.T) {
	h, _, _ := setupHandlerTest(t)
	ctx := context.Background()

	input := &CreateScrapeInput{}
	input.Body.URL = "https://books.toscrape.com/"
	input.Body.TargetType = "navigation"
	if _, err := h.CreateScrape(ctx, input); err != nil {
		t.Fatalf("CreateScrape failed: %v", err)
	}

	output, err := h.GetScrapeStats(ctx, nil)
	if err != nil {
		t.Fatalf("GetScrapeStats failed: %v", err)
	}
	if output.Body.TotalJobs != 1 || output.Body.PendingJobs != 1 {
		t.Errorf("unexpected stats %+v", output.Body)
	}
}

func TestCatalogBrowse(t *testing.T) {
	_, h, repos := setupHandlerTest(t)
	ctx := context.Background()

	navID, err := repos.Catalog.UpsertNavigation(ctx, &models.Navigation{Slug: "books", Title: "Books", URL: "https://example.com/books"})
	if err != nil {
		t.Fatalf("UpsertNavigation failed: %v", err)
	}
	catID, err := repos.Catalog.UpsertCategory(ctx, &models.Category{Slug: "poetry", Title: "Poetry", URL: "https://example.com/poetry", NavigationID: navID})
	if err != nil {
		t.Fatalf("UpsertCategory failed: %v", err)
	}
	if _, err := repos.Catalog.UpsertProduct(ctx, &models.Product{
		SourceID: "book-1", CategoryID: &catID, Title: "Book One", Price: 9.99, Currency: "GBP",
	}); err != nil {
		t.Fatalf("UpsertProduct failed: %v", err)
	}

	navs, err := h.ListNavigations(ctx, nil)
	if err != nil {
		t.Fatalf("ListNavigations failed: %v", err)
	}
	if len(navs.Body.Navigations) != 1 {
		t.Fatalf("expected 1 navigation, got %d", len(navs.Body.Navigations))
	}

	cats, err := h.ListCategories(ctx, &ListCategoriesInput{NavigationID: navID})
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if len(cats.Body.Categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(cats.Body.Categories))
	}

	products, err := h.ListProducts(ctx, &ListProductsInput{CategoryID: catID, Limit: 50})
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if products.Body.Count != 1 {
		t.Fatalf("expected 1 product, got %d", products.Body.Count)
	}

	view, err := h.GetProduct(ctx, &GetProductInput{SourceID: "book-1"})
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if view.Body.Product.Title != "Book One" {
		t.Errorf("Title = %q, want %q", view.Body.Product.Title, "Book One")
	}

	_, err = h.GetProduct(ctx, &GetProductInput{SourceID: "ghost"})
	if err == nil {
		t.Fatal("expected error for missing product")
	}
	if status := statusOf(t, err); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}
