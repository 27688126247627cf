package repository

import (
	"database/sql"
	"testing"

	"github.com/shelfwise/shelfwise-api/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
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

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// InsertTestJob is a helper to insert a test job directly.
func InsertTestJob(t *testing.T, db *sql.DB, id, status string, retryCount int) {
	t.Helper()
	query := `
		INSERT INTO scrape_job (id, target_url, target_type, status, retry_count, created_at, updated_at)
		VALUES (?, 'https://example.com/catalogue', 'product_list', ?, ?, datetime('now'), datetime('now'))
	`
	if _, err := db.Exec(query, id, status, retryCount); err != nil {
		t.Fatalf("failed to insert test job: %v", err)
	}
}

// InsertTestNavigation is a helper to insert a navigation row directly.
func InsertTestNavigation(t *testing.T, db *sql.DB, slug, title string) int64 {
	t.Helper()
	query := `
		INSERT INTO navigation (slug, title, url, position, created_at, updated_at)
		VALUES (?, ?, 'https://example.com/' || ?, 0, datetime('now'), datetime('now'))
	`
	result, err := db.Exec(query, slug, title, slug)
	if err != nil {
		t.Fatalf("failed to insert test navigation: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

// InsertTestCategory is a helper to insert a category row directly.
func InsertTestCategory(t *testing.T, db *sql.DB, slug string, navigationID int64) int64 {
	t.Helper()
	query := `
		INSERT INTO category (slug, navigation_id, title, url, created_at, updated_at)
		VALUES (?, ?, ?, 'https://example.com/category/' || ?, datetime('now'), datetime('now'))
	`
	result, err := db.Exec(query, slug, navigationID, slug, slug)
	if err != nil {
		t.Fatalf("failed to insert test category: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}
