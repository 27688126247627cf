package service

import (
	"database/sql"
	"testing"

	"github.com/shelfwise/shelfwise-api/internal/database/migrations"
	"github.com/shelfwise/shelfwise-api/internal/repository"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory database with the full schema applied,
// plus repositories over it.
func setupTestDB(t *testing.T) (*sql.DB, *repository.Repositories) {
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

	return db, repository.NewRepositories(db)
}

func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	_, repos := setupTestDB(t)
	return repos
}
