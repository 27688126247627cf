package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shelfwise/shelfwise-api/internal/models"
)

func TestJobRepository_Create(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	job := &models.ScrapeJob{
		ID:         ulid.Make().String(),
		TargetURL:  "https://example.com/catalogue/page-1.html",
		TargetType: models.TargetProductList,
		Status:     models.JobStatusPending,
		Metadata:   map[string]any{"category_slug": "travel"},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := repos.Jobs.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.Jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() returned nil")
	}
	if got.TargetURL != job.TargetURL {
		t.Errorf("TargetURL = %s, want %s", got.TargetURL, job.TargetURL)
	}
	if got.Status != models.JobStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.Metadata["category_slug"] != "travel" {
		t.Errorf("Metadata = %v, want category_slug=travel", got.Metadata)
	}
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	repos := setupTestRepos(t)

	got, err := repos.Jobs.GetByID(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent job")
	}
}

func TestJobRepository_ClaimPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "pending", 0)

	job, err := repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimed job")
	}
	if job.ID != "job_1" {
		t.Errorf("ID = %s, want job_1", job.ID)
	}
	if job.Status != models.JobStatusRunning {
		t.Errorf("Status = %s, want running", job.Status)
	}
	if job.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}

	// Queue is now empty
	job, err = repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if job != nil {
		t.Errorf("expected nil on empty queue, got %s", job.ID)
	}
}

func TestJobRepository_ClaimPending_OldestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	// created_at resolution is one second, so set explicit timestamps
	for i, id := range []string{"job_a", "job_b", "job_c"} {
		createdAt := time.Now().Add(time.Duration(i-3) * time.Minute).Format(time.RFC3339)
		_, err := db.Exec(`
			INSERT INTO scrape_job (id, target_url, target_type, status, created_at, updated_at)
			VALUES (?, 'https://example.com', 'navigation', 'pending', ?, ?)
		`, id, createdAt, createdAt)
		if err != nil {
			t.Fatalf("failed to insert job: %v", err)
		}
	}

	job, err := repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if job.ID != "job_a" {
		t.Errorf("claimed %s, want job_a (oldest)", job.ID)
	}
}

func TestJobRepository_ClaimPending_RespectsRunAfter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	_, err := db.Exec(`
		INSERT INTO scrape_job (id, target_url, target_type, status, run_after, created_at, updated_at)
		VALUES ('job_backoff', 'https://example.com', 'navigation', 'pending', ?, datetime('now'), datetime('now'))
	`, future)
	if err != nil {
		t.Fatalf("failed to insert job: %v", err)
	}

	job, err := repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if job != nil {
		t.Errorf("job in backoff window should not be claimable, got %s", job.ID)
	}

	// Past run_after is claimable
	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	if _, err := db.Exec(`UPDATE scrape_job SET run_after = ? WHERE id = 'job_backoff'`, past); err != nil {
		t.Fatalf("failed to update run_after: %v", err)
	}

	job, err = repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if job == nil || job.ID != "job_backoff" {
		t.Fatalf("expected job_backoff to be claimable, got %+v", job)
	}
}

func TestJobRepository_ClaimPending_SurfacesQueryErrors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	// A broken schema must come back as an error, never as an empty queue.
	if _, err := db.Exec(`DROP TABLE scrape_job`); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}

	job, err := repo.ClaimPending(ctx)
	if err == nil {
		t.Fatal("ClaimPending() should fail when the query errors")
	}
	if job != nil {
		t.Errorf("job = %+v, want nil on error", job)
	}
}

func TestJobRepository_MarkCompleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "running", 0)

	if err := repo.MarkCompleted(ctx, "job_1", 42); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "job_1")
	if got.Status != models.JobStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.ItemsScraped != 42 {
		t.Errorf("ItemsScraped = %d, want 42", got.ItemsScraped)
	}
	if got.FinishedAt == nil {
		t.Error("expected FinishedAt to be set")
	}
}

func TestJobRepository_MarkCompleted_RequiresRunning(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "pending", 0)

	err := repo.MarkCompleted(ctx, "job_1", 10)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}

	// Terminal states stay put too
	InsertTestJob(t, db, "job_2", "completed", 0)
	if err := repo.MarkFailed(ctx, "job_2", "boom"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestJobRepository_ScheduleRetry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "running", 0)

	runAfter := time.Now().Add(2 * time.Second)
	if err := repo.ScheduleRetry(ctx, "job_1", "fetch timeout", runAfter); err != nil {
		t.Fatalf("ScheduleRetry() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "job_1")
	if got.Status != models.JobStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if got.RunAfter == nil {
		t.Fatal("expected RunAfter to be set")
	}
	if got.ErrorLog != "fetch timeout" {
		t.Errorf("ErrorLog = %q, want %q", got.ErrorLog, "fetch timeout")
	}
	if got.StartedAt != nil {
		t.Error("expected StartedAt to be cleared")
	}
}

func TestJobRepository_ErrorLogAppends(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "running", 0)

	if err := repo.ScheduleRetry(ctx, "job_1", "first failure", time.Now()); err != nil {
		t.Fatalf("ScheduleRetry() error = %v", err)
	}
	if _, err := db.Exec(`UPDATE scrape_job SET status = 'running' WHERE id = 'job_1'`); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkFailed(ctx, "job_1", "second failure"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "job_1")
	want := "first failure\nsecond failure"
	if got.ErrorLog != want {
		t.Errorf("ErrorLog = %q, want %q", got.ErrorLog, want)
	}
}

func TestJobRepository_RequestCancel_Pending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "pending", 0)

	status, err := repo.RequestCancel(ctx, "job_1")
	if err != nil {
		t.Fatalf("RequestCancel() error = %v", err)
	}
	if status != models.JobStatusCancelled {
		t.Errorf("status = %s, want cancelled", status)
	}

	got, _ := repo.GetByID(ctx, "job_1")
	if got.Status != models.JobStatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
}

func TestJobRepository_RequestCancel_Running(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "running", 0)

	status, err := repo.RequestCancel(ctx, "job_1")
	if err != nil {
		t.Fatalf("RequestCancel() error = %v", err)
	}
	if status != models.JobStatusRunning {
		t.Errorf("status = %s, want running", status)
	}

	requested, err := repo.IsCancelRequested(ctx, "job_1")
	if err != nil {
		t.Fatalf("IsCancelRequested() error = %v", err)
	}
	if !requested {
		t.Error("expected cancel_requested flag to be set")
	}
}

func TestJobRepository_RequestCancel_Terminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "completed", 0)

	status, err := repo.RequestCancel(ctx, "job_1")
	if err != nil {
		t.Fatalf("RequestCancel() error = %v", err)
	}
	if status != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed (unchanged)", status)
	}
}

func TestJobRepository_RequestCancel_NotFound(t *testing.T) {
	repos := setupTestRepos(t)

	_, err := repos.Jobs.RequestCancel(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestJobRepository_RequeueInterrupted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_fresh", "running", 0) // full retry budget left
	InsertTestJob(t, db, "job_edge", "running", 2)  // one retry left
	InsertTestJob(t, db, "job_spent", "running", 3) // final retry was in flight
	InsertTestJob(t, db, "job_done", "completed", 0) // untouched

	requeued, failed, err := repo.RequeueInterrupted(ctx, 3)
	if err != nil {
		t.Fatalf("RequeueInterrupted() error = %v", err)
	}
	if requeued != 2 {
		t.Errorf("requeued = %d, want 2", requeued)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}

	fresh, _ := repo.GetByID(ctx, "job_fresh")
	if fresh.Status != models.JobStatusPending {
		t.Errorf("job_fresh Status = %s, want pending", fresh.Status)
	}
	if fresh.RetryCount != 1 {
		t.Errorf("job_fresh RetryCount = %d, want 1", fresh.RetryCount)
	}

	// A job on its last retry still gets requeued; only a spent budget fails.
	edge, _ := repo.GetByID(ctx, "job_edge")
	if edge.Status != models.JobStatusPending {
		t.Errorf("job_edge Status = %s, want pending", edge.Status)
	}
	if edge.RetryCount != 3 {
		t.Errorf("job_edge RetryCount = %d, want 3", edge.RetryCount)
	}

	spent, _ := repo.GetByID(ctx, "job_spent")
	if spent.Status != models.JobStatusFailed {
		t.Errorf("job_spent Status = %s, want failed", spent.Status)
	}

	done, _ := repo.GetByID(ctx, "job_done")
	if done.Status != models.JobStatusCompleted {
		t.Errorf("job_done Status = %s, want completed", done.Status)
	}
}

func TestJobRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "pending", 0)
	InsertTestJob(t, db, "job_2", "completed", 0)
	InsertTestJob(t, db, "job_3", "pending", 0)

	all, err := repo.List(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3", len(all))
	}

	pending, err := repo.List(ctx, "pending", 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("len = %d, want 2", len(pending))
	}
}

func TestJobRepository_Stats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	InsertTestJob(t, db, "job_1", "pending", 0)
	InsertTestJob(t, db, "job_2", "running", 0)
	InsertTestJob(t, db, "job_3", "running", 0)
	now := time.Now().Format(time.RFC3339)
	_, err := db.Exec(`
		INSERT INTO scrape_job (id, target_url, target_type, status, items_scraped, finished_at, created_at, updated_at)
		VALUES ('job_4', 'https://example.com', 'product_list', 'completed', 20, ?, datetime('now'), datetime('now'))
	`, now)
	if err != nil {
		t.Fatal(err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalJobs != 4 {
		t.Errorf("TotalJobs = %d, want 4", stats.TotalJobs)
	}
	if stats.PendingJobs != 1 {
		t.Errorf("PendingJobs = %d, want 1", stats.PendingJobs)
	}
	if stats.RunningJobs != 2 {
		t.Errorf("RunningJobs = %d, want 2", stats.RunningJobs)
	}
	if stats.CompletedJobs != 1 {
		t.Errorf("CompletedJobs = %d, want 1", stats.CompletedJobs)
	}
	if stats.TotalItemsScraped != 20 {
		t.Errorf("TotalItemsScraped = %d, want 20", stats.TotalItemsScraped)
	}
	if stats.LastScrapeAt == nil {
		t.Error("expected LastScrapeAt to be set")
	}
}

func TestJobRepository_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteJobRepository(db)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).Format(time.RFC3339)
	_, err := db.Exec(`
		INSERT INTO scrape_job (id, target_url, target_type, status, created_at, updated_at)
		VALUES ('job_old', 'https://example.com', 'navigation', 'completed', ?, ?),
			('job_old_pending', 'https://example.com', 'navigation', 'pending', ?, ?)
	`, old, old, old, old)
	if err != nil {
		t.Fatal(err)
	}
	InsertTestJob(t, db, "job_new", "completed", 0)

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 (pending jobs are kept)", deleted)
	}
}
