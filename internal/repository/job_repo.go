package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shelfwise/shelfwise-api/internal/models"
)

const jobColumns = `id, target_url, target_type, status, retry_count, items_scraped,
	error_log, metadata, cancel_requested, run_after, started_at, finished_at,
	created_at, updated_at`

// SQLiteJobRepository implements JobRepository for SQLite.
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository creates a new SQLite job repository.
func NewSQLiteJobRepository(db *sql.DB) *SQLiteJobRepository {
	return &SQLiteJobRepository{db: db}
}

func (r *SQLiteJobRepository) Create(ctx context.Context, job *models.ScrapeJob) error {
	var metadataJSON sql.NullString
	if len(job.Metadata) > 0 {
		b, err := json.Marshal(job.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal job metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO scrape_job (id, target_url, target_type, status, retry_count, items_scraped,
			error_log, metadata, cancel_requested, run_after, started_at, finished_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.TargetURL,
		job.TargetType,
		job.Status,
		job.RetryCount,
		job.ItemsScraped,
		nullString(job.ErrorLog),
		metadataJSON,
		boolToInt(job.CancelRequested),
		nullTime(job.RunAfter),
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		job.CreatedAt.Format(time.RFC3339),
		job.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) GetByID(ctx context.Context, id string) (*models.ScrapeJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_job WHERE id = ?`
	return r.scanJob(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteJobRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.ScrapeJob, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		query := `SELECT ` + jobColumns + ` FROM scrape_job WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
		rows, err = r.db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := `SELECT ` + jobColumns + ` FROM scrape_job ORDER BY created_at DESC LIMIT ? OFFSET ?`
		rows, err = r.db.QueryContext(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ScrapeJob
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *SQLiteJobRepository) ClaimPending(ctx context.Context) (*models.ScrapeJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// UPDATE ... RETURNING claims and fetches in one statement, so two
	// workers can never pick up the same job. run_after gates retries
	// that are still in their backoff window.
	now := time.Now().Format(time.RFC3339)
	query := `
		UPDATE scrape_job
		SET status = 'running', started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM scrape_job
			WHERE status = 'pending' AND (run_after IS NULL OR run_after <= ?)
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := r.scanJob(tx.QueryRowContext(ctx, query, now, now, now))
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		// Empty queue is normal, not an error.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return job, nil
}

func (r *SQLiteJobRepository) HasActive(ctx context.Context, targetURL string, targetType models.TargetType) (bool, error) {
	query := `SELECT COUNT(*) FROM scrape_job WHERE target_url = ? AND target_type = ? AND status IN ('pending', 'running')`
	var count int
	err := r.db.QueryRowContext(ctx, query, targetURL, targetType).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count > 0, nil
}

func (r *SQLiteJobRepository) MarkCompleted(ctx context.Context, id string, itemsScraped int) error {
	now := time.Now().Format(time.RFC3339)
	query := `
		UPDATE scrape_job
		SET status = 'completed', items_scraped = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query, itemsScraped, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return requireAffected(result, id)
}

func (r *SQLiteJobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	now := time.Now().Format(time.RFC3339)
	query := `
		UPDATE scrape_job
		SET status = 'failed',
			error_log = COALESCE(error_log || char(10), '') || ?,
			finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query, errMsg, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return requireAffected(result, id)
}

func (r *SQLiteJobRepository) ScheduleRetry(ctx context.Context, id string, errMsg string, runAfter time.Time) error {
	now := time.Now().Format(time.RFC3339)
	query := `
		UPDATE scrape_job
		SET status = 'pending',
			retry_count = retry_count + 1,
			error_log = COALESCE(error_log || char(10), '') || ?,
			run_after = ?,
			started_at = NULL,
			updated_at = ?
		WHERE id = ? AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query, errMsg, runAfter.Format(time.RFC3339), now, id)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return requireAffected(result, id)
}

func (r *SQLiteJobRepository) RequestCancel(ctx context.Context, id string) (models.JobStatus, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := r.scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scrape_job WHERE id = ?`, id))
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", ErrNotFound
	}

	now := time.Now().Format(time.RFC3339)
	switch job.Status {
	case models.JobStatusPending:
		_, err = tx.ExecContext(ctx,
			`UPDATE scrape_job SET status = 'cancelled', finished_at = ?, updated_at = ? WHERE id = ?`,
			now, now, id)
		if err != nil {
			return "", fmt.Errorf("failed to cancel job: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("failed to commit transaction: %w", err)
		}
		return models.JobStatusCancelled, nil

	case models.JobStatusRunning:
		// Running jobs cancel cooperatively: the worker checks the flag
		// between fetch and reconcile.
		_, err = tx.ExecContext(ctx,
			`UPDATE scrape_job SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
			now, id)
		if err != nil {
			return "", fmt.Errorf("failed to request cancel: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("failed to commit transaction: %w", err)
		}
		return models.JobStatusRunning, nil

	default:
		// Terminal states are left as-is.
		return job.Status, nil
	}
}

func (r *SQLiteJobRepository) MarkCancelled(ctx context.Context, id string) error {
	now := time.Now().Format(time.RFC3339)
	query := `
		UPDATE scrape_job
		SET status = 'cancelled', finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark job cancelled: %w", err)
	}
	return requireAffected(result, id)
}

func (r *SQLiteJobRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := r.db.QueryRowContext(ctx, `SELECT cancel_requested FROM scrape_job WHERE id = ?`, id).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check cancel flag: %w", err)
	}
	return flag == 1, nil
}

func (r *SQLiteJobRepository) RequeueInterrupted(ctx context.Context, maxAttempts int) (int64, int64, error) {
	now := time.Now().Format(time.RFC3339)

	requeueQuery := `
		UPDATE scrape_job
		SET status = 'pending',
			retry_count = retry_count + 1,
			error_log = COALESCE(error_log || char(10), '') || 'interrupted: server restart',
			started_at = NULL,
			updated_at = ?
		WHERE status = 'running' AND retry_count < ?
	`
	result, err := r.db.ExecContext(ctx, requeueQuery, now, maxAttempts)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to requeue interrupted jobs: %w", err)
	}
	requeued, _ := result.RowsAffected()

	failQuery := `
		UPDATE scrape_job
		SET status = 'failed',
			error_log = COALESCE(error_log || char(10), '') || 'interrupted: server restart, attempts exhausted',
			finished_at = ?, updated_at = ?
		WHERE status = 'running'
	`
	result, err = r.db.ExecContext(ctx, failQuery, now, now)
	if err != nil {
		return requeued, 0, fmt.Errorf("failed to fail interrupted jobs: %w", err)
	}
	failed, _ := result.RowsAffected()

	return requeued, failed, nil
}

func (r *SQLiteJobRepository) Stats(ctx context.Context) (*models.JobStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN items_scraped ELSE 0 END), 0),
			MAX(CASE WHEN status = 'completed' THEN finished_at END)
		FROM scrape_job
	`
	var stats models.JobStats
	var lastScrape sql.NullString
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalJobs,
		&stats.PendingJobs,
		&stats.RunningJobs,
		&stats.CompletedJobs,
		&stats.FailedJobs,
		&stats.CancelledJobs,
		&stats.TotalItemsScraped,
		&lastScrape,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	if lastScrape.Valid {
		t, _ := time.Parse(time.RFC3339, lastScrape.String)
		stats.LastScrapeAt = &t
	}
	return &stats, nil
}

func (r *SQLiteJobRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM scrape_job WHERE created_at < ? AND status IN ('completed', 'failed', 'cancelled')`
	result, err := r.db.ExecContext(ctx, query, before.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteJobRepository) scanJob(row *sql.Row) (*models.ScrapeJob, error) {
	job, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

func (r *SQLiteJobRepository) scanJobFromRows(rows *sql.Rows) (*models.ScrapeJob, error) {
	job, err := scanJobRow(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

func scanJobRow(row rowScanner) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	var errorLog, metadataJSON sql.NullString
	var cancelRequested int
	var runAfter, startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID, &job.TargetURL, &job.TargetType, &job.Status,
		&job.RetryCount, &job.ItemsScraped,
		&errorLog, &metadataJSON, &cancelRequested,
		&runAfter, &startedAt, &finishedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ErrorLog = errorLog.String
	if metadataJSON.Valid {
		json.Unmarshal([]byte(metadataJSON.String), &job.Metadata)
	}
	job.CancelRequested = cancelRequested == 1
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if runAfter.Valid {
		t, _ := time.Parse(time.RFC3339, runAfter.String)
		job.RunAfter = &t
	}
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		job.FinishedAt = &t
	}

	return &job, nil
}

func requireAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s: %w", id, ErrInvalidTransition)
	}
	return nil
}

// Helper functions
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
