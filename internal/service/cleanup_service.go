package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfwise/shelfwise-api/internal/config"
	"github.com/shelfwise/shelfwise-api/internal/repository"
)

// CleanupService removes old terminal jobs and their archived snapshots.
type CleanupService struct {
	jobRepo    repository.JobRepository
	storageSvc *StorageService
	cfg        *config.Config
	logger     *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(
	jobRepo repository.JobRepository,
	storageSvc *StorageService,
	cfg *config.Config,
	logger *slog.Logger,
) *CleanupService {
	return &CleanupService{
		jobRepo:    jobRepo,
		storageSvc: storageSvc,
		cfg:        cfg,
		logger:     logger.With("component", "cleanup"),
	}
}

// CleanupResult contains the results of a cleanup pass.
type CleanupResult struct {
	JobsDeleted      int64
	SnapshotsDeleted int
	Errors           []error
}

// CleanupOldJobs removes terminal job records older than maxAge from the
// database, plus any matching snapshot objects in storage. Pending and
// running jobs are never touched.
func (s *CleanupService) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (*CleanupResult, error) {
	result := &CleanupResult{}
	cutoff := time.Now().Add(-maxAge)

	s.logger.Info("starting job cleanup",
		"max_age", maxAge.String(),
		"cutoff", cutoff.Format(time.RFC3339),
	)

	deleted, err := s.jobRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to delete old jobs", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.JobsDeleted = deleted
	}

	if s.storageSvc != nil && s.storageSvc.IsEnabled() {
		count, err := s.storageSvc.DeleteOldSnapshots(ctx, maxAge)
		if err != nil {
			s.logger.Error("failed to delete old snapshots", "error", err)
			result.Errors = append(result.Errors, err)
		} else {
			result.SnapshotsDeleted = count
		}
	}

	s.logger.Info("cleanup completed",
		"jobs_deleted", result.JobsDeleted,
		"snapshots_deleted", result.SnapshotsDeleted,
		"errors", len(result.Errors),
	)

	return result, nil
}

// RunScheduledCleanup runs cleanup as a background goroutine: once
// immediately, then at the configured interval until ctx is cancelled.
// It returns without starting anything when cleanup is disabled.
func (s *CleanupService) RunScheduledCleanup(ctx context.Context) {
	if !s.cfg.CleanupEnabled {
		s.logger.Debug("cleanup disabled")
		return
	}

	maxAge := s.cfg.CleanupMaxAgeJobs
	interval := s.cfg.CleanupInterval

	s.logger.Info("starting scheduled cleanup",
		"max_age", maxAge.String(),
		"interval", interval.String(),
	)

	if _, err := s.CleanupOldJobs(ctx, maxAge); err != nil {
		s.logger.Error("initial cleanup failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled cleanup stopped")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldJobs(ctx, maxAge); err != nil {
				s.logger.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}
