package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/shelfwise/shelfwise-api/internal/config"
	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/scraper"
)

// StorageService archives completed-job snapshots to S3-compatible object
// storage. Archiving is best-effort and optional: with no bucket configured
// every call is a no-op.
type StorageService struct {
	client  *s3.Client
	bucket  string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{enabled: false, logger: logger}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Custom endpoint and path style accommodate S3-compatible providers
	// (Tigris, MinIO).
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.StorageEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		}
		o.UsePathStyle = true
	})

	logger.Info("storage service initialized", "bucket", cfg.StorageBucket, "endpoint", cfg.StorageEndpoint)

	return &StorageService{
		client:  client,
		bucket:  cfg.StorageBucket,
		enabled: true,
		logger:  logger,
	}, nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// JobSnapshot is the archived record of one completed scrape job: what was
// fetched and what the pipeline applied.
type JobSnapshot struct {
	JobID        string          `json:"job_id"`
	TargetURL    string          `json:"target_url"`
	TargetType   string          `json:"target_type"`
	ItemsScraped int             `json:"items_scraped"`
	RetryCount   int             `json:"retry_count"`
	Result       *scraper.Result `json:"result,omitempty"`
	CompletedAt  time.Time       `json:"completed_at"`
}

// SnapshotFromJob builds the archive record for a finished job.
func SnapshotFromJob(job *models.ScrapeJob, result *scraper.Result, itemsScraped int) *JobSnapshot {
	return &JobSnapshot{
		JobID:        job.ID,
		TargetURL:    job.TargetURL,
		TargetType:   string(job.TargetType),
		ItemsScraped: itemsScraped,
		RetryCount:   job.RetryCount,
		Result:       result,
		CompletedAt:  time.Now().UTC(),
	}
}

// StoreSnapshot uploads a completed-job snapshot as snapshots/{job_id}.json.
func (s *StorageService) StoreSnapshot(ctx context.Context, snapshot *JobSnapshot) error {
	if !s.enabled {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s.json", snapshot.JobID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.logger.Info("stored job snapshot", "job_id", snapshot.JobID, "key", key, "size_bytes", len(data))
	return nil
}

// GetSnapshot retrieves an archived snapshot.
func (s *StorageService) GetSnapshot(ctx context.Context, jobID string) (*JobSnapshot, error) {
	if !s.enabled {
		return nil, fmt.Errorf("storage is not enabled")
	}

	key := fmt.Sprintf("snapshots/%s.json", jobID)
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot JobSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteOldSnapshots removes snapshots older than maxAge. Returns the number
// deleted.
func (s *StorageService) DeleteOldSnapshots(ctx context.Context, maxAge time.Duration) (int, error) {
	if !s.enabled {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("snapshots/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to list snapshots: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || obj.LastModified.After(cutoff) {
				continue
			}
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				s.logger.Warn("failed to delete old snapshot", "key", aws.ToString(obj.Key), "error", err)
				continue
			}
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Info("deleted old snapshots", "count", deleted, "max_age", maxAge)
	}
	return deleted, nil
}
