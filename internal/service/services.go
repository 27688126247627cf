package service

import (
	"fmt"
	"log/slog"

	"github.com/shelfwise/shelfwise-api/internal/config"
	"github.com/shelfwise/shelfwise-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Scrape    *ScrapeService
	Reconcile *ReconcileService
	Catalog   *CatalogService
	Storage   *StorageService
	Cleanup   *CleanupService
}

// NewServices creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	return &Services{
		Scrape:    NewScrapeService(repos.Jobs, logger),
		Reconcile: NewReconcileService(repos.Catalog, repos.Jobs, logger),
		Catalog:   NewCatalogService(repos.Catalog, logger),
		Storage:   storageSvc,
		Cleanup:   NewCleanupService(repos.Jobs, storageSvc, cfg, logger),
	}, nil
}
