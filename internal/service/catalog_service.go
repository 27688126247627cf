package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/repository"
)

// ErrProductNotFound is returned when the referenced product does not exist.
var ErrProductNotFound = errors.New("product not found")

// CatalogService is the read side of the scraped catalog.
type CatalogService struct {
	catalog repository.CatalogRepository
	logger  *slog.Logger
}

// NewCatalogService creates a new catalog read service.
func NewCatalogService(catalog repository.CatalogRepository, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{catalog: catalog, logger: logger.With("component", "catalog")}
}

// ListNavigations returns all navigation entries in display order.
func (s *CatalogService) ListNavigations(ctx context.Context) ([]*models.Navigation, error) {
	return s.catalog.ListNavigations(ctx)
}

// ListCategories returns the categories under a navigation.
func (s *CatalogService) ListCategories(ctx context.Context, navigationID int64) ([]*models.Category, error) {
	return s.catalog.ListCategories(ctx, navigationID)
}

// ListProducts returns a page of products in a category.
func (s *CatalogService) ListProducts(ctx context.Context, categoryID int64, limit, offset int) ([]*models.Product, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.catalog.ListProducts(ctx, categoryID, limit, offset)
}

// ProductView is a product with its detail row and reviews attached.
type ProductView struct {
	Product *models.Product       `json:"product"`
	Detail  *models.ProductDetail `json:"detail,omitempty"`
	Reviews []*models.Review      `json:"reviews,omitempty"`
}

// GetProduct returns a product by its natural key with detail and reviews.
func (s *CatalogService) GetProduct(ctx context.Context, sourceID string) (*ProductView, error) {
	product, err := s.catalog.GetProductBySourceID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	detail, err := s.catalog.GetProductDetail(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.catalog.ListReviews(ctx, product.ID, 100, 0)
	if err != nil {
		return nil, err
	}

	return &ProductView{Product: product, Detail: detail, Reviews: reviews}, nil
}
