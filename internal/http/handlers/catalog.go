package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/service"
)

// CatalogHandler handles read-only catalog browse endpoints.
type CatalogHandler struct {
	catalogSvc *service.CatalogService
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalogSvc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogSvc: catalogSvc}
}

// ListNavigationsOutput represents the navigation list response.
type ListNavigationsOutput struct {
	Body struct {
		Navigations []*models.Navigation `json:"navigations"`
	}
}

// ListNavigations returns all navigation entries in display order.
func (h *CatalogHandler) ListNavigations(ctx context.Context, input *struct{}) (*ListNavigationsOutput, error) {
	navs, err := h.catalogSvc.ListNavigations(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list navigations: " + err.Error())
	}
	out := &ListNavigationsOutput{}
	out.Body.Navigations = navs
	return out, nil
}

// ListCategoriesInput represents the category list request.
type ListCategoriesInput struct {
	NavigationID int64 `query:"navigation_id" required:"true" doc:"Navigation entry to list categories for"`
}

// ListCategoriesOutput represents the category list response.
type ListCategoriesOutput struct {
	Body struct {
		Categories []*models.Category `json:"categories"`
	}
}

// ListCategories returns the category tree rooted at a navigation entry.
func (h *CatalogHandler) ListCategories(ctx context.Context, input *ListCategoriesInput) (*ListCategoriesOutput, error) {
	cats, err := h.catalogSvc.ListCategories(ctx, input.NavigationID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list categories: " + err.Error())
	}
	out := &ListCategoriesOutput{}
	out.Body.Categories = cats
	return out, nil
}

// ListProductsInput represents the product list request.
type ListProductsInput struct {
	CategoryID int64 `query:"category_id" required:"true" doc:"Category to list products for"`
	Limit      int   `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Maximum products to return"`
	Offset     int   `query:"offset" default:"0" minimum:"0" doc:"Offset for pagination"`
}

// ListProductsOutput represents the product list response.
type ListProductsOutput struct {
	Body struct {
		Products []*models.Product `json:"products"`
		Count    int               `json:"count"`
	}
}

// ListProducts returns a page of products in a category.
func (h *CatalogHandler) ListProducts(ctx context.Context, input *ListProductsInput) (*ListProductsOutput, error) {
	products, err := h.catalogSvc.ListProducts(ctx, input.CategoryID, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list products: " + err.Error())
	}
	out := &ListProductsOutput{}
	out.Body.Products = products
	out.Body.Count = len(products)
	return out, nil
}

// GetProductInput represents a product lookup request.
type GetProductInput struct {
	SourceID string `path:"sourceID" doc:"Product source id, e.g. a-light-in-the-attic_1000"`
}

// GetProductOutput represents a product lookup response.
type GetProductOutput struct {
	Body service.ProductView
}

// GetProduct returns a product by its source id, with detail and reviews.
func (h *CatalogHandler) GetProduct(ctx context.Context, input *GetProductInput) (*GetProductOutput, error) {
	view, err := h.catalogSvc.GetProduct(ctx, input.SourceID)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return nil, huma.Error404NotFound("product not found")
		}
		return nil, huma.Error500InternalServerError("failed to get product: " + err.Error())
	}
	return &GetProductOutput{Body: *view}, nil
}
