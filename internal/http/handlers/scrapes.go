package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/service"
)

// ScrapeHandler handles scrape job endpoints.
type ScrapeHandler struct {
	scrapeSvc *service.ScrapeService
	baseURL   string
}

// NewScrapeHandler creates a new scrape handler.
func NewScrapeHandler(scrapeSvc *service.ScrapeService, baseURL string) *ScrapeHandler {
	return &ScrapeHandler{scrapeSvc: scrapeSvc, baseURL: baseURL}
}

// CreateScrapeInput represents a scrape trigger request.
type CreateScrapeInput struct {
	Body struct {
		URL        string `json:"url" minLength:"1" example:"https://books.toscrape.com/" doc:"Page to scrape"`
		TargetType string `json:"target_type" enum:"navigation,category,product_list,product_detail" doc:"What kind of page this is"`

		// Context for child targets. Required by the pipeline for category
		// pages; optional elsewhere.
		NavigationID   int64  `json:"navigation_id,omitempty" doc:"Owning navigation entry id (category targets)"`
		NavigationSlug string `json:"navigation_slug,omitempty" doc:"Owning navigation entry slug (category targets)"`
		CategoryID     *int64 `json:"category_id,omitempty" doc:"Owning category id (product_list targets)"`
		CategorySlug   string `json:"category_slug,omitempty" doc:"Owning category slug (product_list targets)"`
		SourceID       string `json:"source_id,omitempty" doc:"Product source id (product_detail targets)"`
		MaxPages       int    `json:"max_pages,omitempty" minimum:"0" maximum:"500" doc:"Pagination budget for listing crawls (0 = unlimited)"`
	}
}

// ScrapeJobResponseBody is the API view of a scrape job.
type ScrapeJobResponseBody struct {
	Job       *models.ScrapeJob `json:"job"`
	StatusURL string            `json:"status_url,omitempty" doc:"URL to poll for job status"`
}

// CreateScrapeOutput represents a scrape trigger response.
type CreateScrapeOutput struct {
	Status int
	Body   ScrapeJobResponseBody
}

// CreateScrape validates the target and enqueues a scrape job.
func (h *ScrapeHandler) CreateScrape(ctx context.Context, input *CreateScrapeInput) (*CreateScrapeOutput, error) {
	targetType := models.TargetType(input.Body.TargetType)

	var job *models.ScrapeJob
	var err error
	switch targetType {
	case models.TargetNavigation:
		job, err = h.scrapeSvc.TriggerNavigationScrape(ctx, input.Body.URL)
	case models.TargetCategory:
		job, err = h.scrapeSvc.TriggerCategoryScrape(ctx, input.Body.URL, input.Body.NavigationID, input.Body.NavigationSlug)
	case models.TargetProductList:
		job, err = h.scrapeSvc.TriggerProductListScrape(ctx, input.Body.URL, input.Body.CategoryID, input.Body.CategorySlug, input.Body.MaxPages)
	case models.TargetProductDetail:
		job, err = h.scrapeSvc.TriggerProductDetailScrape(ctx, input.Body.URL, input.Body.SourceID)
	default:
		return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("unknown target type %q", input.Body.TargetType))
	}
	if err != nil {
		if errors.Is(err, service.ErrInvalidTarget) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to create scrape job: " + err.Error())
	}

	return &CreateScrapeOutput{
		Status: http.StatusCreated,
		Body: ScrapeJobResponseBody{
			Job:       job,
			StatusURL: fmt.Sprintf("%s/api/v1/scrapes/%s", h.baseURL, job.ID),
		},
	}, nil
}

// GetScrapeInput represents a job lookup request.
type GetScrapeInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetScrapeOutput represents a job lookup response.
type GetScrapeOutput struct {
	Body ScrapeJobResponseBody
}

// GetScrape returns a scrape job by id.
func (h *ScrapeHandler) GetScrape(ctx context.Context, input *GetScrapeInput) (*GetScrapeOutput, error) {
	job, err := h.scrapeSvc.GetJob(ctx, input.ID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return nil, huma.Error404NotFound("job not found")
		}
		return nil, huma.Error500InternalServerError("failed to get job: " + err.Error())
	}
	return &GetScrapeOutput{Body: ScrapeJobResponseBody{Job: job}}, nil
}

// ListScrapesInput represents a job list request.
type ListScrapesInput struct {
	Status string `query:"status" doc:"Filter by job status (pending, running, completed, failed, cancelled)"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Maximum jobs to return"`
	Offset int    `query:"offset" default:"0" minimum:"0" doc:"Offset for pagination"`
}

// ListScrapesOutput represents a job list response.
type ListScrapesOutput struct {
	Body struct {
		Jobs  []*models.ScrapeJob `json:"jobs"`
		Count int                 `json:"count"`
	}
}

// ListScrapes returns jobs newest first, optionally filtered by status.
func (h *ScrapeHandler) ListScrapes(ctx context.Context, input *ListScrapesInput) (*ListScrapesOutput, error) {
	jobs, err := h.scrapeSvc.ListJobs(ctx, input.Status, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs: " + err.Error())
	}
	out := &ListScrapesOutput{}
	out.Body.Jobs = jobs
	out.Body.Count = len(jobs)
	return out, nil
}

// CancelScrapeInput represents a cancel request.
type CancelScrapeInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// CancelScrapeOutput represents a cancel response.
type CancelScrapeOutput struct {
	Body ScrapeJobResponseBody
}

// CancelScrape cancels a pending job or flags a running one to stop at its
// next checkpoint. Cancelling a terminal job changes nothing.
func (h *ScrapeHandler) CancelScrape(ctx context.Context, input *CancelScrapeInput) (*CancelScrapeOutput, error) {
	job, err := h.scrapeSvc.CancelJob(ctx, input.ID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return nil, huma.Error404NotFound("job not found")
		}
		return nil, huma.Error500InternalServerError("failed to cancel job: " + err.Error())
	}
	return &CancelScrapeOutput{Body: ScrapeJobResponseBody{Job: job}}, nil
}

// ScrapeStatsOutput represents the job stats response.
type ScrapeStatsOutput struct {
	Body models.JobStats
}

// GetScrapeStats returns live aggregate counts over all scrape jobs.
func (h *ScrapeHandler) GetScrapeStats(ctx context.Context, input *struct{}) (*ScrapeStatsOutput, error) {
	stats, err := h.scrapeSvc.GetStats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get stats: " + err.Error())
	}
	return &ScrapeStatsOutput{Body: *stats}, nil
}
