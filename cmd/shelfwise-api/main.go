// Package main is the entry point for the shelfwise-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"

	"github.com/shelfwise/shelfwise-api/internal/config"
	"github.com/shelfwise/shelfwise-api/internal/database"
	"github.com/shelfwise/shelfwise-api/internal/http/handlers"
	"github.com/shelfwise/shelfwise-api/internal/http/mw"
	"github.com/shelfwise/shelfwise-api/internal/logging"
	"github.com/shelfwise/shelfwise-api/internal/repository"
	"github.com/shelfwise/shelfwise-api/internal/scraper"
	"github.com/shelfwise/shelfwise-api/internal/service"
	"github.com/shelfwise/shelfwise-api/internal/shutdown"
	"github.com/shelfwise/shelfwise-api/internal/version"
	"github.com/shelfwise/shelfwise-api/internal/worker"
)

func main() {
	// Local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting shelfwise-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if schemaVersion, err := database.SchemaVersion(db); err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		logger.Info("database schema ready", "schema_version", schemaVersion)
	}

	repos := repository.NewRepositories(db)

	// Sweep jobs a previous process left in running state: requeue those
	// with attempts remaining, fail the rest.
	requeued, failed, err := repos.Jobs.RequeueInterrupted(context.Background(), cfg.RetryMaxAttempts)
	if err != nil {
		logger.Warn("failed to sweep interrupted jobs", "error", err)
	} else if requeued > 0 || failed > 0 {
		logger.Info("swept interrupted jobs", "requeued", requeued, "failed", failed)
	}

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	fetcher := scraper.NewSiteFetcher(scraper.SiteFetcherConfig{
		Selectors: scraper.DefaultSelectors(),
		Timeout:   cfg.FetchTimeout,
		UserAgent: cfg.FetchUserAgent,
	}, logger)

	jobWorker := worker.New(
		repos.Jobs,
		fetcher,
		services.Reconcile,
		services.Storage,
		worker.Config{
			PollInterval: cfg.WorkerPollInterval,
			Concurrency:  cfg.WorkerConcurrency,
			Retry: worker.RetryPolicy{
				MaxAttempts: cfg.RetryMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
			},
		},
		logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	jobWorker.Start(ctx)

	go services.Cleanup.RunScheduledCleanup(ctx)

	// Optional scale-to-zero: signal shutdown once traffic and the job queue
	// have both been quiet for IDLE_TIMEOUT.
	idleMonitor := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:   cfg.IdleTimeout,
		SkipPaths: []string{"/healthz", "/readyz"},
		HasWork: func() bool {
			stats, err := repos.Jobs.Stats(context.Background())
			if err != nil {
				// Assume busy on error rather than shutting down mid-run.
				return true
			}
			return stats.PendingJobs > 0 || stats.RunningJobs > 0
		},
		Logger: logger,
	})
	idleMonitor.Start()

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(idleMonitor.Middleware)
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:      30 * time.Second,
		SkipPatterns: []string{"/healthz", "/readyz"},
	}))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB): trigger payloads are tiny.
	router.Use(middleware.RequestSize(1 * 1024 * 1024))
	router.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))

	humaConfig := huma.DefaultConfig("Shelfwise API", v.Version)
	humaConfig.Info.Description = "Retail catalog ingestion API: scrape jobs, retry/backoff, and an idempotent reconciled catalog."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	api := humachi.New(router, humaConfig)

	// Probes stay out of the docs.
	hiddenConfig := huma.DefaultConfig("Shelfwise API", v.Version)
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	huma.Get(api, "/api/v1/health", handlers.HealthCheck)
	huma.Get(hiddenAPI, "/healthz", handlers.Livez)
	huma.Get(hiddenAPI, "/readyz", handlers.NewReadyzHandler(db).Readyz)

	scrapeHandler := handlers.NewScrapeHandler(services.Scrape, cfg.BaseURL)
	huma.Post(api, "/api/v1/scrapes", scrapeHandler.CreateScrape)
	huma.Get(api, "/api/v1/scrapes", scrapeHandler.ListScrapes)
	huma.Get(api, "/api/v1/scrapes/stats", scrapeHandler.GetScrapeStats)
	huma.Get(api, "/api/v1/scrapes/{id}", scrapeHandler.GetScrape)
	huma.Post(api, "/api/v1/scrapes/{id}/cancel", scrapeHandler.CancelScrape)

	catalogHandler := handlers.NewCatalogHandler(services.Catalog)
	huma.Get(api, "/api/v1/catalog/navigations", catalogHandler.ListNavigations)
	huma.Get(api, "/api/v1/catalog/categories", catalogHandler.ListCategories)
	huma.Get(api, "/api/v1/catalog/products", catalogHandler.ListProducts)
	huma.Get(api, "/api/v1/catalog/products/{sourceID}", catalogHandler.GetProduct)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown: stop the worker before the listener so in-flight
	// jobs finish or requeue cleanly.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idleMonitor.Idle():
			logger.Info("shutting down server", "reason", "idle timeout")
		}

		idleMonitor.Stop()
		cancel()
		jobWorker.StopWithTimeout(cfg.WorkerShutdownGracePeriod)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "source", cfg.SourceBaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
