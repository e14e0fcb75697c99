package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"review-insights-platform/internal/ai"
	"review-insights-platform/internal/config"
	"review-insights-platform/internal/events"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/queue"
	"review-insights-platform/internal/scheduler"
	"review-insights-platform/internal/scraper"
	"review-insights-platform/internal/store"
	"review-insights-platform/internal/telemetry"
	"review-insights-platform/middleware"
	"review-insights-platform/routes"
	"review-insights-platform/services"
)

const serviceName = "review-insights-api"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.OTELEnabled {
		shutdown, err := telemetry.InitTracer(serviceName, cfg.OTELEndpoint, 1.0)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	st, closeStore, err := store.Open(cfg)
	if err != nil {
		log.Fatal("Failed to open storage:", err)
	}
	defer closeStore()

	publisher, err := events.NewPublisher(cfg)
	if err != nil {
		logger.Warn("Event publishing disabled", "error", err)
		publisher = events.NoopPublisher{}
	}
	defer publisher.Close()

	summarizer, err := ai.NewSummarizer(context.Background(), cfg)
	if err != nil {
		if !errors.Is(err, ai.ErrNotConfigured) {
			log.Fatal("Failed to create LLM client:", err)
		}
		logger.Warn("GEMINI_API_KEY not set, analysis endpoints will return 503")
		summarizer = nil
	}
	if closer, ok := summarizer.(io.Closer); ok {
		defer closer.Close()
	}

	scrapeMetrics := scraper.NewMetrics()
	registry := scraper.NewRegistry(cfg.ScraperInterpreter, cfg.ScraperScriptsDir)
	runner := scraper.NewRunner("")
	scrapeService := services.NewScrapeService(registry, runner, st, publisher, scrapeMetrics, cfg.ScraperTimeout)
	analysisService := services.NewAnalysisService(st, summarizer)
	exportService := services.NewExportService(st)

	// Redis backs rate limiting and the task queue; both are optional
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, rate limiting disabled", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var tasks routes.TaskQueue
	if cfg.QueueEnabled {
		opt, err := queue.RedisConnOpt(cfg)
		if err != nil {
			log.Fatal("Invalid Redis configuration:", err)
		}
		client := queue.NewClient(opt, cfg.ScraperTimeout)
		defer client.Close()
		tasks = client
		logger.Info("Async scraping enabled")
	}

	if len(cfg.RefreshTargets) > 0 {
		targets, err := scheduler.ParseTargets(cfg.RefreshTargets)
		if err != nil {
			log.Fatal("Invalid REFRESH_TARGETS:", err)
		}
		sched := scheduler.NewScheduler(scrapeService)
		if err := sched.Schedule(targets, cfg.RefreshInterval); err != nil {
			log.Fatal("Failed to schedule refresh jobs:", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.MaxBodyBytes))
	if cfg.OTELEnabled {
		router.Use(middleware.TracingMiddleware(serviceName))
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(telemetry.Default()))

	limiter := middleware.RateLimitMiddleware(rdb, cfg.RateLimitReqs, cfg.RateLimitWindow)

	// Setup routes
	routes.SetupHealthRoutes(router, st, scrapeMetrics.Registry)
	api := router.Group("/api")
	routes.SetupScrapeRoutes(api, scrapeService, tasks, limiter)
	routes.SetupReviewRoutes(api, st, exportService)
	routes.SetupAnalysisRoutes(api, analysisService, limiter)

	// Scrapes run for minutes, so only the header read is bounded
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// In-flight scrapes get the full scraper timeout to finish
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ScraperTimeout+30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
