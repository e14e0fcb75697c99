package main

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"review-insights-platform/internal/config"
	"review-insights-platform/internal/events"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/queue"
	"review-insights-platform/internal/scraper"
	"review-insights-platform/internal/store"
	"review-insights-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required to run the worker")
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

	registry := scraper.NewRegistry(cfg.ScraperInterpreter, cfg.ScraperScriptsDir)
	runner := scraper.NewRunner("")
	scrapeService := services.NewScrapeService(registry, runner, st, publisher, scraper.NewMetrics(), cfg.ScraperTimeout)

	// Redis options for Asynq
	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueDefault: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
			Logger: asynqLogger{},
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(scrapeService)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting scrape worker",
		"concurrency", cfg.WorkerConcurrency,
		"queue", queue.QueueDefault,
		"redis", redisOpt.Addr,
		"storage", cfg.StorageBackend)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}

// asynqLogger routes asynq's own logging through the structured logger
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Logger.Debug(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Logger.Info(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Logger.Warn(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Logger.Error(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { log.Fatal(args...) }
