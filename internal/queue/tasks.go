package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"review-insights-platform/internal/config"
	"review-insights-platform/internal/logger"
	"review-insights-platform/models"
	"review-insights-platform/utils"
)

const (
	TaskScrape = "scrape:run"

	// QueueDefault is the only queue scrape tasks are placed on
	QueueDefault = "default"

	// ResultRetention keeps finished tasks around so their result can be read
	ResultRetention = 24 * time.Hour
)

// ScrapePayload is the body of a scrape task
type ScrapePayload struct {
	Request   models.ScrapeRequest `json:"request"`
	RequestID string               `json:"request_id,omitempty"`
}

// Scraper is the part of the orchestrator a worker needs
type Scraper interface {
	Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error)
}

// RedisConnOpt maps the REDIS_* settings onto asynq's connection options
func RedisConnOpt(cfg *config.Config) (asynq.RedisClientOpt, error) {
	opt, err := config.RedisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

// NewScrapeTask builds a scrape task. Scrapes are never retried
// automatically; timeout bounds the whole task including persistence.
func NewScrapeTask(req models.ScrapeRequest, requestID string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ScrapePayload{Request: req, RequestID: requestID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskScrape,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout+utils.LongTimeout),
		asynq.Queue(QueueDefault),
		asynq.Retention(ResultRetention),
	), nil
}

// TaskProcessor runs queued scrapes
type TaskProcessor struct {
	scraper Scraper
}

func NewTaskProcessor(scraper Scraper) *TaskProcessor {
	return &TaskProcessor{scraper: scraper}
}

// ProcessScrape runs one scrape and stores the response as the task result.
// A failed scrape still records its response before the error is returned.
func (p *TaskProcessor) ProcessScrape(ctx context.Context, t *asynq.Task) error {
	var payload ScrapePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	if payload.RequestID != "" {
		ctx = utils.WithRequestID(ctx, payload.RequestID)
	}
	logger.Info("Processing scrape task", "platform", string(payload.Request.Platform), "request_id", payload.RequestID)

	resp, err := p.scraper.Scrape(ctx, payload.Request)
	if resp != nil {
		if werr := writeResult(t, resp); werr != nil {
			logger.Warn("Failed to write scrape task result", "error", werr)
		}
	}
	if err != nil {
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func writeResult(t *asynq.Task, resp *models.ScrapeResponse) error {
	rw := t.ResultWriter()
	if rw == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = rw.Write(data)
	return err
}

// Register binds the task handlers to mux
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskScrape, p.ProcessScrape)
}
