package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"review-insights-platform/models"
)

// ErrTaskNotFound is returned for unknown or expired task ids
var ErrTaskNotFound = errors.New("task not found")

// TaskStatus is the externally visible state of a scrape task
type TaskStatus struct {
	ID          string                 `json:"id"`
	State       string                 `json:"state"`
	LastError   string                 `json:"last_error,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Result      *models.ScrapeResponse `json:"result,omitempty"`
}

// Client enqueues scrape tasks and reads their results back
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	timeout   time.Duration
}

// NewClient creates a queue client; timeout is the scraper timeout
func NewClient(opt asynq.RedisConnOpt, timeout time.Duration) *Client {
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		timeout:   timeout,
	}
}

// EnqueueScrape validates req and queues it, returning the task id
func (c *Client) EnqueueScrape(ctx context.Context, req models.ScrapeRequest, requestID string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	task, err := NewScrapeTask(req, requestID, c.timeout)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// TaskStatus looks a scrape task up by id
func (c *Client) TaskStatus(id string) (*TaskStatus, error) {
	info, err := c.inspector.GetTaskInfo(QueueDefault, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return statusFromInfo(info), nil
}

func statusFromInfo(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{ID: info.ID, State: info.State.String(), LastError: info.LastErr}
	if !info.CompletedAt.IsZero() {
		completed := info.CompletedAt
		status.CompletedAt = &completed
	}
	if len(info.Result) > 0 {
		var resp models.ScrapeResponse
		if err := json.Unmarshal(info.Result, &resp); err == nil {
			status.Result = &resp
		}
	}
	return status
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}
