package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-insights-platform/internal/config"
	"review-insights-platform/models"
	"review-insights-platform/utils"
)

type stubScraper struct {
	req       models.ScrapeRequest
	requestID string
	resp      *models.ScrapeResponse
	err       error
}

func (s *stubScraper) Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error) {
	s.req = req
	s.requestID = utils.RequestIDFromContext(ctx)
	return s.resp, s.err
}

func TestNewScrapeTask(t *testing.T) {
	req := models.ScrapeRequest{Platform: models.PlatformN11, Search: &models.SearchTermRequest{Term: "mouse", MaxProducts: 3}}
	task, err := NewScrapeTask(req, "req-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TaskScrape, task.Type())

	var payload ScrapePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, req, payload.Request)
	assert.Equal(t, "req-1", payload.RequestID)
}

func TestProcessScrapeRunsOrchestrator(t *testing.T) {
	stub := &stubScraper{resp: &models.ScrapeResponse{Success: true, TotalReviews: 3}}
	p := NewTaskProcessor(stub)

	req := models.ScrapeRequest{Platform: models.PlatformTrendyol, Search: &models.SearchTermRequest{Term: "iphone"}}
	task, err := NewScrapeTask(req, "req-42", time.Minute)
	require.NoError(t, err)

	require.NoError(t, p.ProcessScrape(context.Background(), task))
	assert.Equal(t, req, stub.req)
	assert.Equal(t, "req-42", stub.requestID)
}

func TestProcessScrapeFailures(t *testing.T) {
	p := NewTaskProcessor(&stubScraper{})
	err := p.ProcessScrape(context.Background(), asynq.NewTask(TaskScrape, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	p = NewTaskProcessor(&stubScraper{
		resp: &models.ScrapeResponse{Error: "platform: unsupported"},
		err:  &models.ValidationError{Field: "platform", Message: "unsupported"},
	})
	task, err := NewScrapeTask(models.ScrapeRequest{Platform: "ebay"}, "", time.Minute)
	require.NoError(t, err)
	err = p.ProcessScrape(context.Background(), task)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	timeout := errors.New("scraping timeout")
	p = NewTaskProcessor(&stubScraper{resp: &models.ScrapeResponse{Timeout: true}, err: timeout})
	task, err = NewScrapeTask(models.ScrapeRequest{Platform: models.PlatformN11, Search: &models.SearchTermRequest{Term: "x"}}, "", time.Minute)
	require.NoError(t, err)
	err = p.ProcessScrape(context.Background(), task)
	assert.ErrorIs(t, err, timeout)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestRedisConnOpt(t *testing.T) {
	opt, err := RedisConnOpt(&config.Config{RedisURL: "redis://:secret@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)

	opt, err = RedisConnOpt(&config.Config{RedisURL: "localhost:6379", RedisDB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, 1, opt.DB)
}

func TestStatusFromInfo(t *testing.T) {
	result, err := json.Marshal(models.ScrapeResponse{Success: true, TotalReviews: 9})
	require.NoError(t, err)
	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	status := statusFromInfo(&asynq.TaskInfo{ID: "t1", State: asynq.TaskStateCompleted, Result: result, CompletedAt: done})
	assert.Equal(t, "completed", status.State)
	require.NotNil(t, status.Result)
	assert.Equal(t, 9, status.Result.TotalReviews)
	require.NotNil(t, status.CompletedAt)
	assert.Equal(t, done, *status.CompletedAt)

	status = statusFromInfo(&asynq.TaskInfo{ID: "t2", State: asynq.TaskStatePending})
	assert.Equal(t, "pending", status.State)
	assert.Nil(t, status.Result)
	assert.Nil(t, status.CompletedAt)
}
