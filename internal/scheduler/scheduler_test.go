package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-insights-platform/models"
)

type countingScraper struct {
	requests []models.ScrapeRequest
	err      error
}

func (c *countingScraper) Scrape(_ context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return &models.ScrapeResponse{Error: c.err.Error()}, c.err
	}
	return &models.ScrapeResponse{Success: true}, nil
}

func TestParseTargets(t *testing.T) {
	targets, err := ParseTargets([]string{"trendyol:iphone 15", " N11 : kulaklık "})
	require.NoError(t, err)
	assert.Equal(t, []RefreshTarget{
		{Platform: models.PlatformTrendyol, Term: "iphone 15"},
		{Platform: models.PlatformN11, Term: "kulaklık"},
	}, targets)

	for _, bad := range []string{"trendyol", "trendyol:", "ebay:phone"} {
		_, err := ParseTargets([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestScheduleRegistersOneJobPerTarget(t *testing.T) {
	s := NewScheduler(&countingScraper{})
	defer s.Stop()

	targets := []RefreshTarget{
		{Platform: models.PlatformTrendyol, Term: "iphone"},
		{Platform: models.PlatformAmazon, Term: "kindle"},
	}
	require.NoError(t, s.Schedule(targets, time.Hour))
	assert.ElementsMatch(t, []string{"refresh:trendyol:iphone", "refresh:amazon:kindle"}, s.Tags())

	assert.Error(t, s.Schedule(targets[:1], time.Hour), "duplicate tags are rejected")
}

func TestRefreshRunsSearchScrape(t *testing.T) {
	scraper := &countingScraper{}
	s := NewScheduler(scraper)
	defer s.Stop()

	s.refresh(RefreshTarget{Platform: models.PlatformHepsiburada, Term: "mouse"})
	require.Len(t, scraper.requests, 1)
	req := scraper.requests[0]
	assert.Equal(t, models.PlatformHepsiburada, req.Platform)
	require.NotNil(t, req.Search)
	assert.Equal(t, "mouse", req.Search.Term)
	assert.Nil(t, req.Direct)

	scraper.err = errors.New("scraping timeout")
	s.refresh(RefreshTarget{Platform: models.PlatformHepsiburada, Term: "mouse"})
	assert.Len(t, scraper.requests, 2)
}
