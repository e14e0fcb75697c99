package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron"

	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/queue"
	"review-insights-platform/models"
)

// RefreshTarget is one search scrape re-run on a fixed interval
type RefreshTarget struct {
	Platform models.Platform
	Term     string
}

// Tag identifies the target's job
func (t RefreshTarget) Tag() string {
	return fmt.Sprintf("refresh:%s:%s", t.Platform, t.Term)
}

// ParseTargets reads "platform:term" entries
func ParseTargets(entries []string) ([]RefreshTarget, error) {
	targets := make([]RefreshTarget, 0, len(entries))
	for _, entry := range entries {
		platform, term, ok := strings.Cut(strings.TrimSpace(entry), ":")
		term = strings.TrimSpace(term)
		if !ok || term == "" {
			return nil, fmt.Errorf("invalid refresh target %q: expected platform:term", entry)
		}
		p, err := models.ParsePlatform(platform)
		if err != nil {
			return nil, fmt.Errorf("invalid refresh target %q: %w", entry, err)
		}
		targets = append(targets, RefreshTarget{Platform: p, Term: term})
	}
	return targets, nil
}

// Scheduler re-runs search scrapes so that collections keep growing.
// Appends are idempotent, so a refresh that finds nothing new is harmless.
type Scheduler struct {
	scheduler *gocron.Scheduler
	scraper   queue.Scraper
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a refresh scheduler
func NewScheduler(scraper queue.Scraper) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &Scheduler{
		scheduler: s,
		scraper:   scraper,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Schedule registers every target to run each interval. A target's runs
// never overlap.
func (s *Scheduler) Schedule(targets []RefreshTarget, interval time.Duration) error {
	for _, target := range targets {
		target := target
		_, err := s.scheduler.Every(interval).
			Tag(target.Tag()).
			SingletonMode().
			WaitForSchedule().
			Do(func() { s.refresh(target) })
		if err != nil {
			return fmt.Errorf("schedule %s: %w", target.Tag(), err)
		}
	}
	return nil
}

func (s *Scheduler) refresh(target RefreshTarget) {
	log := logger.With("platform", string(target.Platform), "term", target.Term)
	log.Info("Running scheduled refresh")

	resp, err := s.scraper.Scrape(s.ctx, models.ScrapeRequest{
		Platform: target.Platform,
		Search:   &models.SearchTermRequest{Term: target.Term},
	})
	if err != nil {
		log.Error("Scheduled refresh failed", "error", err)
		return
	}
	log.Info("Scheduled refresh completed",
		"total_reviews", resp.TotalReviews,
		"collections", resp.SavedCollections)
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

// Tags lists the scheduled jobs
func (s *Scheduler) Tags() []string {
	var tags []string
	for _, job := range s.scheduler.Jobs() {
		tags = append(tags, job.Tags()...)
	}
	return tags
}
