package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"review-insights-platform/internal/events"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/scraper"
	"review-insights-platform/internal/store"
	"review-insights-platform/internal/telemetry"
	"review-insights-platform/models"
	"review-insights-platform/utils"
)

// ScrapeService runs one scraper per request and files the summary of each
// scraped product into the collection store.
type ScrapeService struct {
	registry  *scraper.Registry
	runner    scraper.ProcessRunner
	store     store.CollectionStore
	publisher events.Publisher
	metrics   *scraper.Metrics
	timeout   time.Duration
	now       func() time.Time
}

// NewScrapeService wires the orchestrator. publisher and metrics may be nil.
func NewScrapeService(registry *scraper.Registry, runner scraper.ProcessRunner, st store.CollectionStore, publisher events.Publisher, metrics *scraper.Metrics, timeout time.Duration) *ScrapeService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if timeout <= 0 {
		timeout = scraper.DefaultTimeout
	}
	return &ScrapeService{
		registry:  registry,
		runner:    runner,
		store:     st,
		publisher: publisher,
		metrics:   metrics,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Scrape validates req, runs the matching scraper, recovers its result and
// persists one summary record per successful product. The response is always
// non-nil; the error is nil on success and typed otherwise. Persistence
// failures are reported in PersistenceWarning and never fail the scrape.
//
// The caller's cancellation does not stop a running scraper; only the
// configured timeout does.
func (s *ScrapeService) Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error) {
	start := s.now()
	log := logger.With("request_id", utils.RequestIDFromContext(ctx), "platform", string(req.Platform))

	// VALIDATING
	inv, err := s.registry.Resolve(req)
	if err != nil {
		log.Warn("Rejected scrape request", "error", err)
		return s.finish(ctx, start, req, nil, &models.ScrapeResponse{Success: false, Error: err.Error()}, err)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "scrape.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("scrape.platform", string(inv.Platform)),
		attribute.String("scrape.mode", string(inv.Mode)),
		attribute.String("scrape.script", inv.Script),
	)
	log = log.With("mode", string(inv.Mode), "script", inv.Script)

	// RUNNING
	log.Info("Starting scraper", "args", inv.Args)
	out := s.runner.Run(context.WithoutCancel(ctx), inv.Executable, inv.Args, s.timeout)
	s.metrics.ObserveRun(string(inv.Platform), out.Duration)

	resp := &models.ScrapeResponse{Platform: string(inv.Platform), SearchTerm: inv.SearchTerm}

	switch {
	case out.StartErr != nil:
		err = &scraper.SpawnError{Executable: inv.Executable, Err: out.StartErr}
		resp.Error = err.Error()
		log.Error("Scraper failed to start", "error", out.StartErr)
		return s.finish(ctx, start, req, &inv, resp, err)
	case out.TimedOut:
		err = &scraper.TimeoutError{Executable: inv.Script, Timeout: s.timeout.String()}
		resp.Error = err.Error()
		resp.Timeout = true
		log.Error("Scraper timed out", "timeout", s.timeout.String(), "stdout_bytes", len(out.Stdout))
		return s.finish(ctx, start, req, &inv, resp, err)
	case out.Killed:
		err = fmt.Errorf("scraper %s was terminated before finishing", inv.Script)
		resp.Error = err.Error()
		return s.finish(ctx, start, req, &inv, resp, err)
	}

	if out.ExitCode != nil && *out.ExitCode != 0 {
		log.Warn("Scraper exited with non-zero status, parsing output anyway",
			"exit_code", *out.ExitCode, "stderr", scraper.Truncate(out.Stderr, scraper.DiagnosticLimit))
	}

	// PARSING
	result, strategy, err := scraper.Parse(out)
	if err != nil {
		var failure *scraper.ParseFailure
		if errors.As(err, &failure) {
			resp.RawOutput = failure.RawOutput
			resp.Stderr = failure.Stderr
		}
		resp.Error = err.Error()
		log.Error("Could not recover scraper output", "error", err)
		return s.finish(ctx, start, req, &inv, resp, err)
	}
	s.metrics.IncStrategy(strategy)
	span.SetAttributes(attribute.String("scrape.parse_strategy", string(strategy)))

	resp.TotalReviews = result.TotalReviews
	resp.ProductsProcessed = result.ProductsProcessed
	resp.Results = result.Results
	if result.SearchTerm != "" {
		resp.SearchTerm = result.SearchTerm
	}

	if !result.Success {
		err = &scraper.ScraperError{Message: result.Error}
		resp.Error = err.Error()
		log.Warn("Scraper reported failure", "error", result.Error)
		return s.finish(ctx, start, req, &inv, resp, err)
	}

	// PERSISTING
	persistCtx, cancel := utils.Detached(ctx, utils.LongTimeout)
	defer cancel()
	saved, persistErrs := s.persist(persistCtx, inv, result)
	resp.SavedCollections = saved
	if len(persistErrs) > 0 {
		msgs := make([]string, len(persistErrs))
		for i, pe := range persistErrs {
			msgs[i] = pe.Error()
			s.metrics.IncError(pe)
			log.Error("Failed to persist scrape summary", "collection", pe.Collection, "error", pe.Err)
		}
		resp.PersistenceWarning = strings.Join(msgs, "; ")
	}

	resp.Success = true
	log.Info("Scrape completed",
		"total_reviews", resp.TotalReviews,
		"products_processed", resp.ProductsProcessed,
		"collections", saved,
		"parse_strategy", string(strategy))
	return s.finish(ctx, start, req, &inv, resp, nil)
}

// persist appends one summary record per successful product with reviews.
// Records are grouped so each collection is appended once.
func (s *ScrapeService) persist(ctx context.Context, inv scraper.Invocation, result *models.ScrapeResult) ([]string, []*scraper.PersistenceError) {
	now := s.now()
	timestamp := models.FormatTimestamp(now)
	millis := now.UnixMilli()

	var order []string
	batches := map[string][]models.ReviewRecord{}
	usedIDs := map[string]int{}

	for _, p := range result.Results {
		if !p.Success || p.TotalReviews <= 0 {
			continue
		}
		name := s.collectionFor(inv, p)

		id := fmt.Sprintf("%s_%d", name, millis)
		if n := usedIDs[id]; n > 0 {
			usedIDs[id] = n + 1
			id = fmt.Sprintf("%s_%d", id, n+1)
		} else {
			usedIDs[id] = 1
		}

		platform := p.Platform
		if platform == "" {
			platform = string(inv.Platform)
		}
		if _, ok := batches[name]; !ok {
			order = append(order, name)
		}
		batches[name] = append(batches[name], models.ReviewRecord{
			ID:             id,
			CollectionName: name,
			Platform:       platform,
			ProductName:    p.ProductName,
			Timestamp:      timestamp,
			ProductURL:     p.ProductURL,
			ProductPrice:   p.Price,
			TotalReviews:   p.TotalReviews,
			Price:          p.Price,
			SearchTerm:     firstNonEmpty(result.SearchTerm, inv.SearchTerm),
			CreatedAt:      timestamp,
			LastUpdated:    timestamp,
		})
	}

	var saved []string
	var errs []*scraper.PersistenceError
	for _, name := range order {
		res, err := s.store.Append(ctx, name, batches[name])
		if err != nil {
			errs = append(errs, &scraper.PersistenceError{Collection: name, Err: err})
			continue
		}
		s.metrics.AddPersisted(res.Added)
		saved = append(saved, name)
	}
	return saved, errs
}

// collectionFor prefers the scraper's own collection name and otherwise
// derives one from the search term or product name.
func (s *ScrapeService) collectionFor(inv scraper.Invocation, p models.ProductResult) string {
	if name := scraper.SanitizeCollectionName(p.CollectionName); name != "" {
		return name
	}
	return scraper.DeriveCollectionName(firstNonEmpty(inv.SearchTerm, p.ProductName), inv.Platform)
}

// finish records metrics, publishes the outcome event and closes the span.
func (s *ScrapeService) finish(ctx context.Context, start time.Time, req models.ScrapeRequest, inv *scraper.Invocation, resp *models.ScrapeResponse, err error) (*models.ScrapeResponse, error) {
	elapsed := s.now().Sub(start)
	platform := string(req.Platform)
	if inv != nil {
		platform = string(inv.Platform)
	}

	outcome := "success"
	evtType := events.TypeScrapeCompleted
	if err != nil {
		outcome = scraper.ErrorTypeLabel(err)
		evtType = events.TypeScrapeFailed
		s.metrics.IncError(err)
	}
	s.metrics.IncRun(platform, outcome)
	telemetry.Default().RecordScrape(ctx, platform, outcome, elapsed)

	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	if inv != nil {
		evt := events.ScrapeEvent{
			Type:              evtType,
			RequestID:         utils.RequestIDFromContext(ctx),
			Platform:          platform,
			SearchTerm:        resp.SearchTerm,
			Success:           resp.Success,
			TotalReviews:      resp.TotalReviews,
			ProductsProcessed: resp.ProductsProcessed,
			Collections:       resp.SavedCollections,
			Error:             resp.Error,
			DurationMs:        elapsed.Milliseconds(),
			Timestamp:         s.now().UTC(),
		}
		if err != nil {
			evt.ErrorType = outcome
		}
		if pubErr := s.publisher.Publish(context.WithoutCancel(ctx), evt); pubErr != nil {
			logger.Warn("Failed to publish scrape event", "type", evtType, "error", pubErr)
		}
	}
	return resp, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
