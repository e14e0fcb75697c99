package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "review-insights-platform"

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	ScrapeRuns          metric.Int64Counter
	ScrapeDuration      metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	DatabaseOperations  metric.Int64Counter
	DatabaseDuration    metric.Float64Histogram
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns process-wide metrics bound to the global meter provider.
// Instruments created before a provider is installed forward to it later.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := InitMetrics()
		if err != nil {
			otel.Handle(err)
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	scrapeRuns, err := meter.Int64Counter(
		"scrape.runs.total",
		metric.WithDescription("Total scrape requests by platform and outcome"),
	)
	if err != nil {
		return nil, err
	}

	scrapeDuration, err := meter.Float64Histogram(
		"scrape.duration",
		metric.WithDescription("End-to-end scrape duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	databaseOperations, err := meter.Int64Counter(
		"database.operations.total",
		metric.WithDescription("Total database operations"),
	)
	if err != nil {
		return nil, err
	}

	databaseDuration, err := meter.Float64Histogram(
		"database.operation.duration",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		ScrapeRuns:          scrapeRuns,
		ScrapeDuration:      scrapeDuration,
		TokensUsed:          tokensUsed,
		CircuitBreakerState: circuitBreakerState,
		DatabaseOperations:  databaseOperations,
		DatabaseDuration:    databaseDuration,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(ctx context.Context, method, path, status string, duration float64) {
	if m.RequestCounter == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
}

// RecordScrape records one orchestrated scrape
func (m *Metrics) RecordScrape(ctx context.Context, platform, outcome string, duration time.Duration) {
	if m.ScrapeRuns == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("scrape.platform", platform),
		attribute.String("scrape.outcome", outcome),
	}

	m.ScrapeRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.ScrapeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(ctx context.Context, tokens int64, model string) {
	if m.TokensUsed == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(ctx, tokens, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m.CircuitBreakerState == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordDatabaseOperation records database operation metrics
func (m *Metrics) RecordDatabaseOperation(ctx context.Context, operation, collection string, duration time.Duration) {
	if m.DatabaseOperations == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.collection", collection),
	}

	m.DatabaseOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.DatabaseDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordDBOperation records a database operation on the default metrics
func RecordDBOperation(ctx context.Context, operation, collection string, duration time.Duration) {
	Default().RecordDatabaseOperation(ctx, operation, collection, duration)
}
