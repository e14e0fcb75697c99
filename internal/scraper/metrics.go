package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for scraper runs.
type Metrics struct {
	Registry              *prometheus.Registry
	RunsTotal             *prometheus.CounterVec
	RunDuration           *prometheus.HistogramVec
	ParseStrategyTotal    *prometheus.CounterVec
	RecordsPersistedTotal prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "Total scraper runs by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_run_duration_seconds",
			Help:    "Wall-clock duration of scraper processes.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
		},
		[]string{"platform"},
	)
	parseStrategy := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_parse_strategy_total",
			Help: "Recovered scraper payloads by recovery strategy.",
		},
		[]string{"strategy"},
	)
	persisted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_persisted_total",
			Help: "Total summary records written to collections.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scrape errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(runs, runDuration, parseStrategy, persisted, errorsTotal)

	return &Metrics{
		Registry:              registry,
		RunsTotal:             runs,
		RunDuration:           runDuration,
		ParseStrategyTotal:    parseStrategy,
		RecordsPersistedTotal: persisted,
		ErrorsTotal:           errorsTotal,
	}
}

// IncRun counts a finished run.
func (m *Metrics) IncRun(platform, outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(platform, outcome).Inc()
}

// ObserveRun records how long a scraper process ran.
func (m *Metrics) ObserveRun(platform string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// IncStrategy counts which recovery step produced a payload.
func (m *Metrics) IncStrategy(strategy Strategy) {
	if m == nil {
		return
	}
	m.ParseStrategyTotal.WithLabelValues(string(strategy)).Inc()
}

// AddPersisted increments the persisted records counter.
func (m *Metrics) AddPersisted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsPersistedTotal.Add(float64(n))
}

// IncError increments the errors counter for err's type label.
func (m *Metrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(ErrorTypeLabel(err)).Inc()
}
