package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"review-insights-platform/internal/config"
)

const (
	TypeScrapeCompleted = "scrape.completed"
	TypeScrapeFailed    = "scrape.failed"
)

// ScrapeEvent announces the outcome of one orchestrated scrape.
type ScrapeEvent struct {
	Type              string    `json:"type"`
	RequestID         string    `json:"request_id,omitempty"`
	Platform          string    `json:"platform"`
	SearchTerm        string    `json:"search_term,omitempty"`
	Success           bool      `json:"success"`
	TotalReviews      int       `json:"total_reviews"`
	ProductsProcessed int       `json:"products_processed"`
	Collections       []string  `json:"collections,omitempty"`
	Error             string    `json:"error,omitempty"`
	ErrorType         string    `json:"error_type,omitempty"`
	DurationMs        int64     `json:"duration_ms"`
	Timestamp         time.Time `json:"timestamp"`
}

// Publisher delivers scrape events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, evt ScrapeEvent) error
	Close() error
}

// NATSPublisher publishes events as JSON on a NATS core subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("review-insights-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	if subject == "" {
		subject = "reviews.scrape.events"
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, evt ScrapeEvent) error {
	if evt.Type == "" {
		return fmt.Errorf("invalid event: missing type")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ScrapeEvent) error { return nil }
func (NoopPublisher) Close() error                              { return nil }

// NewPublisher connects to NATS when NATS_URL is set and otherwise returns a
// NoopPublisher.
func NewPublisher(cfg *config.Config) (Publisher, error) {
	if cfg.NATSURL == "" {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
}
