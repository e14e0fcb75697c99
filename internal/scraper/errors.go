package scraper

import (
	"errors"
	"fmt"

	"review-insights-platform/models"
)

// ErrNoJSON is the message surfaced when no payload could be recovered
var ErrNoJSON = errors.New("no valid JSON found")

// SpawnError indicates the scraper executable could not be started.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start scraper %s: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates the scraper exceeded its time budget.
type TimeoutError struct {
	Executable string
	Timeout    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scraping timeout: %s did not finish within %s", e.Executable, e.Timeout)
}

// ParseFailure carries truncated process output when no payload could be recovered.
type ParseFailure struct {
	Reason    error
	RawOutput string
	Stderr    string
}

func (e *ParseFailure) Error() string {
	if e.Reason == nil || errors.Is(e.Reason, ErrNoJSON) {
		return ErrNoJSON.Error()
	}
	return fmt.Sprintf("%s: %v", ErrNoJSON, e.Reason)
}

func (e *ParseFailure) Unwrap() error {
	if e.Reason == nil {
		return ErrNoJSON
	}
	return e.Reason
}

// ScraperError is a well-formed envelope in which the scraper reported its own failure.
type ScraperError struct {
	Message string
}

func (e *ScraperError) Error() string {
	if e.Message == "" {
		return "scraper reported failure"
	}
	return e.Message
}

// PersistenceError indicates the collection store rejected or failed a write.
type PersistenceError struct {
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrorTypeLabel maps an error to a short label for metrics and logs.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "none"
	}
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		return "validation"
	}
	var spawn *SpawnError
	if errors.As(err, &spawn) {
		return "spawn"
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var parse *ParseFailure
	if errors.As(err, &parse) {
		return "parse"
	}
	var scraperErr *ScraperError
	if errors.As(err, &scraperErr) {
		return "scraper"
	}
	var persistence *PersistenceError
	if errors.As(err, &persistence) {
		return "persistence"
	}
	return "other"
}
