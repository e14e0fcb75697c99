package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"review-insights-platform/internal/config"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/telemetry"
)

// Summarizer turns a prompt into generated text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("llm service is not configured")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("llm service temporarily unavailable")
)

// ServiceError is a non-2xx response or a malformed envelope from the LLM API.
// Calls are not retried.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("llm service error: %s", e.Message)
	}
	return fmt.Sprintf("llm service error (status %d): %s", e.StatusCode, e.Message)
}

// guard applies the client-side rate limit and circuit breaker shared by all
// LLM clients.
type guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(name string, rpm int) *guard {
	if rpm <= 0 {
		rpm = 10
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			telemetry.Default().RecordCircuitBreakerState(name, to.String())
		},
	})

	// RPM limit with some buffer
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), burst)

	return &guard{breaker: breaker, limiter: limiter}
}

func (g *guard) run(ctx context.Context, call func() (string, error)) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return call()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// NewSummarizer builds the client selected by LLM_PROVIDER. It returns
// ErrNotConfigured when no API key is set.
func NewSummarizer(ctx context.Context, cfg *config.Config) (Summarizer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.LLMProvider {
	case config.LLMProviderGenAI:
		return NewGenAIClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMRPM)
	default:
		return NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiAPIURL, cfg.LLMRPM), nil
	}
}

// estimateTokens uses the rough 4 characters per token ratio.
func estimateTokens(text string) int {
	estimated := len(text) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
