package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"review-insights-platform/internal/telemetry"
)

type GeminiRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type Content struct {
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GeminiResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	Error         *APIError      `json:"error,omitempty"`
}

type Candidate struct {
	Content *Content `json:"content"`
}

type UsageMetadata struct {
	TotalTokenCount int `json:"totalTokenCount"`
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// DefaultGenerationConfig matches what the review analysis prompt expects.
var DefaultGenerationConfig = GenerationConfig{
	Temperature:     0.7,
	TopK:            40,
	TopP:            0.95,
	MaxOutputTokens: 8000,
}

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	APIKey     string
	APIURL     string
	HTTPClient *http.Client
	guard      *guard
}

var _ Summarizer = (*GeminiClient)(nil)

func NewGeminiClient(apiKey, apiURL string, rpm int) *GeminiClient {
	return &GeminiClient{
		APIKey: apiKey,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		guard: newGuard("GeminiAPI", rpm),
	}
}

// Summarize sends prompt as a single-part request and returns the first
// candidate's text.
func (g *GeminiClient) Summarize(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(attribute.Int("gemini.estimated_tokens", estimateTokens(prompt)))

	request := GeminiRequest{
		Contents:         []Content{{Parts: []Part{{Text: prompt}}}},
		GenerationConfig: &DefaultGenerationConfig,
	}

	text, err := g.guard.run(ctx, func() (string, error) {
		resp, err := g.makeRequest(ctx, request)
		if err != nil {
			return "", err
		}
		if resp.UsageMetadata != nil {
			telemetry.Default().RecordTokensUsed(ctx, int64(resp.UsageMetadata.TotalTokenCount), "rest")
			span.SetAttributes(attribute.Int("gemini.actual_tokens", resp.UsageMetadata.TotalTokenCount))
		}
		return ExtractResponseText(resp), nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}
	return text, nil
}

func (g *GeminiClient) makeRequest(ctx context.Context, request GeminiRequest) (*GeminiResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.APIURL+"?key="+g.APIKey, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var geminiResp GeminiResponse
	decodeErr := json.Unmarshal(body, &geminiResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && geminiResp.Error != nil {
			msg = geminiResp.Error.Message
		}
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "malformed response: " + decodeErr.Error()}
	}
	if geminiResp.Error != nil {
		return nil, &ServiceError{StatusCode: geminiResp.Error.Code, Message: geminiResp.Error.Message}
	}
	if ExtractResponseText(&geminiResp) == "" {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "response has no candidate text"}
	}

	return &geminiResp, nil
}

// ExtractResponseText returns the first candidate's first part.
func ExtractResponseText(response *GeminiResponse) string {
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil || len(response.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	return response.Candidates[0].Content.Parts[0].Text
}
