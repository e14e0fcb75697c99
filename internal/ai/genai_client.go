package ai

import (
	"context"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	"review-insights-platform/internal/telemetry"
)

// GenAIClient generates analyses through the Google generative AI SDK.
type GenAIClient struct {
	client *genai.Client
	model  string
	guard  *guard
}

var _ Summarizer = (*GenAIClient)(nil)

func NewGenAIClient(ctx context.Context, apiKey, model string, rpm int) (*GenAIClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GenAIClient{
		client: client,
		model:  model,
		guard:  newGuard("GeminiSDK", rpm),
	}, nil
}

func (gc *GenAIClient) Summarize(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "gemini.sdk.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimateTokens(prompt)),
		attribute.String("gemini.model", gc.model),
	)

	text, err := gc.guard.run(ctx, func() (string, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(float32(DefaultGenerationConfig.Temperature))
		model.SetTopK(int32(DefaultGenerationConfig.TopK))
		model.SetTopP(float32(DefaultGenerationConfig.TopP))
		model.SetMaxOutputTokens(int32(DefaultGenerationConfig.MaxOutputTokens))

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", &ServiceError{Message: err.Error()}
		}

		tokens := extractTokenUsage(resp)
		telemetry.Default().RecordTokensUsed(ctx, int64(tokens), gc.model)
		span.SetAttributes(attribute.Int("gemini.actual_tokens", tokens))

		text := responseText(resp)
		if text == "" {
			return "", &ServiceError{Message: "response has no candidate text"}
		}
		return text, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}
	return text, nil
}

// Extract token usage from Gemini response
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	return estimateTokens(responseText(resp))
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	return b.String()
}

// Close the client
func (gc *GenAIClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
