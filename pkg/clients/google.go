package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/googleai"
)

// DefaultGoogleModel is used when the provider is google and no model is configured.
const DefaultGoogleModel = "gemini-3-flash-preview"

func GoogleAi(ctx context.Context, apiKey, model string) (*googleai.GoogleAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google provider requires GOOGLE_API_KEY")
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to init google ai: %w", err)
	}
	return llm, nil
}
