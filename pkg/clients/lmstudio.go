package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LMStudio talks to LM Studio's OpenAI-compatible server. Local models tend to
// wrap JSON answers in prose, so JSON-mode responses are trimmed to the outer
// object before they reach the caller.
func LMStudio(baseURL, model string) (llms.Model, error) {
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
		openai.WithToken("lm-studio"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init lmstudio model %s: %w", model, err)
	}
	return &JSONCleaner{Model: llm}, nil
}

// JSONCleaner wraps a model and strips text around the JSON object when the
// call requested JSON mode.
type JSONCleaner struct {
	llms.Model
}

func (c *JSONCleaner) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	resp, err := c.Model.GenerateContent(ctx, messages, options...)
	if err != nil || resp == nil {
		return resp, err
	}

	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	if !opts.JSONMode {
		return resp, nil
	}

	for _, choice := range resp.Choices {
		if choice != nil {
			choice.Content = ExtractJSONObject(choice.Content)
		}
	}
	return resp, nil
}

// ExtractJSONObject returns the text between the first '{' and the last '}'.
// Text without such a pair is returned unchanged.
func ExtractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
