package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-researcher/pkg/config"
)

// UnsupportedProviderError is returned for an unknown llm_provider value.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported llm provider: %s", e.Provider)
}

// New returns a model for the configured provider serving the given model name.
func New(ctx context.Context, cfg config.Configuration, model string) (llms.Model, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		return Ollama(cfg.OllamaBaseURL, model)
	case config.ProviderLMStudio:
		return LMStudio(cfg.LMStudioBaseURL, model)
	case config.ProviderGoogle:
		return GoogleAi(ctx, cfg.GoogleAPIKey, model)
	default:
		return nil, &UnsupportedProviderError{Provider: cfg.LLMProvider}
	}
}

// Models is the set of models a research run talks to.
type Models struct {
	Query      llms.Model
	Summarizer llms.Model
	Judge      llms.Model
}

// NewModels builds the query, summarization and judge models. Models sharing a
// name share a client.
func NewModels(ctx context.Context, cfg config.Configuration) (*Models, error) {
	cache := make(map[string]llms.Model)
	get := func(name string) (llms.Model, error) {
		if m, ok := cache[name]; ok {
			return m, nil
		}
		m, err := New(ctx, cfg, name)
		if err != nil {
			return nil, err
		}
		cache[name] = m
		return m, nil
	}

	judge, err := get(cfg.LocalLLM)
	if err != nil {
		return nil, err
	}
	query, err := get(cfg.QueryModelName())
	if err != nil {
		return nil, err
	}
	summarizer, err := get(cfg.SummarizationModelName())
	if err != nil {
		return nil, err
	}
	return &Models{Query: query, Summarizer: summarizer, Judge: judge}, nil
}
