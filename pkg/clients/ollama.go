package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// Ollama returns a chat model served by a local Ollama daemon.
func Ollama(baseURL, model string) (*ollama.LLM, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init ollama model %s: %w", model, err)
	}
	return llm, nil
}
