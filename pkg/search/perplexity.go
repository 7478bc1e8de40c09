package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	perplexityEndpoint = "https://api.perplexity.ai/chat/completions"
	perplexityModel    = "sonar-pro"
)

// PerplexityProvider asks Perplexity's online model and turns its citations
// into results. The answer text is attached to the first citation only.
type PerplexityProvider struct {
	Client   Doer
	APIKey   string
	Endpoint string
	Model    string
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityResponse struct {
	Choices []struct {
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func (p *PerplexityProvider) Name() string { return Perplexity }

func (p *PerplexityProvider) Search(ctx context.Context, query string, maxResults int, fetchFullPage bool) (*Results, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("perplexity search: PERPLEXITY_API_KEY is not set")
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = perplexityEndpoint
	}
	model := p.Model
	if model == "" {
		model = perplexityModel
	}

	payload, err := json.Marshal(perplexityRequest{
		Model: model,
		Messages: []perplexityMessage{
			{Role: "system", Content: "Search the web and provide factual information with sources."},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build perplexity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	body, err := do(p.Client, req)
	if err != nil {
		return nil, fmt.Errorf("perplexity search: %w", err)
	}

	var parsed perplexityResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("perplexity search: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("perplexity search: response has no choices")
	}

	content := parsed.Choices[0].Message.Content
	citations := parsed.Citations
	if len(citations) == 0 {
		citations = []string{"https://perplexity.ai"}
	}
	if maxResults > 0 && len(citations) > maxResults {
		citations = citations[:maxResults]
	}

	round := RoundFrom(ctx)
	out := &Results{}
	for i, link := range citations {
		r := Result{
			Title:   fmt.Sprintf("Perplexity Search %d, Source %d", round, i+1),
			URL:     link,
			Content: "See above for full content",
		}
		if i == 0 {
			r.Content = content
			r.RawContent = content
		}
		out.Results = append(out.Results, r)
	}
	return out, nil
}
