package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyProvider calls the Tavily search API.
type TavilyProvider struct {
	Client   Doer
	APIKey   string
	Endpoint string
}

type tavilyRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent *string `json:"raw_content"`
	} `json:"results"`
}

func (p *TavilyProvider) Name() string { return Tavily }

func (p *TavilyProvider) Search(ctx context.Context, query string, maxResults int, fetchFullPage bool) (*Results, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("tavily search: TAVILY_API_KEY is not set")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults(Tavily, false)
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:             query,
		MaxResults:        maxResults,
		IncludeRawContent: fetchFullPage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	body, err := do(p.Client, req)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("tavily search: decode response: %w", err)
	}

	out := &Results{}
	for _, r := range parsed.Results {
		res := Result{Title: r.Title, URL: r.URL, Content: r.Content}
		if r.RawContent != nil {
			res.RawContent = *r.RawContent
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}
