package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SearxngProvider queries a self-hosted SearXNG instance through its JSON API.
type SearxngProvider struct {
	Client  Doer
	BaseURL string
	Fetcher *Fetcher
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (p *SearxngProvider) Name() string { return Searxng }

func (p *SearxngProvider) Search(ctx context.Context, query string, maxResults int, fetchFullPage bool) (*Results, error) {
	if p.BaseURL == "" {
		return nil, fmt.Errorf("searxng search: SEARXNG_URL is not set")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults(Searxng, false)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	apiURL := strings.TrimRight(p.BaseURL, "/") + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build searxng request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := do(p.Client, req)
	if err != nil {
		return nil, fmt.Errorf("searxng search: %w", err)
	}

	var parsed searxngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("searxng search: decode response: %w", err)
	}

	var results []Result
	for _, r := range parsed.Results {
		if len(results) >= maxResults {
			break
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	if fetchFullPage && p.Fetcher != nil {
		p.Fetcher.fill(ctx, results)
	}
	return &Results{Results: results}, nil
}
