// Package search normalizes web-search backends into one result schema and
// formats result sets for the research loop.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mikeboe/deep-researcher/pkg/config"
)

// Backend selectors.
const (
	DuckDuckGo = "duckduckgo"
	Tavily     = "tavily"
	Perplexity = "perplexity"
	Searxng    = "searxng"
	Arxiv      = "arxiv"
)

// Result is one normalized search hit. RawContent is empty when the backend
// returned no full-page text.
type Result struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Content    string `json:"content"`
	RawContent string `json:"raw_content,omitempty"`
}

// Results is the uniform output of every provider.
type Results struct {
	Results []Result `json:"results"`
}

// Provider is a single web-search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int, fetchFullPage bool) (*Results, error)
}

// Doer is the subset of *http.Client the providers need.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Factory resolves a backend selector to a provider.
type Factory func(name string) (Provider, error)

// UnsupportedProviderError names a backend selector nothing implements.
type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("Unsupported search API: %s", e.Name)
}

// New returns the provider for name, wired with cfg's credentials.
func New(name string, cfg config.Configuration, client Doer) (Provider, error) {
	if client == nil {
		client = http.DefaultClient
	}
	fetcher := &Fetcher{Client: client}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case DuckDuckGo:
		return &DuckDuckGoProvider{Client: client, Fetcher: fetcher}, nil
	case Tavily:
		return &TavilyProvider{Client: client, APIKey: cfg.TavilyAPIKey}, nil
	case Perplexity:
		return &PerplexityProvider{Client: client, APIKey: cfg.PerplexityAPIKey}, nil
	case Searxng:
		return &SearxngProvider{Client: client, BaseURL: cfg.SearxngURL, Fetcher: fetcher}, nil
	case Arxiv:
		return &ArxivProvider{Client: client}, nil
	default:
		return nil, &UnsupportedProviderError{Name: name}
	}
}

// NewFactory binds New to a configuration.
func NewFactory(cfg config.Configuration, client Doer) Factory {
	return func(name string) (Provider, error) {
		return New(name, cfg, client)
	}
}

// DefaultMaxResults is how many hits to request per backend. Aggregated
// rounds ask every backend for two.
func DefaultMaxResults(name string, multi bool) int {
	if multi {
		return 2
	}
	switch name {
	case Tavily:
		return 1
	default:
		return 3
	}
}

// Available lists the backends usable with cfg: keyless ones always, keyed
// ones once their credentials are present.
func Available(cfg config.Configuration) []string {
	names := []string{DuckDuckGo, Arxiv}
	if cfg.TavilyAPIKey != "" {
		names = append(names, Tavily)
	}
	if cfg.PerplexityAPIKey != "" {
		names = append(names, Perplexity)
	}
	if cfg.SearxngURL != "" {
		names = append(names, Searxng)
	}
	return names
}

type roundKey struct{}

// WithRound records the 1-based research round on ctx. Perplexity uses it to
// label its synthetic sources.
func WithRound(ctx context.Context, round int) context.Context {
	return context.WithValue(ctx, roundKey{}, round)
}

// RoundFrom returns the round stored by WithRound, or 1.
func RoundFrom(ctx context.Context) int {
	if n, ok := ctx.Value(roundKey{}).(int); ok && n > 0 {
		return n
	}
	return 1
}

// maxResponseBytes caps how much of a backend response is read.
var maxResponseBytes int64 = 10 << 20

func do(client Doer, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(body)), 300))
	}
	return body, nil
}
