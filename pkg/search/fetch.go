package search

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

const userAgent = "Mozilla/5.0 (compatible; deep-researcher/1.0)"

// Fetcher downloads a page and reduces it to its main text.
type Fetcher struct {
	Client Doer
}

// Fetch returns the readable text of link.
func (f *Fetcher) Fetch(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	body, err := do(f.Client, req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", link, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", link, err)
	}
	return strings.TrimSpace(article.TextContent), nil
}

// fill sets RawContent on every result that lacks it. Pages that cannot be
// fetched keep an empty RawContent.
func (f *Fetcher) fill(ctx context.Context, results []Result) {
	for i := range results {
		if results[i].RawContent != "" {
			continue
		}
		text, err := f.Fetch(ctx, results[i].URL)
		if err != nil {
			slog.Debug("full page fetch failed", "url", results[i].URL, "error", err)
			continue
		}
		results[i].RawContent = text
	}
}
