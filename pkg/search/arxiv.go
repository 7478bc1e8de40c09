package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []ArxivAuthor `xml:"author"`
	Link      []ArxivLink   `xml:"link"`
}

type ArxivAuthor struct {
	Name string `xml:"name"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// ArxivProvider queries the arXiv Atom API.
type ArxivProvider struct {
	Client   Doer
	Endpoint string
}

func (p *ArxivProvider) Name() string { return Arxiv }

func (p *ArxivProvider) Search(ctx context.Context, query string, maxResults int, fetchFullPage bool) (*Results, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults(Arxiv, false)
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = arxivEndpoint
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build arxiv request: %w", err)
	}
	body, err := do(p.Client, req)
	if err != nil {
		return nil, fmt.Errorf("arxiv search: %w", err)
	}
	slog.Debug("arxiv response received", "url", apiURL, "size", len(body))

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	out := &Results{}
	for _, entry := range feed.Entry {
		summary := collapseSpace(entry.Summary)
		r := Result{
			Title:   collapseSpace(entry.Title),
			URL:     entry.pageURL(),
			Content: summary,
		}
		if fetchFullPage {
			r.RawContent = entry.describe(summary)
		}
		out.Results = append(out.Results, r)
	}
	return out, nil
}

// pageURL prefers the abstract page, then the PDF.
func (e ArxivEntry) pageURL() string {
	var pdf string
	for _, link := range e.Link {
		if link.Type == "text/html" {
			return link.Href
		}
		if link.Type == "application/pdf" && pdf == "" {
			pdf = link.Href
		}
	}
	if e.ID != "" {
		return strings.TrimSpace(e.ID)
	}
	return pdf
}

func (e ArxivEntry) describe(summary string) string {
	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		names = append(names, strings.TrimSpace(a.Name))
	}

	var b strings.Builder
	if e.Published != "" {
		fmt.Fprintf(&b, "Published: %s\n", strings.TrimSpace(e.Published))
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "Summary: %s", summary)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
