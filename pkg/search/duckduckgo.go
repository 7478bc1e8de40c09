package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

const duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

var (
	ddgResultSel  = cascadia.MustCompile("div.result")
	ddgTitleSel   = cascadia.MustCompile("a.result__a")
	ddgSnippetSel = cascadia.MustCompile(".result__snippet")
)

// DuckDuckGoProvider scrapes the keyless HTML endpoint.
type DuckDuckGoProvider struct {
	Client   Doer
	Fetcher  *Fetcher
	Endpoint string
}

func (p *DuckDuckGoProvider) Name() string { return DuckDuckGo }

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int, fetchFullPage bool) (*Results, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults(DuckDuckGo, false)
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+url.Values{"q": {query}}.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build duckduckgo request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	body, err := do(p.Client, req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}

	results, err := parseDuckDuckGo(body, maxResults)
	if err != nil {
		return nil, err
	}
	if fetchFullPage && p.Fetcher != nil {
		p.Fetcher.fill(ctx, results)
	}
	return &Results{Results: results}, nil
}

func parseDuckDuckGo(body []byte, maxResults int) ([]Result, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse duckduckgo html: %w", err)
	}

	var results []Result
	for _, node := range ddgResultSel.MatchAll(doc) {
		if len(results) >= maxResults {
			break
		}
		anchor := ddgTitleSel.MatchFirst(node)
		if anchor == nil {
			continue
		}
		link := resolveDuckDuckGoLink(attr(anchor, "href"))
		if link == "" {
			continue
		}
		r := Result{
			Title: collapseSpace(text(anchor)),
			URL:   link,
		}
		if snippet := ddgSnippetSel.MatchFirst(node); snippet != nil {
			r.Content = collapseSpace(text(snippet))
		}
		results = append(results, r)
	}
	return results, nil
}

// resolveDuckDuckGoLink unwraps "//duckduckgo.com/l/?uddg=<target>" redirects.
func resolveDuckDuckGoLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Host == "" || strings.HasSuffix(u.Host, "duckduckgo.com") {
		return ""
	}
	return u.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
