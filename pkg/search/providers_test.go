package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const ddgPage = `<html><body>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fqec&rut=abc">Quantum <b>error</b> correction</a></h2>
  <a class="result__snippet">Surface codes   protect qubits.</a>
</div>
<div class="result">
  <h2><a class="result__a" href="https://direct.example/page">Direct link</a></h2>
  <div class="result__snippet">Second snippet</div>
</div>
<div class="result">
  <h2><a class="result__a" href="https://third.example">Third</a></h2>
</div>
</body></html>`

func TestDuckDuckGoSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "qec codes" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	p := &DuckDuckGoProvider{Client: srv.Client(), Endpoint: srv.URL}
	res, err := p.Search(context.Background(), "qec codes", 2, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(res.Results))
	}

	first := res.Results[0]
	if first.URL != "https://example.com/qec" {
		t.Errorf("redirect not unwrapped: %q", first.URL)
	}
	if first.Title != "Quantum error correction" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Content != "Surface codes protect qubits." {
		t.Errorf("Content = %q", first.Content)
	}
	if res.Results[1].URL != "https://direct.example/page" {
		t.Errorf("second URL = %q", res.Results[1].URL)
	}
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}
		var req tavilyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.MaxResults != 1 || !req.IncludeRawContent {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"T","url":"https://t.example","content":"c","raw_content":"raw"},{"title":"U","url":"https://u.example","content":"d","raw_content":null}]}`))
	}))
	defer srv.Close()

	p := &TavilyProvider{Client: srv.Client(), APIKey: "key", Endpoint: srv.URL}
	res, err := p.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Results) != 2 || res.Results[0].RawContent != "raw" || res.Results[1].RawContent != "" {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestTavilyRequiresKey(t *testing.T) {
	p := &TavilyProvider{Client: http.DefaultClient}
	if _, err := p.Search(context.Background(), "q", 1, false); err == nil {
		t.Error("Search() without key should fail")
	}
}

func TestPerplexitySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"answer"}}],"citations":["https://a.example","https://b.example"]}`))
	}))
	defer srv.Close()

	p := &PerplexityProvider{Client: srv.Client(), APIKey: "key", Endpoint: srv.URL}
	res, err := p.Search(WithRound(context.Background(), 2), "q", 0, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(res.Results))
	}
	if res.Results[0].Title != "Perplexity Search 2, Source 1" || res.Results[0].Content != "answer" {
		t.Errorf("first result = %+v", res.Results[0])
	}
	if res.Results[1].Content != "See above for full content" || res.Results[1].RawContent != "" {
		t.Errorf("second result = %+v", res.Results[1])
	}
}

func TestSearxngSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"A","url":"https://a.example","content":"a"},{"title":"B","url":"https://b.example","content":"b"}]}`))
	}))
	defer srv.Close()

	p := &SearxngProvider{Client: srv.Client(), BaseURL: srv.URL + "/"}
	res, err := p.Search(context.Background(), "q", 1, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].URL != "https://a.example" {
		t.Errorf("results = %+v", res.Results)
	}
}

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <published>2024-01-01T00:00:00Z</published>
    <title>Surface
      Codes</title>
    <summary>  We study   surface codes. </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v1" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search_query"); got != "all:surface codes" {
			t.Errorf("search_query = %q", got)
		}
		_, _ = w.Write([]byte(arxivFeed))
	}))
	defer srv.Close()

	p := &ArxivProvider{Client: srv.Client(), Endpoint: srv.URL}
	res, err := p.Search(context.Background(), "surface codes", 3, true)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(res.Results))
	}
	r := res.Results[0]
	if r.Title != "Surface Codes" || r.URL != "http://arxiv.org/abs/2401.00001v1" || r.Content != "We study surface codes." {
		t.Errorf("result = %+v", r)
	}
	if !strings.Contains(r.RawContent, "Authors: Ada Lovelace, Alan Turing") {
		t.Errorf("RawContent = %q", r.RawContent)
	}
}

func TestProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := &ArxivProvider{Client: srv.Client(), Endpoint: srv.URL}
	_, err := p.Search(context.Background(), "q", 1, false)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Search() error = %v, want status 429", err)
	}
}

func TestResponseBodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	old := maxResponseBytes
	maxResponseBytes = 100
	defer func() { maxResponseBytes = old }()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	body, err := do(srv.Client(), req)
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if len(body) != 100 {
		t.Errorf("body length = %d, want 100", len(body))
	}
}

func TestFetcherExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Page</title></head><body><article><p>` +
			strings.Repeat("Readable paragraph text about qubits. ", 20) +
			`</p></article></body></html>`))
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client()}
	text, err := f.Fetch(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(text, "Readable paragraph text about qubits.") {
		t.Errorf("Fetch() = %q", text)
	}

	if _, err := f.Fetch(context.Background(), "not a url"); err == nil {
		t.Error("Fetch(invalid) should fail")
	}
}
