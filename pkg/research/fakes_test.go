package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-researcher/pkg/search"
)

// scriptedModel answers each prompt kind with a canned response and records
// what it was asked.
type scriptedModel struct {
	mu sync.Mutex

	query      func() *llms.ContentResponse
	reflection func() *llms.ContentResponse
	judge      func(sources string) (string, error)
	summary    func(request string) string

	calls            map[string]int
	summaryRequests  []string
	judgeInputs      []string
	summaryErr       error
	queryErr         error
	lastQueryOptions llms.CallOptions
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{
		query:      func() *llms.ContentResponse { return textResponse(`{"query":"initial query","rationale":"r"}`) },
		reflection: func() *llms.ContentResponse { return textResponse(`{"follow_up_query":"follow up","knowledge_gap":"gap"}`) },
		judge: func(string) (string, error) {
			return `{"sources":[],"recommendation":"proceed"}`, nil
		},
		summary: func(string) string { return "a summary" },
		calls:   make(map[string]int),
	}
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}
}

func toolResponse(name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           "call_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

func messageText(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	system := messageText(messages[0])
	human := messageText(messages[len(messages)-1])

	switch {
	case strings.Contains(system, "targeted web search query"):
		m.calls["query"]++
		var opts llms.CallOptions
		for _, o := range options {
			o(&opts)
		}
		m.lastQueryOptions = opts
		if m.queryErr != nil {
			return nil, m.queryErr
		}
		return m.query(), nil
	case strings.Contains(system, "research quality assessor"):
		m.calls["judge"]++
		m.judgeInputs = append(m.judgeInputs, human)
		out, err := m.judge(human)
		if err != nil {
			return nil, err
		}
		return textResponse(out), nil
	case strings.Contains(system, "high-quality summary"):
		m.calls["summary"]++
		m.summaryRequests = append(m.summaryRequests, human)
		if m.summaryErr != nil {
			return nil, m.summaryErr
		}
		return textResponse(m.summary(human)), nil
	case strings.Contains(system, "expert research assistant"):
		m.calls["reflection"]++
		return m.reflection(), nil
	default:
		return nil, errors.New("unexpected prompt")
	}
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func (m *scriptedModel) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// fakeProvider returns a fresh, numbered set of results per call unless
// results is set.
type fakeProvider struct {
	name    string
	results func(call int, query string) (*search.Results, error)
	queries []string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(ctx context.Context, query string, maxResults int, fetchFullPage bool) (*search.Results, error) {
	p.queries = append(p.queries, query)
	return p.results(len(p.queries), query)
}

func numberedProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, results: func(call int, query string) (*search.Results, error) {
		return &search.Results{Results: []search.Result{{
			Title:   fmt.Sprintf("%s result %d", name, call),
			URL:     fmt.Sprintf("https://%s.example/%d", name, call),
			Content: fmt.Sprintf("content %d from %s", call, name),
		}}}, nil
	}}
}

func factoryOf(providers ...*fakeProvider) search.Factory {
	byName := make(map[string]*fakeProvider)
	for _, p := range providers {
		byName[p.name] = p
	}
	return func(name string) (search.Provider, error) {
		if p, ok := byName[name]; ok {
			return p, nil
		}
		return nil, &search.UnsupportedProviderError{Name: name}
	}
}

// judgeScoring scores every source URL found in the judge prompt.
func judgeScoring(score func(url string) float64) func(string) (string, error) {
	return func(prompt string) (string, error) {
		var parts []string
		for _, line := range strings.Split(prompt, "\n") {
			if !strings.HasPrefix(line, "URL: ") {
				continue
			}
			u := strings.TrimPrefix(line, "URL: ")
			parts = append(parts, fmt.Sprintf(`{"url":%q,"title":"t","relevance_score":%v,"reason":"r","source_type":"web"}`, u, score(u)))
		}
		return fmt.Sprintf(`{"sources":[%s],"overall_quality":"medium","recommendation":"proceed"}`, strings.Join(parts, ",")), nil
	}
}
