package config

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve(Overrides{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if cfg.SearchAPI != "tavily" {
		t.Errorf("SearchAPI = %q, want tavily", cfg.SearchAPI)
	}
	if cfg.LocalLLM != "llama3.2" {
		t.Errorf("LocalLLM = %q, want llama3.2", cfg.LocalLLM)
	}
	if cfg.MaxWebResearchLoops != 3 {
		t.Errorf("MaxWebResearchLoops = %d, want 3", cfg.MaxWebResearchLoops)
	}
	if cfg.MaxValidationRetries != 1 {
		t.Errorf("MaxValidationRetries = %d, want 1", cfg.MaxValidationRetries)
	}
	if cfg.MinSourceRelevanceScore != 0.5 {
		t.Errorf("MinSourceRelevanceScore = %v, want 0.5", cfg.MinSourceRelevanceScore)
	}
	if !cfg.RequireValidSources || !cfg.StripThinkingTokens {
		t.Errorf("RequireValidSources/StripThinkingTokens should default to true")
	}
	if cfg.UseToolCalling || cfg.FetchFullPage {
		t.Errorf("UseToolCalling/FetchFullPage should default to false")
	}
	if cfg.MultiProvider() {
		t.Errorf("MultiProvider() = true with no search_apis")
	}
}

func TestResolvePrecedence(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		overrides Overrides
		wantAPI   string
		wantLoops int
	}{
		{
			name:      "Default only",
			wantAPI:   "tavily",
			wantLoops: 3,
		},
		{
			name:      "Environment beats default",
			env:       map[string]string{"SEARCH_API": "duckduckgo", "MAX_WEB_RESEARCH_LOOPS": "5"},
			wantAPI:   "duckduckgo",
			wantLoops: 5,
		},
		{
			name:      "Override beats environment",
			env:       map[string]string{"SEARCH_API": "duckduckgo", "MAX_WEB_RESEARCH_LOOPS": "5"},
			overrides: Overrides{SearchAPI: Ptr("arxiv"), MaxWebResearchLoops: Ptr(1)},
			wantAPI:   "arxiv",
			wantLoops: 1,
		},
		{
			name:      "Zero override is honored",
			env:       map[string]string{"MAX_WEB_RESEARCH_LOOPS": "5"},
			overrides: Overrides{MaxWebResearchLoops: Ptr(0)},
			wantAPI:   "tavily",
			wantLoops: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Resolve(tt.overrides)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if cfg.SearchAPI != tt.wantAPI {
				t.Errorf("SearchAPI = %q, want %q", cfg.SearchAPI, tt.wantAPI)
			}
			if cfg.MaxWebResearchLoops != tt.wantLoops {
				t.Errorf("MaxWebResearchLoops = %d, want %d", cfg.MaxWebResearchLoops, tt.wantLoops)
			}
		})
	}
}

func TestResolveSearchAPIs(t *testing.T) {
	t.Setenv("SEARCH_APIS", "Tavily, duckduckgo,,arxiv ")

	cfg, err := Resolve(Overrides{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := []string{"tavily", "duckduckgo", "arxiv"}
	if strings.Join(cfg.SearchAPIs, "|") != strings.Join(want, "|") {
		t.Errorf("SearchAPIs = %v, want %v", cfg.SearchAPIs, want)
	}

	cfg, err = Resolve(Overrides{SearchAPIs: []string{}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.MultiProvider() {
		t.Errorf("empty override should clear search_apis, got %v", cfg.SearchAPIs)
	}
}

func TestResolveRejectsPlaceholder(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		overrides Overrides
	}{
		{"Primary via override", nil, Overrides{LocalLLM: Ptr(PlaceholderModel)}},
		{"Primary via environment", map[string]string{"LOCAL_LLM": PlaceholderModel}, Overrides{}},
		{"Summarization model", nil, Overrides{SummarizationModel: Ptr(PlaceholderModel)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Resolve(tt.overrides)
			if err == nil {
				t.Fatal("Resolve() expected error for placeholder model")
			}
			if !strings.Contains(err.Error(), "placeholder") {
				t.Errorf("error %q does not mention placeholder", err)
			}
			var perr *PlaceholderModelError
			if !errors.As(err, &perr) {
				t.Errorf("error type = %T, want *PlaceholderModelError", err)
			}
		})
	}
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name      string
		overrides Overrides
	}{
		{"Negative loops", Overrides{MaxWebResearchLoops: Ptr(-1)}},
		{"Negative retries", Overrides{MaxValidationRetries: Ptr(-2)}},
		{"Score above one", Overrides{MinSourceRelevanceScore: Ptr(1.5)}},
		{"Unknown provider", Overrides{LLMProvider: Ptr("mystery")}},
		{"Empty model", Overrides{LocalLLM: Ptr("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(tt.overrides); err == nil {
				t.Errorf("Resolve(%s) expected error", tt.name)
			}
		})
	}
}

func TestResolveRejectsMalformedEnv(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"MAX_WEB_RESEARCH_LOOPS", "three"},
		{"MAX_VALIDATION_RETRIES", "1.5x"},
		{"MIN_SOURCE_RELEVANCE_SCORE", "high"},
		{"REQUIRE_VALID_SOURCES", "yes"},
		{"STRIP_THINKING_TOKENS", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Resolve(Overrides{})
			if err == nil {
				t.Fatalf("Resolve() with %s=%s expected error", tt.env, tt.value)
			}
			if !strings.Contains(err.Error(), tt.env) {
				t.Errorf("error %q does not name %s", err, tt.env)
			}
		})
	}
}

func TestResolveParsesEnvValues(t *testing.T) {
	t.Setenv("MAX_WEB_RESEARCH_LOOPS", " 5 ")
	t.Setenv("MIN_SOURCE_RELEVANCE_SCORE", "0.7")
	t.Setenv("REQUIRE_VALID_SOURCES", "false")

	cfg, err := Resolve(Overrides{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.MaxWebResearchLoops != 5 || cfg.MinSourceRelevanceScore != 0.7 || cfg.RequireValidSources {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestModelFallback(t *testing.T) {
	cfg, err := Resolve(Overrides{LocalLLM: Ptr("qwen3"), QueryModel: Ptr("phi4")})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := cfg.QueryModelName(); got != "phi4" {
		t.Errorf("QueryModelName() = %q, want phi4", got)
	}
	if got := cfg.SummarizationModelName(); got != "qwen3" {
		t.Errorf("SummarizationModelName() = %q, want qwen3", got)
	}
}

func TestOverridesMerge(t *testing.T) {
	base := Overrides{SearchAPI: Ptr("arxiv"), MaxWebResearchLoops: Ptr(2)}
	merged := base.Merge(Overrides{MaxWebResearchLoops: Ptr(4), SearchAPIs: []string{"tavily"}})

	if *merged.SearchAPI != "arxiv" {
		t.Errorf("SearchAPI = %q, want arxiv", *merged.SearchAPI)
	}
	if *merged.MaxWebResearchLoops != 4 {
		t.Errorf("MaxWebResearchLoops = %d, want 4", *merged.MaxWebResearchLoops)
	}
	if *base.MaxWebResearchLoops != 2 {
		t.Errorf("Merge mutated the receiver")
	}
	if len(merged.SearchAPIs) != 1 {
		t.Errorf("SearchAPIs = %v, want [tavily]", merged.SearchAPIs)
	}
}
