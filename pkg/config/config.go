package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// PlaceholderModel is the model name shipped in sample env files. It must be
// replaced before a run can start.
const PlaceholderModel = "your_model_name"

// Keys double as JSON field names and, upper-cased, as environment variables.
const (
	KeySearchAPI               = "search_api"
	KeySearchAPIs              = "search_apis"
	KeyLLMProvider             = "llm_provider"
	KeyLocalLLM                = "local_llm"
	KeyQueryModel              = "query_model"
	KeySummarizationModel      = "summarization_model"
	KeyOllamaBaseURL           = "ollama_base_url"
	KeyLMStudioBaseURL         = "lmstudio_base_url"
	KeyGoogleAPIKey            = "google_api_key"
	KeyTavilyAPIKey            = "tavily_api_key"
	KeyPerplexityAPIKey        = "perplexity_api_key"
	KeySearxngURL              = "searxng_url"
	KeyMaxWebResearchLoops     = "max_web_research_loops"
	KeyMaxValidationRetries    = "max_validation_retries"
	KeyMinSourceRelevanceScore = "min_source_relevance_score"
	KeyRequireValidSources     = "require_valid_sources"
	KeyUseToolCalling          = "use_tool_calling"
	KeyFetchFullPage           = "fetch_full_page"
	KeyStripThinkingTokens     = "strip_thinking_tokens"
)

// LLM providers understood by pkg/clients.
const (
	ProviderOllama   = "ollama"
	ProviderLMStudio = "lmstudio"
	ProviderGoogle   = "google"
)

var defaults = map[string]any{
	KeySearchAPI:               "tavily",
	KeySearchAPIs:              "",
	KeyLLMProvider:             ProviderOllama,
	KeyLocalLLM:                "llama3.2",
	KeyQueryModel:              "",
	KeySummarizationModel:      "",
	KeyOllamaBaseURL:           "http://localhost:11434/",
	KeyLMStudioBaseURL:         "http://localhost:1234/v1",
	KeyGoogleAPIKey:            "",
	KeyTavilyAPIKey:            "",
	KeyPerplexityAPIKey:        "",
	KeySearxngURL:              "http://localhost:8888",
	KeyMaxWebResearchLoops:     3,
	KeyMaxValidationRetries:    1,
	KeyMinSourceRelevanceScore: 0.5,
	KeyRequireValidSources:     true,
	KeyUseToolCalling:          false,
	KeyFetchFullPage:           false,
	KeyStripThinkingTokens:     true,
}

// Configuration is the resolved, immutable settings for one research run.
type Configuration struct {
	SearchAPI               string   `json:"search_api"`
	SearchAPIs              []string `json:"search_apis,omitempty"`
	LLMProvider             string   `json:"llm_provider"`
	LocalLLM                string   `json:"local_llm"`
	QueryModel              string   `json:"query_model,omitempty"`
	SummarizationModel      string   `json:"summarization_model,omitempty"`
	OllamaBaseURL           string   `json:"ollama_base_url"`
	LMStudioBaseURL         string   `json:"lmstudio_base_url"`
	GoogleAPIKey            string   `json:"-"`
	TavilyAPIKey            string   `json:"-"`
	PerplexityAPIKey        string   `json:"-"`
	SearxngURL              string   `json:"searxng_url"`
	MaxWebResearchLoops     int      `json:"max_web_research_loops"`
	MaxValidationRetries    int      `json:"max_validation_retries"`
	MinSourceRelevanceScore float64  `json:"min_source_relevance_score"`
	RequireValidSources     bool     `json:"require_valid_sources"`
	UseToolCalling          bool     `json:"use_tool_calling"`
	FetchFullPage           bool     `json:"fetch_full_page"`
	StripThinkingTokens     bool     `json:"strip_thinking_tokens"`
}

// QueryModelName is the model used for query generation and reflection.
func (c Configuration) QueryModelName() string {
	if c.QueryModel != "" {
		return c.QueryModel
	}
	return c.LocalLLM
}

// SummarizationModelName is the model used to write the running summary.
func (c Configuration) SummarizationModelName() string {
	if c.SummarizationModel != "" {
		return c.SummarizationModel
	}
	return c.LocalLLM
}

// MultiProvider reports whether results are aggregated from several backends.
func (c Configuration) MultiProvider() bool {
	return len(c.SearchAPIs) > 0
}

// Overrides are caller-supplied values. A nil field leaves the environment or
// default value in place.
type Overrides struct {
	SearchAPI               *string  `json:"search_api,omitempty"`
	SearchAPIs              []string `json:"search_apis,omitempty"`
	LLMProvider             *string  `json:"llm_provider,omitempty"`
	LocalLLM                *string  `json:"local_llm,omitempty"`
	QueryModel              *string  `json:"query_model,omitempty"`
	SummarizationModel      *string  `json:"summarization_model,omitempty"`
	OllamaBaseURL           *string  `json:"ollama_base_url,omitempty"`
	LMStudioBaseURL         *string  `json:"lmstudio_base_url,omitempty"`
	SearxngURL              *string  `json:"searxng_url,omitempty"`
	MaxWebResearchLoops     *int     `json:"max_web_research_loops,omitempty"`
	MaxValidationRetries    *int     `json:"max_validation_retries,omitempty"`
	MinSourceRelevanceScore *float64 `json:"min_source_relevance_score,omitempty"`
	RequireValidSources     *bool    `json:"require_valid_sources,omitempty"`
	UseToolCalling          *bool    `json:"use_tool_calling,omitempty"`
	FetchFullPage           *bool    `json:"fetch_full_page,omitempty"`
	StripThinkingTokens     *bool    `json:"strip_thinking_tokens,omitempty"`
}

// Ptr returns a pointer to v, for filling Overrides.
func Ptr[T any](v T) *T {
	return &v
}

// Merge returns o with every field set in other taking precedence.
func (o Overrides) Merge(other Overrides) Overrides {
	merged := o
	pick(&merged.SearchAPI, other.SearchAPI)
	pick(&merged.LLMProvider, other.LLMProvider)
	pick(&merged.LocalLLM, other.LocalLLM)
	pick(&merged.QueryModel, other.QueryModel)
	pick(&merged.SummarizationModel, other.SummarizationModel)
	pick(&merged.OllamaBaseURL, other.OllamaBaseURL)
	pick(&merged.LMStudioBaseURL, other.LMStudioBaseURL)
	pick(&merged.SearxngURL, other.SearxngURL)
	pick(&merged.MaxWebResearchLoops, other.MaxWebResearchLoops)
	pick(&merged.MaxValidationRetries, other.MaxValidationRetries)
	pick(&merged.MinSourceRelevanceScore, other.MinSourceRelevanceScore)
	pick(&merged.RequireValidSources, other.RequireValidSources)
	pick(&merged.UseToolCalling, other.UseToolCalling)
	pick(&merged.FetchFullPage, other.FetchFullPage)
	pick(&merged.StripThinkingTokens, other.StripThinkingTokens)
	if other.SearchAPIs != nil {
		merged.SearchAPIs = append([]string(nil), other.SearchAPIs...)
	}
	return merged
}

func pick[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

func (o Overrides) values() map[string]any {
	m := make(map[string]any)
	put(m, KeySearchAPI, o.SearchAPI)
	put(m, KeyLLMProvider, o.LLMProvider)
	put(m, KeyLocalLLM, o.LocalLLM)
	put(m, KeyQueryModel, o.QueryModel)
	put(m, KeySummarizationModel, o.SummarizationModel)
	put(m, KeyOllamaBaseURL, o.OllamaBaseURL)
	put(m, KeyLMStudioBaseURL, o.LMStudioBaseURL)
	put(m, KeySearxngURL, o.SearxngURL)
	put(m, KeyMaxWebResearchLoops, o.MaxWebResearchLoops)
	put(m, KeyMaxValidationRetries, o.MaxValidationRetries)
	put(m, KeyMinSourceRelevanceScore, o.MinSourceRelevanceScore)
	put(m, KeyRequireValidSources, o.RequireValidSources)
	put(m, KeyUseToolCalling, o.UseToolCalling)
	put(m, KeyFetchFullPage, o.FetchFullPage)
	put(m, KeyStripThinkingTokens, o.StripThinkingTokens)
	if o.SearchAPIs != nil {
		m[KeySearchAPIs] = strings.Join(o.SearchAPIs, ",")
	}
	return m
}

func put[T any](m map[string]any, key string, v *T) {
	if v != nil {
		m[key] = *v
	}
}

// Resolve builds a Configuration with precedence override > environment > default.
// Environment variables are the upper-cased keys (LOCAL_LLM, SEARCH_API, ...).
func Resolve(o Overrides) (Configuration, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	for key, value := range o.values() {
		v.Set(key, value)
	}

	cfg := Configuration{
		SearchAPI:          strings.ToLower(strings.TrimSpace(v.GetString(KeySearchAPI))),
		SearchAPIs:         splitList(v.GetString(KeySearchAPIs)),
		LLMProvider:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLLMProvider))),
		LocalLLM:           strings.TrimSpace(v.GetString(KeyLocalLLM)),
		QueryModel:         strings.TrimSpace(v.GetString(KeyQueryModel)),
		SummarizationModel: strings.TrimSpace(v.GetString(KeySummarizationModel)),
		OllamaBaseURL:      v.GetString(KeyOllamaBaseURL),
		LMStudioBaseURL:    v.GetString(KeyLMStudioBaseURL),
		GoogleAPIKey:       v.GetString(KeyGoogleAPIKey),
		TavilyAPIKey:       v.GetString(KeyTavilyAPIKey),
		PerplexityAPIKey:   v.GetString(KeyPerplexityAPIKey),
		SearxngURL:         v.GetString(KeySearxngURL),
	}

	// viper's typed getters return zero values on malformed input.
	var err error
	if cfg.MaxWebResearchLoops, err = typed(v, KeyMaxWebResearchLoops, cast.ToIntE); err != nil {
		return Configuration{}, err
	}
	if cfg.MaxValidationRetries, err = typed(v, KeyMaxValidationRetries, cast.ToIntE); err != nil {
		return Configuration{}, err
	}
	if cfg.MinSourceRelevanceScore, err = typed(v, KeyMinSourceRelevanceScore, cast.ToFloat64E); err != nil {
		return Configuration{}, err
	}
	flags := []struct {
		key string
		dst *bool
	}{
		{KeyRequireValidSources, &cfg.RequireValidSources},
		{KeyUseToolCalling, &cfg.UseToolCalling},
		{KeyFetchFullPage, &cfg.FetchFullPage},
		{KeyStripThinkingTokens, &cfg.StripThinkingTokens},
	}
	for _, f := range flags {
		if *f.dst, err = typed(v, f.key, cast.ToBoolE); err != nil {
			return Configuration{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Validate rejects placeholder model names and out-of-range budgets.
func (c Configuration) Validate() error {
	models := []struct{ field, value string }{
		{KeyLocalLLM, c.LocalLLM},
		{KeyQueryModel, c.QueryModel},
		{KeySummarizationModel, c.SummarizationModel},
	}
	for _, m := range models {
		if strings.EqualFold(m.value, PlaceholderModel) {
			return &PlaceholderModelError{Field: m.field, Value: m.value}
		}
	}
	if c.LocalLLM == "" {
		return fmt.Errorf("%s must not be empty", KeyLocalLLM)
	}

	switch c.LLMProvider {
	case ProviderOllama, ProviderLMStudio, ProviderGoogle:
	default:
		return fmt.Errorf("unsupported %s %q", KeyLLMProvider, c.LLMProvider)
	}

	if c.MaxWebResearchLoops < 0 {
		return fmt.Errorf("%s must be >= 0, got %d", KeyMaxWebResearchLoops, c.MaxWebResearchLoops)
	}
	if c.MaxValidationRetries < 0 {
		return fmt.Errorf("%s must be >= 0, got %d", KeyMaxValidationRetries, c.MaxValidationRetries)
	}
	if c.MinSourceRelevanceScore < 0 || c.MinSourceRelevanceScore > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", KeyMinSourceRelevanceScore, c.MinSourceRelevanceScore)
	}
	return nil
}

// PlaceholderModelError is returned when a model identifier was left at the
// sample value.
type PlaceholderModelError struct {
	Field string
	Value string
}

func (e *PlaceholderModelError) Error() string {
	return fmt.Sprintf("%s is set to the placeholder model name %q; configure a real model (e.g. LOCAL_LLM=llama3.2)", e.Field, e.Value)
}

func typed[T any](v *viper.Viper, key string, conv func(any) (T, error)) (T, error) {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	out, err := conv(raw)
	if err != nil {
		return out, fmt.Errorf("invalid %s %q: %w", strings.ToUpper(key), fmt.Sprint(v.Get(key)), err)
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
