package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-researcher/pkg/clients"
	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/metrics"
	"github.com/mikeboe/deep-researcher/pkg/search"
)

// ErrNoSummary is returned when a run ends without a running summary.
var ErrNoSummary = errors.New("research produced no summary")

type ResearchEngine struct {
	Config       config.Configuration
	QueryModel   llms.Model
	SummaryModel llms.Model
	Validator    *Validator
	Providers    search.Factory
	Sink         ProgressSink
	Logger       *slog.Logger
	Metrics      *metrics.Collector

	// OnStateUpdate, when set, sees a copy of the state after every step.
	OnStateUpdate func(step Step, state State)

	// Now and RetryBackoff are overridable for tests.
	Now          func() time.Time
	RetryBackoff time.Duration
}

// NewEngine wires models and search backends from cfg.
func NewEngine(ctx context.Context, cfg config.Configuration, sink ProgressSink) (*ResearchEngine, error) {
	models, err := clients.NewModels(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init LLM: %w", err)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	return &ResearchEngine{
		Config:       cfg,
		QueryModel:   models.Query,
		SummaryModel: models.Summarizer,
		Validator:    &Validator{Model: models.Judge},
		Providers:    search.NewFactory(cfg, httpClient),
		Sink:         sink,
		Logger:       slog.Default(),
		RetryBackoff: time.Second,
	}, nil
}

// Run builds an engine from a resolved cfg and researches topic to completion.
func Run(ctx context.Context, topic string, cfg config.Configuration, sink ProgressSink) (string, error) {
	e, err := NewEngine(ctx, cfg, sink)
	if err != nil {
		return "", err
	}
	return e.Run(ctx, topic)
}

// Run executes the research loop and returns the final report.
func (e *ResearchEngine) Run(ctx context.Context, topic string) (string, error) {
	st, err := e.RunState(ctx, topic)
	if err != nil {
		return "", err
	}
	return st.Report, nil
}

// RunState is Run but returns the final state.
func (e *ResearchEngine) RunState(ctx context.Context, topic string) (*State, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic must not be empty")
	}

	started := e.now()
	st := NewState(topic)
	e.logger().Info("Starting research loop", "topic", topic, "max_loops", e.Config.MaxWebResearchLoops, "search_api", e.Config.SearchAPI)

	step := StepGenerateQuery
	for step != StepDone {
		e.Metrics.StepEntered(step.String())
		if err := e.execute(ctx, step, st); err != nil {
			e.Metrics.RunFinished("failed", e.now().Sub(started))
			e.emit(step, "Research failed", err.Error(), nil)
			return st, fmt.Errorf("%s failed: %w", step, err)
		}
		if e.OnStateUpdate != nil {
			e.OnStateUpdate(step, *st)
		}
		step = Next(step, st, e.Config)
	}

	if strings.TrimSpace(st.RunningSummary) == "" {
		e.Metrics.RunFinished("failed", e.now().Sub(started))
		return st, ErrNoSummary
	}
	e.Metrics.RunFinished("completed", e.now().Sub(started))
	return st, nil
}

func (e *ResearchEngine) execute(ctx context.Context, step Step, st *State) error {
	switch step {
	case StepGenerateQuery:
		return e.generateQuery(ctx, st)
	case StepWebResearch:
		return e.webResearch(ctx, st)
	case StepValidateSources:
		e.validateSources(ctx, st)
		return nil
	case StepSummarizeSources:
		return e.summarizeSources(ctx, st)
	case StepReflectOnSummary:
		e.reflectOnSummary(ctx, st)
		return nil
	case StepFinalizeSummary:
		e.finalizeSummary(st)
		return nil
	default:
		return fmt.Errorf("unknown step %d", step)
	}
}

// --- Step Implementations ---

func (e *ResearchEngine) generateQuery(ctx context.Context, st *State) error {
	e.emit(StepGenerateQuery, "Generating search query", st.Topic, nil)

	mode := ModeFor(e.Config)
	prompt := queryWriterPrompt(e.now().Format(dateLayout), st.Topic, st.QueryHistory, mode)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt),
		llms.TextParts(llms.ChatMessageTypeHuman, "Generate a query for web search:"),
	}

	fallback := fallbackQuery(st.Topic)
	query := fallback
	resp, err := e.generateWithRetry(ctx, e.QueryModel, messages, e.structuredOptions(mode, QueryTool)...)
	if err != nil {
		e.logger().Warn("Query generation failed, using fallback", "error", err)
	} else {
		query = e.extractor(mode).Extract(resp, FieldQuery, fallback)
	}

	st.CurrentQuery = query
	st.QueryHistory = append(st.QueryHistory, query)
	e.emit(StepGenerateQuery, "Generated search query", query, map[string]any{
		"query":          query,
		"query_attempts": len(st.QueryHistory),
	})
	return nil
}

func (e *ResearchEngine) webResearch(ctx context.Context, st *State) error {
	round := st.LoopCount + 1
	e.emit(StepWebResearch, fmt.Sprintf("Searching web (Loop %d/%d)", round, e.Config.MaxWebResearchLoops), st.CurrentQuery, map[string]any{
		"loop":  round,
		"query": st.CurrentQuery,
	})
	ctx = search.WithRound(ctx, round)

	var sets []*search.Results
	if e.Config.MultiProvider() {
		names := e.Config.SearchAPIs
		e.emit(StepWebResearch, fmt.Sprintf("Aggregating results from %d sources", len(names)), strings.Join(names, ", "), map[string]any{
			"providers": names,
		})
		agg := search.Aggregate(ctx, e.Providers, names, st.CurrentQuery, e.Config.FetchFullPage, func(o search.Outcome) {
			e.Metrics.SearchDone(o.Provider, o.Err)
			if o.Err != nil {
				e.logger().Warn("Search provider failed", "provider", o.Provider, "error", o.Err)
				e.emit(StepWebResearch, fmt.Sprintf("Search with %s failed", o.Provider), o.Err.Error(), map[string]any{"api": o.Provider})
				return
			}
			e.emit(StepWebResearch, fmt.Sprintf("Found %d results from %s", o.Count, o.Provider), "", map[string]any{
				"api":   o.Provider,
				"count": o.Count,
			})
		})
		sets = agg.Sets
		e.emit(StepWebResearch, "Aggregation complete", "", map[string]any{
			"total_results": search.Count(sets),
			"failed":        len(agg.Failed()),
		})
	} else {
		provider, err := e.Providers(e.Config.SearchAPI)
		if err != nil {
			return err
		}
		results, err := provider.Search(ctx, st.CurrentQuery, search.DefaultMaxResults(provider.Name(), false), e.Config.FetchFullPage)
		e.Metrics.SearchDone(provider.Name(), err)
		if err != nil {
			return fmt.Errorf("search with %s failed: %w", provider.Name(), err)
		}
		if results != nil {
			sets = []*search.Results{results}
		}
	}

	researchText := search.NoResultsText
	citations := ""
	fresh := 0
	if search.Count(sets) > 0 {
		researchText = search.DeduplicateAndFormat(sets, search.MaxTokensPerSource, e.Config.FetchFullPage, st.SeenURLs)
		unseen := search.Unseen(sets, st.SeenURLs)
		fresh = len(unseen.Results)
		citations = search.FormatSources(unseen)
	}

	st.markSeen(search.URLs(sets))
	st.LoopCount++
	st.SourcesGathered = append(st.SourcesGathered, citations)
	st.WebResearchResults = append(st.WebResearchResults, researchText)
	st.ValidationRetryNeeded = false

	e.emit(StepWebResearch, fmt.Sprintf("Found %d new sources", fresh), citations, map[string]any{
		"loop":        st.LoopCount,
		"new_sources": fresh,
		"seen_urls":   len(st.SeenURLs),
	})
	return nil
}

func (e *ResearchEngine) validateSources(ctx context.Context, st *State) {
	e.emit(StepValidateSources, "Validating source quality", "", map[string]any{
		"min_score": e.Config.MinSourceRelevanceScore,
		"retries":   st.ValidationRetries,
	})

	if st.LatestSources() == "" || e.Validator == nil {
		st.Validated = true
		st.ValidationFailed = false
		st.ValidationRetryNeeded = false
		st.ValidationRetries = 0
		e.emit(StepValidateSources, "No new sources to validate", "", nil)
		return
	}

	validation, err := e.Validator.Validate(ctx, st.Topic, st.LatestResearch(), e.Config.MinSourceRelevanceScore)
	if err != nil {
		e.logger().Warn("Source validation failed, accepting sources", "error", err)
		e.emit(StepValidateSources, "Source validation unavailable, continuing", err.Error(), nil)
		validation = nil
	}

	d := Decide(validation, st, e.Config)
	if d.Action == ActionRetry {
		st.ValidationRetryNeeded = true
		st.ValidationRetries++
		st.Validated = false
		st.ValidationFailed = false
		st.CurrentQuery = d.RetryQuery
		st.QueryHistory = append(st.QueryHistory, d.RetryQuery)
		e.Metrics.ValidationRetry()
		e.emit(StepValidateSources, "No relevant sources found, retrying search", d.RetryQuery, map[string]any{
			"retry":       st.ValidationRetries,
			"max_retries": e.Config.MaxValidationRetries,
		})
		return
	}

	st.ValidationRetryNeeded = false
	st.ValidationRetries = 0
	st.Validated = d.Validated
	st.ValidationFailed = d.Exhausted
	if d.FilteredText != "" {
		st.WebResearchResults = append(st.WebResearchResults, d.FilteredText)
	}

	payload := map[string]any{"valid_sources": len(d.Valid)}
	if validation != nil {
		payload["total_sources"] = len(validation.Sources)
		payload["recommendation"] = validation.Recommendation
		payload["overall_quality"] = validation.OverallQuality
	}
	switch {
	case d.Exhausted:
		e.emit(StepValidateSources, "Validation retries exhausted, proceeding with available sources", "", payload)
	case d.FilteredText != "":
		e.emit(StepValidateSources, fmt.Sprintf("Kept %d relevant sources", len(d.Valid)), "", payload)
	default:
		e.emit(StepValidateSources, "Sources validated", "", payload)
	}
}

func (e *ResearchEngine) summarizeSources(ctx context.Context, st *State) error {
	e.emit(StepSummarizeSources, "Summarizing sources", "", map[string]any{
		"has_existing_summary": st.RunningSummary != "",
	})

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarizerInstructions),
		llms.TextParts(llms.ChatMessageTypeHuman, summaryRequest(st.RunningSummary, st.LatestResearch(), st.Topic)),
	}
	resp, err := e.generateWithRetry(ctx, e.SummaryModel, messages)
	if err != nil {
		return err
	}

	summary := resp.Choices[0].Content
	if e.Config.StripThinkingTokens {
		summary = StripThinkingTokens(summary)
	}
	st.RunningSummary = strings.TrimSpace(summary)

	e.emit(StepSummarizeSources, "Summary updated", "", map[string]any{
		"summary_length": len(st.RunningSummary),
	})
	return nil
}

func (e *ResearchEngine) reflectOnSummary(ctx context.Context, st *State) {
	e.emit(StepReflectOnSummary, "Reflecting on summary", "", map[string]any{"loop": st.LoopCount})

	mode := ModeFor(e.Config)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, reflectionPrompt(st.Topic, mode)),
		llms.TextParts(llms.ChatMessageTypeHuman, reflectionRequest(st.RunningSummary)),
	}

	fallback := fallbackQuery(st.Topic)
	query, gap := fallback, ""
	resp, err := e.generateWithRetry(ctx, e.QueryModel, messages, e.structuredOptions(mode, FollowUpQueryTool)...)
	if err != nil {
		e.logger().Warn("Reflection failed, using fallback query", "error", err)
	} else {
		x := e.extractor(mode)
		query = x.Extract(resp, FieldFollowUpQuery, fallback)
		gap = x.Extract(resp, FieldKnowledgeGap, "")
	}

	st.CurrentQuery = query
	st.QueryHistory = append(st.QueryHistory, query)

	next := "finalize"
	if st.LoopCount <= e.Config.MaxWebResearchLoops {
		next = "continue"
	}
	e.emit(StepReflectOnSummary, "Identified follow-up query", query, map[string]any{
		"knowledge_gap": gap,
		"loop":          st.LoopCount,
		"next":          next,
	})
}

func (e *ResearchEngine) finalizeSummary(st *State) {
	e.emit(StepFinalizeSummary, "Finalizing research summary", "", nil)
	st.Report = Finalize(st.SourcesGathered, st.RunningSummary)
	e.emit(StepFinalizeSummary, "Research complete", "", map[string]any{
		"loops":     st.LoopCount,
		"seen_urls": len(st.SeenURLs),
		"length":    len(st.Report),
	})
}

// --- Helpers ---

// generateWithRetry retries transport errors and empty responses up to 3 times.
func (e *ResearchEngine) generateWithRetry(ctx context.Context, model llms.Model, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if model == nil {
		return nil, fmt.Errorf("no model configured")
	}
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			e.logger().Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.RetryBackoff * time.Duration(i)):
			}
		}

		resp, err := model.GenerateContent(ctx, messages, options...)
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}
		if len(resp.Choices) == 0 || resp.Choices[0] == nil {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

func (e *ResearchEngine) structuredOptions(mode OutputMode, tool llms.Tool) []llms.CallOption {
	if mode == ModeToolCalling {
		return []llms.CallOption{llms.WithTools([]llms.Tool{tool})}
	}
	return []llms.CallOption{llms.WithJSONMode()}
}

func (e *ResearchEngine) extractor(mode OutputMode) Extractor {
	return Extractor{Mode: mode, StripThinking: e.Config.StripThinkingTokens, Logger: e.logger()}
}

// emit delivers an event. A panicking sink is logged and otherwise ignored.
func (e *ResearchEngine) emit(step Step, message, detail string, payload map[string]any) {
	if e.Sink == nil {
		return
	}
	ev := Event{Time: e.now(), Step: step.String(), Message: message, Detail: detail, Payload: payload}
	defer func() {
		if r := recover(); r != nil {
			e.logger().Error("Progress sink panicked", "step", ev.Step, "panic", r)
		}
	}()
	e.Sink.Progress(ev)
}

func (e *ResearchEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *ResearchEngine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
