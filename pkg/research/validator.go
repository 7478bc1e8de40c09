package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/search"
)

// RetrySuffix widens a query after a round with no acceptable source.
const RetrySuffix = " academic research scholarly"

// SourceScore is the judge's assessment of one source.
type SourceScore struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	RelevanceScore float64 `json:"relevance_score"`
	Reason         string  `json:"reason"`
	SourceType     string  `json:"source_type"`
}

// Validation is the judge's verdict plus the sources that cleared the threshold.
type Validation struct {
	Sources                    []SourceScore `json:"sources"`
	OverallQuality             string        `json:"overall_quality"`
	Recommendation             string        `json:"recommendation"`
	AcademicPaperCount         int           `json:"academic_paper_count"`
	HighQualityAcademicSources int           `json:"high_quality_academic_sources"`

	ValidSources []SourceScore `json:"-"`
}

// Validator asks a model to score sources for topical relevance.
type Validator struct {
	Model  llms.Model
	Logger *slog.Logger
}

// Validate scores formattedSources against topic and keeps those at or above minScore.
func (v *Validator) Validate(ctx context.Context, topic, formattedSources string, minScore float64) (*Validation, error) {
	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resp, err := v.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, validationInstructions),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(validationPrompt, topic, formattedSources)),
	}, llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("validation call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, fmt.Errorf("validation returned no choices")
	}

	content := StripThinkingTokens(resp.Choices[0].Content)
	var out Validation
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("validation json parse error: %w", err)
	}

	for _, s := range out.Sources {
		if s.RelevanceScore >= minScore {
			out.ValidSources = append(out.ValidSources, s)
			continue
		}
		logger.Info("Dropping low relevance source", "url", s.URL, "score", s.RelevanceScore, "reason", s.Reason)
	}
	return &out, nil
}

// Action is what the state machine does after validation.
type Action int

const (
	ActionProceed Action = iota
	ActionRetry
)

func (a Action) String() string {
	if a == ActionRetry {
		return "retry"
	}
	return "proceed"
}

// Decision is the outcome of applying the validation policy to a verdict.
type Decision struct {
	Action    Action
	Validated bool
	// Exhausted is set when no source passed and the retry budget is spent.
	Exhausted bool
	// RetryQuery is the widened query for ActionRetry.
	RetryQuery string
	// FilteredText replaces the round's research text when only part of it passed.
	FilteredText string
	Valid        []SourceScore
}

// Decide applies the retry policy. A nil validation means the judge was
// unavailable and the round is accepted as is.
func Decide(v *Validation, st *State, cfg config.Configuration) Decision {
	if v == nil {
		return Decision{Action: ActionProceed, Validated: true}
	}

	valid := v.ValidSources
	switch {
	case len(valid) == 0 && cfg.RequireValidSources:
		if st.ValidationRetries < cfg.MaxValidationRetries {
			return Decision{Action: ActionRetry, RetryQuery: st.CurrentQuery + RetrySuffix}
		}
		return Decision{Action: ActionProceed, Exhausted: true}
	case len(valid) == 0:
		return Decision{Action: ActionProceed}
	case len(valid) < len(v.Sources):
		urls := make([]string, 0, len(valid))
		for _, s := range valid {
			urls = append(urls, s.URL)
		}
		d := Decision{Action: ActionProceed, Validated: true, Valid: valid}
		if filtered := FilterResearchText(st.LatestResearch(), urls); filtered != st.LatestResearch() {
			d.FilteredText = filtered
		}
		return d
	default:
		return Decision{Action: ActionProceed, Validated: true, Valid: valid}
	}
}

// FilterResearchText keeps only the source blocks of text whose URL line is
// exactly one of urls. When nothing matches, text is returned unchanged.
func FilterResearchText(text string, urls []string) string {
	keep := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u != "" {
			keep[u] = true
		}
	}

	var blocks []string
	for _, block := range sourceBlocks(text) {
		if keep[blockURL(block)] {
			blocks = append(blocks, block)
		}
	}

	if len(blocks) == 0 {
		return text
	}
	return "Sources:\n\n" + strings.Join(blocks, "\n\n")
}

// sourceBlocks splits formatted research text into its "Source: " blocks.
func sourceBlocks(text string) []string {
	const boundary = "\n\n" + search.SourceMarker

	parts := strings.Split(text, boundary)
	var blocks []string
	for i, part := range parts {
		if i == 0 {
			if !strings.HasPrefix(part, search.SourceMarker) {
				continue
			}
		} else {
			part = search.SourceMarker + part
		}
		blocks = append(blocks, strings.TrimSpace(part))
	}
	return blocks
}

func blockURL(block string) string {
	for _, line := range strings.Split(block, "\n") {
		if u, ok := strings.CutPrefix(line, "URL: "); ok {
			return strings.TrimSpace(u)
		}
	}
	return ""
}
