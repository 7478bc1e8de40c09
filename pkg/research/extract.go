package research

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-researcher/pkg/config"
)

// OutputMode selects how structured answers are requested from the model.
type OutputMode int

const (
	ModeJSON OutputMode = iota
	ModeToolCalling
)

func (m OutputMode) String() string {
	if m == ModeToolCalling {
		return "tool_calling"
	}
	return "json"
}

// ModeFor maps the configuration flag to an OutputMode.
func ModeFor(cfg config.Configuration) OutputMode {
	if cfg.UseToolCalling {
		return ModeToolCalling
	}
	return ModeJSON
}

// Field names shared by the JSON schema and the tool definitions.
const (
	FieldQuery         = "query"
	FieldRationale     = "rationale"
	FieldFollowUpQuery = "follow_up_query"
	FieldKnowledgeGap  = "knowledge_gap"
)

// QueryTool is offered to the model when generating the first query.
var QueryTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "Query",
		Description: "Emit a web search query and the reason it helps the research.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				FieldQuery:     map[string]any{"type": "string", "description": "The actual search query string"},
				FieldRationale: map[string]any{"type": "string", "description": "Brief explanation of why this query is relevant"},
			},
			"required": []string{FieldQuery, FieldRationale},
		},
	},
}

// FollowUpQueryTool is offered to the model during reflection.
var FollowUpQueryTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "FollowUpQuery",
		Description: "Emit the knowledge gap found in the summary and a query that closes it.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				FieldFollowUpQuery: map[string]any{"type": "string", "description": "Write a specific question to address this gap"},
				FieldKnowledgeGap:  map[string]any{"type": "string", "description": "Describe what information is missing or needs clarification"},
			},
			"required": []string{FieldFollowUpQuery, FieldKnowledgeGap},
		},
	},
}

// Extractor pulls a single string field out of a model response.
type Extractor struct {
	Mode          OutputMode
	StripThinking bool
	Logger        *slog.Logger
}

// ExtractQuery is Extractor.Extract with default options.
func ExtractQuery(resp *llms.ContentResponse, mode OutputMode, field, fallback string) string {
	return Extractor{Mode: mode}.Extract(resp, field, fallback)
}

// Extract returns the named field, or fallback when the response is missing,
// malformed or lacks the field. It never fails.
func (x Extractor) Extract(resp *llms.ContentResponse, field, fallback string) string {
	logger := x.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		logger.Debug("model returned no choices", "field", field)
		return fallback
	}
	choice := resp.Choices[0]

	if x.Mode == ModeToolCalling {
		args, ok := toolArguments(choice)
		if !ok {
			logger.Debug("model made no tool call", "field", field, "content", choice.Content)
			return fallback
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(args), &data); err != nil {
			logger.Debug("tool arguments are not JSON", "field", field, "arguments", args)
			return fallback
		}
		value, ok := data[field]
		if !ok || value == nil {
			return fallback
		}
		if s, ok := value.(string); ok {
			return s
		}
		return fmt.Sprint(value)
	}

	logger.Debug("raw model output", "field", field, "content", choice.Content)
	var data map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(choice.Content)), &data); err != nil {
		if x.StripThinking {
			cleaned := StripThinkingTokens(choice.Content)
			logger.Debug("model output is not JSON", "field", field, "cleaned", cleaned)
		}
		return fallback
	}
	value, ok := data[field]
	if !ok || value == nil {
		return fallback
	}
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func toolArguments(choice *llms.ContentChoice) (string, bool) {
	for _, call := range choice.ToolCalls {
		if call.FunctionCall != nil {
			return call.FunctionCall.Arguments, true
		}
	}
	if choice.FuncCall != nil {
		return choice.FuncCall.Arguments, true
	}
	return "", false
}

// StripThinkingTokens removes every <think>...</think> section.
func StripThinkingTokens(text string) string {
	for {
		start := strings.Index(text, "<think>")
		if start < 0 {
			return text
		}
		end := strings.Index(text[start:], "</think>")
		if end < 0 {
			return text
		}
		text = text[:start] + text[start+end+len("</think>"):]
	}
}
