package research

import (
	"strings"
	"testing"

	"github.com/mikeboe/deep-researcher/pkg/config"
)

func TestNext(t *testing.T) {
	cfg := config.Configuration{MaxWebResearchLoops: 2, MaxValidationRetries: 1}

	tests := []struct {
		name  string
		step  Step
		state State
		want  Step
	}{
		{"Start searches", StepGenerateQuery, State{}, StepWebResearch},
		{"Search then validate", StepWebResearch, State{LoopCount: 1}, StepValidateSources},
		{"Validation passes", StepValidateSources, State{}, StepSummarizeSources},
		{"Validation retries", StepValidateSources, State{ValidationRetryNeeded: true, ValidationRetries: 1}, StepWebResearch},
		{"Retry beyond budget proceeds", StepValidateSources, State{ValidationRetryNeeded: true, ValidationRetries: 2}, StepSummarizeSources},
		{"Summarize then reflect", StepSummarizeSources, State{}, StepReflectOnSummary},
		{"Under budget continues", StepReflectOnSummary, State{LoopCount: 1}, StepWebResearch},
		{"At budget continues", StepReflectOnSummary, State{LoopCount: 2}, StepWebResearch},
		{"Over budget finalizes", StepReflectOnSummary, State{LoopCount: 3}, StepFinalizeSummary},
		{"Finalize ends", StepFinalizeSummary, State{}, StepDone},
		{"Done stays done", StepDone, State{}, StepDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.state
			if got := Next(tt.step, &st, cfg); got != tt.want {
				t.Errorf("Next(%s) = %s, want %s", tt.step, got, tt.want)
			}
		})
	}
}

func TestStepString(t *testing.T) {
	if StepWebResearch.String() != "web_research" {
		t.Errorf("StepWebResearch = %q", StepWebResearch.String())
	}
	if Step(99).String() != "unknown" {
		t.Errorf("Step(99) = %q", Step(99).String())
	}
}

func TestQueryWriterPromptHistory(t *testing.T) {
	first := queryWriterPrompt("March 04, 2025", "qec", nil, ModeJSON)
	if strings.Contains(first, "PREVIOUS_QUERIES") {
		t.Errorf("empty history rendered:\n%s", first)
	}
	if !strings.Contains(first, "Current date: March 04, 2025") || !strings.Contains(first, `"rationale"`) {
		t.Errorf("prompt missing date or JSON format:\n%s", first)
	}

	again := queryWriterPrompt("March 04, 2025", "qec", []string{"one", "two"}, ModeToolCalling)
	if !strings.Contains(again, "1. one\n2. two\n") || !strings.Contains(again, "Generate a NEW, different query") {
		t.Errorf("history not rendered:\n%s", again)
	}
	if !strings.Contains(again, "Query tool") {
		t.Errorf("tool format missing:\n%s", again)
	}
}
