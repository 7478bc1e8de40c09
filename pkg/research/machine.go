package research

import "github.com/mikeboe/deep-researcher/pkg/config"

// Step is a state of the research loop.
type Step int

const (
	StepGenerateQuery Step = iota
	StepWebResearch
	StepValidateSources
	StepSummarizeSources
	StepReflectOnSummary
	StepFinalizeSummary
	StepDone
)

var stepNames = [...]string{
	StepGenerateQuery:    "generate_query",
	StepWebResearch:      "web_research",
	StepValidateSources:  "validate_sources",
	StepSummarizeSources: "summarize_sources",
	StepReflectOnSummary: "reflect_on_summary",
	StepFinalizeSummary:  "finalize_summary",
	StepDone:             "done",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

// Next returns the step that follows step given the state it left behind.
// It performs no I/O.
func Next(step Step, st *State, cfg config.Configuration) Step {
	switch step {
	case StepGenerateQuery:
		return StepWebResearch
	case StepWebResearch:
		return StepValidateSources
	case StepValidateSources:
		if st.ValidationRetryNeeded && st.ValidationRetries <= cfg.MaxValidationRetries {
			return StepWebResearch
		}
		return StepSummarizeSources
	case StepSummarizeSources:
		return StepReflectOnSummary
	case StepReflectOnSummary:
		if st.LoopCount <= cfg.MaxWebResearchLoops {
			return StepWebResearch
		}
		return StepFinalizeSummary
	default:
		return StepDone
	}
}
