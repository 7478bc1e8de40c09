package research

// State tracks one research run. It is owned by a single Engine.Run call and
// must not be shared between goroutines.
type State struct {
	Topic        string
	CurrentQuery string
	QueryHistory []string
	LoopCount    int

	// Append-only. One entry per search round, plus filtered rewrites
	// appended by validation.
	SourcesGathered    []string
	WebResearchResults []string
	SeenURLs           map[string]struct{}

	RunningSummary string

	Validated             bool
	ValidationRetryNeeded bool
	ValidationRetries     int
	ValidationFailed      bool

	// Report is set by the finalize step.
	Report string
}

func NewState(topic string) *State {
	return &State{
		Topic:    topic,
		SeenURLs: make(map[string]struct{}),
	}
}

// LatestResearch is the most recent LLM-facing search text.
func (s *State) LatestResearch() string {
	if len(s.WebResearchResults) == 0 {
		return ""
	}
	return s.WebResearchResults[len(s.WebResearchResults)-1]
}

// LatestSources is the most recent citation block.
func (s *State) LatestSources() string {
	if len(s.SourcesGathered) == 0 {
		return ""
	}
	return s.SourcesGathered[len(s.SourcesGathered)-1]
}

func (s *State) markSeen(urls []string) {
	for _, u := range urls {
		s.SeenURLs[u] = struct{}{}
	}
}
