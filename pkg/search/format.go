package search

import (
	"fmt"
	"strings"
)

const (
	// MaxTokensPerSource bounds the text kept per source.
	MaxTokensPerSource = 1000
	// CharsPerToken approximates tokens as characters; it is not a tokenizer.
	CharsPerToken = 4

	// NoResultsText stands in for a round where every backend failed or came back empty.
	NoResultsText = "No search results found."

	// SourceMarker opens every formatted source block.
	SourceMarker = "Source: "
)

// DeduplicateAndFormat flattens sets into one LLM-facing text, skipping URLs in
// seen and URLs repeated across sets. seen is read, never written. When nothing
// new remains the result is NoResultsText.
func DeduplicateAndFormat(sets []*Results, maxTokensPerSource int, fetchFullPage bool, seen map[string]struct{}) string {
	unseen := Unseen(sets, seen)
	if len(unseen.Results) == 0 {
		return NoResultsText
	}
	limit := maxTokensPerSource * CharsPerToken

	var b strings.Builder
	b.WriteString("Sources:\n\n")
	for _, r := range unseen.Results {
		fmt.Fprintf(&b, "%s%s\n===\n", SourceMarker, r.Title)
		fmt.Fprintf(&b, "URL: %s\n===\n", r.URL)
		fmt.Fprintf(&b, "Most relevant content from source: %s\n===\n", truncate(r.Content, limit))
		if fetchFullPage && r.RawContent != "" {
			fmt.Fprintf(&b, "Full source content limited to %d tokens: %s\n", maxTokensPerSource, truncate(r.RawContent, limit))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Unseen flattens sets into the hits whose URL is neither in seen nor repeated
// earlier in sets.
func Unseen(sets []*Results, seen map[string]struct{}) *Results {
	local := make(map[string]struct{})
	out := &Results{}
	for _, set := range sets {
		if set == nil {
			continue
		}
		for _, r := range set.Results {
			if _, ok := seen[r.URL]; ok {
				continue
			}
			if _, ok := local[r.URL]; ok {
				continue
			}
			local[r.URL] = struct{}{}
			out.Results = append(out.Results, r)
		}
	}
	return out
}

// FormatSources renders the citation list kept alongside the summary.
func FormatSources(set *Results) string {
	if set == nil {
		return ""
	}
	lines := make([]string, 0, len(set.Results))
	for _, r := range set.Results {
		lines = append(lines, fmt.Sprintf("* %s : %s", r.Title, r.URL))
	}
	return strings.Join(lines, "\n")
}

// URLs returns every URL in sets, in order, duplicates included.
func URLs(sets []*Results) []string {
	var urls []string
	for _, set := range sets {
		if set == nil {
			continue
		}
		for _, r := range set.Results {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// Count is the number of hits across sets.
func Count(sets []*Results) int {
	n := 0
	for _, set := range sets {
		if set != nil {
			n += len(set.Results)
		}
	}
	return n
}

// truncate cuts s to at most limit runes, marking the cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "... [truncated]"
}
