package research

import (
	"fmt"
	"strings"
)

// Finalize renders the report: the running summary followed by every distinct
// citation line gathered across rounds, as markdown links.
func Finalize(sourcesGathered []string, runningSummary string) string {
	seen := make(map[string]struct{})
	var lines []string
	for _, block := range sourcesGathered {
		for _, line := range strings.Split(block, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			lines = append(lines, citation(line))
		}
	}

	return fmt.Sprintf("## Summary\n%s\n\n### Sources:\n%s", runningSummary, strings.Join(lines, "\n"))
}

// citation turns "* Title : URL" into "* [Title](URL)".
func citation(line string) string {
	idx := strings.LastIndex(line, " : ")
	if idx < 0 {
		return line
	}
	title := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[:idx]), "* "))
	url := strings.TrimSpace(line[idx+len(" : "):])
	if url == "" {
		return line
	}
	return fmt.Sprintf("* [%s](%s)", title, url)
}
