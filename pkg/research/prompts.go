package research

import (
	"fmt"
	"strings"
)

const dateLayout = "January 02, 2006"

const queryWriterInstructions = `Your goal is to generate a targeted web search query.

<CONTEXT>
Current date: %s
Please ensure your queries account for the most current information available as of this date.
</CONTEXT>

<TOPIC>
%s
</TOPIC>
%s
<FORMAT>
%s
</FORMAT>

<EXAMPLE>
%s
</EXAMPLE>`

const queryJSONFormat = `Format your response as a JSON object with ALL of these exact keys:
   - "query": The actual search query string
   - "rationale": Brief explanation of why this query is relevant`

const queryJSONExample = `{
    "query": "machine learning transformer architecture explained",
    "rationale": "Understanding the fundamental structure of transformer models"
}`

const queryToolFormat = `Call the Query tool to format your response with the following keys:
   - "query": The actual search query string
   - "rationale": Brief explanation of why this query is relevant`

const queryToolExample = `Call the Query tool with:
    query: "machine learning transformer architecture explained"
    rationale: "Understanding the fundamental structure of transformer models"`

const summarizerInstructions = `<GOAL>
Generate a high-quality summary of the provided context.
</GOAL>

<REQUIREMENTS>
When creating a NEW summary:
1. Highlight the most relevant information related to the user topic from the search results
2. Ensure a coherent flow of information

When EXTENDING an existing summary:
1. Read the existing summary and new search results carefully.
2. Compare the new information with the existing summary.
3. For each piece of new information:
    a. If it's related to existing points, integrate it into the relevant paragraph.
    b. If it's entirely new but relevant, add a new paragraph with a smooth transition.
    c. If it's not relevant to the user topic, skip it.
4. Ensure all additions are relevant to the user's topic.
5. Verify that your final output differs from the input summary.
</REQUIREMENTS>

<FORMATTING>
- Start directly with the updated summary, without preamble or titles. Do not use XML tags in the output.
</FORMATTING>

<Task>
Think carefully about the provided Context first. Then generate a summary of the context to address the User Input.
</Task>`

const reflectionInstructions = `You are an expert research assistant analyzing a summary about %s.

<GOAL>
1. Identify knowledge gaps or areas that need deeper exploration
2. Generate a follow-up question that would help expand your understanding
3. Focus on technical details, implementation specifics, or emerging trends that weren't fully covered
</GOAL>

<REQUIREMENTS>
Ensure the follow-up question is self-contained and includes necessary context for web search.
</REQUIREMENTS>

<FORMAT>
%s
</FORMAT>

<Task>
Reflect carefully on the Summary to identify knowledge gaps and produce a follow-up query.
</Task>`

const reflectionJSONFormat = `Format your response as a JSON object with these exact keys:
- knowledge_gap: Describe what information is missing or needs clarification
- follow_up_query: Write a specific question to address this gap

Example output:
{
    "knowledge_gap": "The summary lacks information about performance metrics and benchmarks",
    "follow_up_query": "What are typical performance benchmarks and metrics used to evaluate [specific technology]?"
}`

const reflectionToolFormat = `Call the FollowUpQuery tool with these keys:
- knowledge_gap: Describe what information is missing or needs clarification
- follow_up_query: Write a specific question to address this gap`

const validationInstructions = `You are a research quality assessor. You judge whether search results are relevant and trustworthy for a research topic and answer only with JSON.`

const validationPrompt = `Evaluate the following sources for the research topic "%s".

For each source assign:
- relevance_score: a number between 0.0 and 1.0
- reason: one sentence explaining the score
- source_type: "academic", "web" or "news"

For academic papers (arXiv, journals, conference proceedings) weigh:
- how closely the title and abstract match the topic
- recency of the publication
- authority of the venue and authors
Boost scores by 0.1-0.2 for high-quality recent academic work, capped at 1.0.

Sources:
%s

Respond with a JSON object of this shape:
{
  "sources": [{"url": "...", "title": "...", "relevance_score": 0.0, "reason": "...", "source_type": "web"}],
  "overall_quality": "high|medium|low",
  "recommendation": "proceed|retry",
  "academic_paper_count": 0,
  "high_quality_academic_sources": 0
}`

func queryWriterPrompt(date, topic string, history []string, mode OutputMode) string {
	format, example := queryJSONFormat, queryJSONExample
	if mode == ModeToolCalling {
		format, example = queryToolFormat, queryToolExample
	}
	return fmt.Sprintf(queryWriterInstructions, date, topic, renderHistory(history), format, example)
}

func renderHistory(history []string) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n<PREVIOUS_QUERIES>\n")
	for i, q := range history {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("</PREVIOUS_QUERIES>\n")
	b.WriteString("Generate a NEW, different query that explores unexplored aspects or addresses knowledge gaps not covered by previous searches.\n")
	return b.String()
}

func reflectionPrompt(topic string, mode OutputMode) string {
	format := reflectionJSONFormat
	if mode == ModeToolCalling {
		format = reflectionToolFormat
	}
	return fmt.Sprintf(reflectionInstructions, topic, format)
}

func summaryRequest(existing, research, topic string) string {
	if existing != "" {
		return fmt.Sprintf("<Existing Summary> \n %s \n <Existing Summary>\n\n"+
			"<New Context> \n %s \n <New Context>"+
			"Update the Existing Summary with the New Context on this topic: \n <User Input> \n %s \n <User Input>\n\n",
			existing, research, topic)
	}
	return fmt.Sprintf("<Context> \n %s \n <Context>"+
		"Create a Summary using the Context on this topic: \n <User Input> \n %s \n <User Input>\n\n",
		research, topic)
}

func reflectionRequest(summary string) string {
	return fmt.Sprintf("Reflect on our existing knowledge: \n === \n %s, \n === \n And now identify a knowledge gap and generate a follow-up web search query:", summary)
}

func fallbackQuery(topic string) string {
	return "Tell me more about " + topic
}
