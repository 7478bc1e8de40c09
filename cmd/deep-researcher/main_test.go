package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestOverridesFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "deep-researcher"}
	cmd.Flags().StringVar(&searchAPI, "search-api", "", "")
	cmd.Flags().StringSliceVar(&searchAPIs, "search-apis", nil, "")
	cmd.Flags().IntVar(&loops, "loops", 0, "")
	cmd.Flags().IntVar(&retries, "retries", 0, "")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "")
	cmd.Flags().StringVar(&model, "model", "", "")
	cmd.Flags().BoolVar(&toolCalling, "tool-calling", false, "")
	cmd.Flags().BoolVar(&fetchFullPage, "fetch-full-page", false, "")

	if err := cmd.Flags().Parse([]string{"--search-apis", "arxiv,duckduckgo", "--loops", "0", "--tool-calling"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	o := overridesFromFlags(cmd)
	if o.MaxWebResearchLoops == nil || *o.MaxWebResearchLoops != 0 {
		t.Errorf("loops override = %v, want 0", o.MaxWebResearchLoops)
	}
	if len(o.SearchAPIs) != 2 || o.SearchAPIs[0] != "arxiv" {
		t.Errorf("search apis = %v", o.SearchAPIs)
	}
	if o.UseToolCalling == nil || !*o.UseToolCalling {
		t.Errorf("tool calling = %v", o.UseToolCalling)
	}
	if o.SearchAPI != nil || o.LocalLLM != nil || o.MaxValidationRetries != nil || o.FetchFullPage != nil {
		t.Errorf("unset flags leaked into overrides: %+v", o)
	}
}
