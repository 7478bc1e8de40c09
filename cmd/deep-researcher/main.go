package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/research"
)

var (
	topic         string
	searchAPI     string
	searchAPIs    []string
	loops         int
	retries       int
	llmProvider   string
	model         string
	toolCalling   bool
	fetchFullPage bool
	outputFile    string
	verbose       bool
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-researcher",
		Short: "A terminal-based research agent",
		Long: `deep-researcher researches a topic by looping over query generation, web search,
source validation, summarization and reflection, then prints a markdown report with sources.`,
		SilenceUsage: true,
		RunE:         run,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&topic, "topic", "t", "", "The research topic")
	flags.StringVar(&searchAPI, "search-api", "", "Search backend (duckduckgo, tavily, perplexity, searxng, arxiv)")
	flags.StringSliceVar(&searchAPIs, "search-apis", nil, "Aggregate results from several backends, e.g. arxiv,duckduckgo")
	flags.IntVar(&loops, "loops", 0, "Maximum research loops after the first")
	flags.IntVar(&retries, "retries", 0, "Maximum validation retries per round")
	flags.StringVar(&llmProvider, "llm-provider", "", "LLM provider (ollama, lmstudio, google)")
	flags.StringVarP(&model, "model", "m", "", "Model name for every LLM call")
	flags.BoolVar(&toolCalling, "tool-calling", false, "Use tool calling instead of JSON mode")
	flags.BoolVar(&fetchFullPage, "fetch-full-page", false, "Include full page content in search results")
	flags.StringVarP(&outputFile, "output", "o", "", "Write the report to this file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Setup structured logging
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if !cmd.Flags().Changed("topic") {
		// Interactive Mode
		fmt.Print("Enter research topic: ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		topic = input
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	cfg, err := config.Resolve(overridesFromFlags(cmd))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting research", "topic", topic, "llm_provider", cfg.LLMProvider, "model", cfg.LocalLLM, "search_api", cfg.SearchAPI, "search_apis", cfg.SearchAPIs)

	report, err := research.Run(ctx, topic, cfg, research.LogSink{Logger: slog.Default()})
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	fmt.Println(report)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(report), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		slog.Info("Report saved", "file", outputFile)
	}
	return nil
}

// overridesFromFlags keeps only flags the user set, so environment values
// still apply to everything else.
func overridesFromFlags(cmd *cobra.Command) config.Overrides {
	var o config.Overrides
	changed := cmd.Flags().Changed

	if changed("search-api") {
		o.SearchAPI = config.Ptr(searchAPI)
	}
	if changed("search-apis") {
		o.SearchAPIs = searchAPIs
	}
	if changed("loops") {
		o.MaxWebResearchLoops = config.Ptr(loops)
	}
	if changed("retries") {
		o.MaxValidationRetries = config.Ptr(retries)
	}
	if changed("llm-provider") {
		o.LLMProvider = config.Ptr(llmProvider)
	}
	if changed("model") {
		o.LocalLLM = config.Ptr(model)
	}
	if changed("tool-calling") {
		o.UseToolCalling = config.Ptr(toolCalling)
	}
	if changed("fetch-full-page") {
		o.FetchFullPage = config.Ptr(fetchFullPage)
	}
	return o
}
