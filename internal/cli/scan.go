package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phishlens/internal/model"
	"github.com/ppiankov/phishlens/internal/pipeline"
)

var (
	outJSON       string
	outMD         string
	timeout       time.Duration
	noFetch       bool
	noCache       bool
	noHistory     bool
	insecureTLS   bool
	respectRobots bool
	llmProvider   string
	llmModel      string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Score a single URL for phishing risk",
	Long: `Scan fetches a page, extracts its features and scores it:
- 20 lexical and page features
- classifier probability
- local blocklist and reputation signals
- risk tier and blocking decision
- the features that drove the score

Example:
  phishlens scan https://example.com
  phishlens scan http://192.168.1.1/login --no-fetch
  phishlens scan https://example.com --json scan.json --md scan.md
  phishlens scan https://example.com --llm ollama --llm-model llama3.1`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	// Output flags
	scanCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	scanCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")

	// Pipeline flags
	scanCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall scan timeout")
	scanCmd.Flags().BoolVar(&noFetch, "no-fetch", false, "score the URL alone without downloading the page")
	scanCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable result cache")
	scanCmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the scan")
	scanCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")
	scanCmd.Flags().BoolVar(&respectRobots, "respect-robots", false, "skip page fetch when robots.txt disallows it")

	// LLM flags
	scanCmd.Flags().StringVar(&llmProvider, "llm", "", "write a narrative with an LLM provider (openai, ollama)")
	scanCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

// applyScanFlags overlays explicitly set flags onto the loaded config
func applyScanFlags(cmd *cobra.Command, cfg *model.Config) {
	if cmd.Flags().Changed("insecure") {
		cfg.HTTP.InsecureTLS = insecureTLS
	}
	if cmd.Flags().Changed("respect-robots") {
		cfg.HTTP.RespectRobots = respectRobots
	}
	if cmd.Flags().Changed("llm") {
		cfg.LLM.Provider = llmProvider
		if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
	if cmd.Flags().Changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	url := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyScanFlags(cmd, cfg)

	if verbose {
		fmt.Fprintf(os.Stderr, "Scanning: %s\n", url)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Fetch: %v, Cache: %v\n", !noFetch, cfg.Cache.Enabled && !noCache)
		fmt.Fprintln(os.Stderr)
	}

	components, err := pipeline.Build(cfg, pipeline.BuildOptions{
		Version:   Version,
		Logger:    slog.Default(),
		NoFetch:   noFetch,
		NoCache:   noCache,
		NoHistory: noHistory,
	})
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	result, err := components.Pipeline.ScanURL(ctx, url)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Model: %s\n", components.Model.Describe())
		fmt.Fprintf(os.Stderr, "✓ Classifier probability: %.3f\n", result.ClassifierProbability)
		fmt.Fprintf(os.Stderr, "✓ Risk score: %d/100\n", result.RiskScore)
		if result.Narrative != nil {
			fmt.Fprintf(os.Stderr, "✓ Narrative written by %s\n", result.Narrative.Provider)
		}
		fmt.Fprintln(os.Stderr)
	}

	renderer := pipeline.NewRenderer(os.Stdout, cfg.Output.Color)
	renderer.RenderSummary(result)

	if outJSON != "" {
		if err := renderer.RenderJSON(result, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", outJSON)
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(result, outMD); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", outMD)
	}

	return nil
}
