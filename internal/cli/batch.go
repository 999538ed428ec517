package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phishlens/internal/model"
	"github.com/ppiankov/phishlens/internal/pipeline"
	"github.com/ppiankov/phishlens/internal/worker"
)

var (
	concurrency    int
	outputDir      string
	batchTimeout   time.Duration
	batchRPS       float64
	batchNoFetch   bool
	batchNoHistory bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Score many URLs from a file in parallel",
	Long: `Batch scores URLs concurrently:
- Read URLs from a file, one per line ("-" reads stdin)
- Skip blank lines, # comments and duplicates
- Limit page fetches per host
- Optionally write one JSON result per URL

Example:
  phishlens batch urls.txt
  phishlens batch urls.txt --concurrency 10 --output-dir ./scans
  cat urls.txt | phishlens batch - --no-fetch`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "write one JSON result per URL to this directory")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().Float64Var(&batchRPS, "rps", 0, "requests per second per host (default from config)")
	batchCmd.Flags().BoolVar(&batchNoFetch, "no-fetch", false, "score URLs without downloading pages")
	batchCmd.Flags().BoolVar(&batchNoHistory, "no-history", false, "do not record the scans")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("concurrency") && cfg.Concurrency.Workers > 0 {
		concurrency = cfg.Concurrency.Workers
	}
	rps := cfg.RateLimiting.RequestsPerSecond
	if cmd.Flags().Changed("rps") {
		rps = batchRPS
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  PhishLens Batch Scan\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Per-host rps: %g\n", rps)
	if outputDir != "" {
		fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	components, err := pipeline.Build(cfg, pipeline.BuildOptions{
		Version:   Version,
		Logger:    slog.Default(),
		NoFetch:   batchNoFetch,
		NoHistory: batchNoHistory,
	})
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	// load once up front so workers don't race a cold model
	if err := components.Model.LoadOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Model unavailable, results will be degraded: %v\n", err)
	}

	processor := worker.NewBatchProcessor(components.Pipeline, concurrency, rps, cfg.RateLimiting.BurstSize)

	fmt.Fprintf(os.Stderr, "⚙️  Scanning URLs with %d workers...\n\n", concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	renderer := pipeline.NewRenderer(os.Stdout, cfg.Output.Color)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.URL, r.Err)
			continue
		}
		if r.Result.Error != "" {
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", r.URL, r.Result.Error)
		} else {
			fmt.Fprintf(os.Stderr, "✓ %s (risk: %d/100, %s)\n", r.URL, r.Result.RiskScore, r.Result.RiskTier)
		}

		if outputDir != "" {
			path := filepath.Join(outputDir, resultFilename(r.Result))
			if err := renderer.RenderJSON(r.Result, path); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", r.URL, err)
			}
		}
	}

	printBatchSummary(worker.Summarize(results))
	return nil
}

func printBatchSummary(s worker.Summary) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d URLs\n", s.Total)
	fmt.Fprintf(os.Stderr, "  High:      %d\n", s.ByTier[model.TierHigh])
	fmt.Fprintf(os.Stderr, "  Medium:    %d\n", s.ByTier[model.TierMedium])
	fmt.Fprintf(os.Stderr, "  Low:       %d\n", s.ByTier[model.TierLow])
	fmt.Fprintf(os.Stderr, "  Blocked:   %d\n", s.Blocked)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", s.Failed)
	fmt.Fprintf(os.Stderr, "\n")
}

// resultFilename builds "<host>-<id>.json" from a scan result
func resultFilename(r *model.ScanResult) string {
	host := "scan"
	if u, err := url.Parse(r.URL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	name := sanitizeFilename(host)
	if r.ID != "" {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		name += "-" + id
	}
	return name + ".json"
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a string for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(s)
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" || s == "." || s == ".." {
		s = "scan"
	}
	return s
}
