package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phishlens/internal/model"
	"github.com/ppiankov/phishlens/internal/store"
	"github.com/ppiankov/phishlens/internal/util"
)

var (
	historyLimit int
	historyStats bool
	historyJSON  bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scans",
	Long: `History lists scans recorded in the local SQLite history.

Example:
  phishlens history
  phishlens history --limit 50 --json
  phishlens history --stats`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of scans to list")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show counts per risk tier")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in configuration")
	}

	h, err := store.Open(util.ExpandHome(cfg.History.Path))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = h.Close() }()

	ctx := cmd.Context()
	if historyStats {
		counts, err := h.TierCounts(ctx)
		if err != nil {
			return fmt.Errorf("history stats: %w", err)
		}
		for _, tier := range []model.RiskTier{model.TierHigh, model.TierMedium, model.TierLow} {
			fmt.Printf("%-8s %d\n", tier.Label(), counts[tier])
		}
		return nil
	}

	scans, err := h.Recent(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	return printHistory(os.Stdout, scans, historyJSON)
}

func printHistory(w io.Writer, scans []model.ScanResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(scans)
	}
	if len(scans) == 0 {
		_, err := fmt.Fprintln(w, "No scans recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSCORE\tTIER\tBLOCKED\tURL")
	for _, s := range scans {
		tier := s.RiskTier.Label()
		if s.Error != "" {
			tier += " (degraded)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%v\t%s\n", s.Timestamp.Local().Format("2006-01-02 15:04"), s.RiskScore, tier, s.Blocked, s.URL)
	}
	return tw.Flush()
}
