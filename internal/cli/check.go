package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phishlens/internal/pipeline"
)

var checkProbe string

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the configured model and score a probe URL",
	Long: `Check loads the classifier and scaler named in the configuration and
scores a probe URL without fetching it, caching it or recording it.
Use it to verify a custom model before serving it.

Example:
  phishlens check
  phishlens check --probe http://192.168.1.1/secure-login`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkProbe, "probe", "http://192.168.10.5/paypal.com/secure/login.php", "URL scored after loading")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// the probe must exercise the model alone
	cfg.Reputation.Enabled = false
	cfg.LLM.Provider = ""

	components, err := pipeline.Build(cfg, pipeline.BuildOptions{
		Version:   Version,
		Logger:    slog.Default(),
		NoFetch:   true,
		NoCache:   true,
		NoHistory: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Model.LoadTimeout+5*time.Second)
	defer cancel()

	start := time.Now()
	if err := components.Model.LoadOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Model load failed (%s): %v\n", components.Model.State(), err)
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Model loaded in %v: %s\n", time.Since(start).Round(time.Millisecond), components.Model.Describe())

	result, err := components.Pipeline.ScanURL(ctx, checkProbe)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("probe degraded: %s", result.Error)
	}
	fmt.Fprintf(os.Stderr, "✓ Probe %s\n", checkProbe)
	fmt.Fprintf(os.Stderr, "  probability %.3f, risk %d/100 (%s)\n", result.ClassifierProbability, result.RiskScore, result.RiskTier.Label())
	return nil
}
