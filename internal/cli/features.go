package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phishlens/internal/explain"
	"github.com/ppiankov/phishlens/internal/extract"
	"github.com/ppiankov/phishlens/internal/model"
)

var (
	featureTitle string
	featureLinks []string
	featureJSON  bool
)

// featuresCmd represents the features command
var featuresCmd = &cobra.Command{
	Use:   "features <url>",
	Short: "Print the feature vector for a URL without scoring it",
	Long: `Features extracts the 20 model features for a URL. Page data can be
supplied with --title and --link instead of fetching the page.

Features that pass the significance rules are marked with *.

Example:
  phishlens features http://192.168.1.1/login
  phishlens features https://example.com --title "Example" --link https://example.com/a
  phishlens features https://example.com --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		obs := model.ObservationFromURL(args[0], featureTitle, featureLinks)
		if obs.Hostname == "" {
			return fmt.Errorf("invalid URL: %s", args[0])
		}
		return printFeatures(os.Stdout, extract.Extract(obs), featureJSON)
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresCmd.Flags().StringVar(&featureTitle, "title", "", "page title")
	featuresCmd.Flags().StringArrayVar(&featureLinks, "link", nil, "page hyperlink (repeatable)")
	featuresCmd.Flags().BoolVar(&featureJSON, "json", false, "output JSON")
}

func printFeatures(w io.Writer, vector extract.Vector, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(vector.Map())
	}

	significant := make(map[string]bool)
	for _, f := range explain.SignificantFeatures(vector) {
		significant[f.Name] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tFEATURE\tVALUE\tDESCRIPTION")
	for _, f := range vector.Map() {
		mark := ""
		if significant[f.Name] {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%s\n", mark, f.Name, f.Value, explain.Descriptions[f.Name])
	}
	return tw.Flush()
}
