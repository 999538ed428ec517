package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/ppiankov/phishlens/internal/explain"
	"github.com/ppiankov/phishlens/internal/llm"
	"github.com/ppiankov/phishlens/internal/model"
)

// Renderer writes scan results as JSON, Markdown, or a terminal summary
type Renderer struct {
	out    io.Writer
	colors bool
}

// NewRenderer creates a renderer writing summaries to out
func NewRenderer(out io.Writer, colors bool) *Renderer {
	return &Renderer{out: out, colors: colors}
}

// RenderJSON writes result as indented JSON to path
func (r *Renderer) RenderJSON(result *model.ScanResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes a Markdown report to path. A narrative, when present,
// goes to a sibling .narrative.md file so it is never mistaken for a finding.
func (r *Renderer) RenderMarkdown(result *model.ScanResult, path string) error {
	if err := writeFile(path, []byte(Markdown(result))); err != nil {
		return err
	}
	if result.Narrative == nil {
		return nil
	}
	narrativePath := strings.TrimSuffix(path, ".md") + ".narrative.md"
	return writeFile(narrativePath, []byte(llm.RenderSeparateMarkdown(result.Narrative)))
}

// Markdown renders result as a Markdown document
func Markdown(result *model.ScanResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Scan: %s\n\n", result.URL)
	if result.DisplayHost != "" {
		fmt.Fprintf(&b, "Displayed host: `%s`\n\n", result.DisplayHost)
	}

	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Risk score | **%d/100** |\n", result.RiskScore)
	fmt.Fprintf(&b, "| Risk tier | %s |\n", result.RiskTier.Label())
	fmt.Fprintf(&b, "| Classifier probability | %.3f |\n", result.ClassifierProbability)
	fmt.Fprintf(&b, "| Blocked | %t |\n", result.Blocked)
	fmt.Fprintf(&b, "| Scanned | %s |\n\n", result.Timestamp.Format("2006-01-02 15:04:05 MST"))

	if result.Error != "" {
		fmt.Fprintf(&b, "> **Degraded result:** %s\n\n", result.Error)
	}

	b.WriteString("## Threats\n\n")
	if len(result.Threats) == 0 {
		b.WriteString("None detected.\n")
	}
	for _, t := range result.Threats {
		fmt.Fprintf(&b, "- %s\n", t)
	}

	if len(result.Sources) > 0 {
		fmt.Fprintf(&b, "\nDetection sources: %s\n", strings.Join(result.Sources, ", "))
	}

	b.WriteString("\n## Significant features\n\n")
	explanations := explain.Explain(result.SignificantFeatures)
	if len(explanations) == 0 {
		b.WriteString("None.\n")
	} else {
		b.WriteString("| Feature | Value | Meaning |\n|---|---|---|\n")
		for _, e := range explanations {
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", e.Name, formatFeature(e.Value), e.Description)
		}
	}

	return b.String()
}

// RenderSummary prints a short, tier-coloured summary
func (r *Renderer) RenderSummary(result *model.ScanResult) {
	tier := r.tierColor(result.RiskTier)
	bold := r.paint(color.Bold)

	_, _ = fmt.Fprintf(r.out, "\n%s %s\n", bold.Sprint("URL:"), result.URL)
	if result.DisplayHost != "" {
		_, _ = fmt.Fprintf(r.out, "%s %s\n", bold.Sprint("Host:"), result.DisplayHost)
	}
	_, _ = fmt.Fprintf(r.out, "%s %s\n", bold.Sprint("Risk:"),
		tier.Sprintf("%d/100 (%s)", result.RiskScore, result.RiskTier.Label()))
	if result.Blocked {
		_, _ = r.paint(color.FgRed, color.Bold).Fprintln(r.out, "BLOCKED: risk exceeds the blocking threshold")
	}
	if result.Error != "" {
		_, _ = r.paint(color.FgYellow).Fprintf(r.out, "Degraded: %s\n", result.Error)
	}

	for _, t := range result.Threats {
		_, _ = fmt.Fprintf(r.out, "  ! %s\n", t)
	}

	explanations := explain.Explain(result.SignificantFeatures)
	if len(explanations) > 0 {
		_, _ = fmt.Fprintln(r.out, bold.Sprint("Why:"))
		for _, e := range explanations {
			_, _ = fmt.Fprintf(r.out, "  - %s (%s)\n", e.Description, formatFeature(e.Value))
		}
	}

	if result.Narrative != nil {
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.paint(color.FgCyan).Sprint("Narrative:"), result.Narrative.Text)
	}
}

func (r *Renderer) tierColor(tier model.RiskTier) *color.Color {
	switch tier {
	case model.TierHigh:
		return r.paint(color.FgRed, color.Bold)
	case model.TierMedium:
		return r.paint(color.FgYellow)
	default:
		return r.paint(color.FgGreen)
	}
}

func (r *Renderer) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if r.colors {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func formatFeature(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
