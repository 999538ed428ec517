package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/phishlens/internal/explain"
	"github.com/ppiankov/phishlens/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize writes a short narrative for a finished scan
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM narration
type SummarizeRequest struct {
	// Result is the scan to describe. The narrative never changes it.
	Result model.ScanResult

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's output
type SummarizeResponse struct {
	Summary    string
	CitedURLs  []string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 400,
	}
}

const systemPrompt = "You explain URL phishing scans to non-technical users. You describe the evidence; you never change or second-guess the risk score."

// BuildPrompt constructs the default narration prompt for a scan result
func BuildPrompt(result model.ScanResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Explain in 2-3 plain sentences why this URL received its risk rating.

RULES:
1. The risk score and tier below are final. Do not propose a different score.
2. Only mention URLs on the same host as the scanned URL.
3. If no threats were found, say the page looks low risk and stop.

Scan:
- URL: %s
- Risk score: %d/100 (%s)
- Classifier probability: %.2f
- Blocked: %t
`, result.URL, result.RiskScore, result.RiskTier.Label(), result.ClassifierProbability, result.Blocked)

	if result.DisplayHost != "" {
		fmt.Fprintf(&b, "- Host as displayed: %s\n", result.DisplayHost)
	}

	b.WriteString("\nThreats:\n")
	if len(result.Threats) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, threat := range result.Threats {
		fmt.Fprintf(&b, "- %s\n", threat)
	}

	b.WriteString("\nNotable URL and page features:\n")
	explanations := explain.Explain(result.SignificantFeatures)
	if len(explanations) == 0 {
		b.WriteString("- (none)\n")
	}
	for i, e := range explanations {
		if i >= 10 {
			fmt.Fprintf(&b, "- ... and %d more\n", len(explanations)-10)
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", e.Description, formatValue(e.Value))
	}

	return b.String()
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
