package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ppiankov/phishlens/internal/model"
)

// Summarizer attaches optional narratives to scan results
type Summarizer struct {
	provider Provider
	config   Config
	logger   *slog.Logger
}

// NewSummarizer builds a summarizer. With no provider configured the
// summarizer is disabled and Narrate returns nil, nil.
func NewSummarizer(config Config, logger *slog.Logger) (*Summarizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Summarizer{provider: provider, config: config, logger: logger}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// Narrate asks the provider to explain result. The result is not modified.
func (s *Summarizer) Narrate(ctx context.Context, result *model.ScanResult) (*model.Narrative, error) {
	if !s.IsEnabled() || result == nil {
		return nil, nil
	}

	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Result:    *result,
		Model:     s.config.Model,
		MaxTokens: s.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("narrate with %s: %w", s.provider.Name(), err)
	}
	if resp.Summary == "" {
		return nil, fmt.Errorf("narrate with %s: empty response", s.provider.Name())
	}

	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("narrative generated", "provider", s.provider.Name(), "model", resp.Model, "tokens", resp.TokensUsed)

	return &model.Narrative{
		Provider: s.provider.Name(),
		Model:    resp.Model,
		Text:     resp.Summary,
	}, nil
}

// RenderSeparateMarkdown renders a narrative as its own Markdown section,
// kept apart from the scored findings.
func RenderSeparateMarkdown(n *model.Narrative) string {
	if n == nil || n.Text == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Narrative (AI-generated)\n\n")
	fmt.Fprintf(&b, "> Written by %s", n.Provider)
	if n.Model != "" {
		fmt.Fprintf(&b, " (%s)", n.Model)
	}
	b.WriteString(". It explains the findings above and does not affect the risk score.\n\n")
	b.WriteString(n.Text)
	b.WriteString("\n")
	return b.String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
