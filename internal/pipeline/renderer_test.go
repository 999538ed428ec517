package pipeline

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/phishlens/internal/model"
)

func renderFixture() *model.ScanResult {
	return &model.ScanResult{
		ID:                    "scan-1",
		URL:                   "http://xn--pypal-4ve.com/login",
		DisplayHost:           "pаypal.com",
		RiskScore:             97,
		RiskTier:              model.TierHigh,
		ClassifierProbability: 0.37,
		SignificantFeatures: model.FeatureMap{
			{Name: "phish_hints", Value: 1},
			{Name: "ratio_digits_url", Value: 0.42},
		},
		Threats:   []string{"ML model detected phishing patterns (37% confidence)", "URL flagged by Safe Browsing (SOCIAL_ENGINEERING)"},
		Sources:   []string{"Machine Learning Model", "Safe Browsing"},
		Blocked:   true,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(renderFixture())

	for _, want := range []string{
		"# Scan: http://xn--pypal-4ve.com/login",
		"Displayed host: `pаypal.com`",
		"| Risk score | **97/100** |",
		"| Risk tier | High |",
		"| Blocked | true |",
		"- URL flagged by Safe Browsing (SOCIAL_ENGINEERING)",
		"Detection sources: Machine Learning Model, Safe Browsing",
		"| `phish_hints` | 1 |",
		"| `ratio_digits_url` | 0.42 | Share of digits in the URL |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Expected markdown to contain %q\n%s", want, md)
		}
	}
}

func TestMarkdown_Degraded(t *testing.T) {
	md := Markdown(&model.ScanResult{
		URL:      "https://example.com",
		RiskTier: model.TierLow,
		Threats:  []string{"Risk could not be assessed: detection model unavailable"},
		Error:    "model unavailable (failed)",
	})

	if !strings.Contains(md, "**Degraded result:** model unavailable (failed)") {
		t.Errorf("Expected degraded banner, got:\n%s", md)
	}
	if !strings.Contains(md, "## Significant features\n\nNone.") {
		t.Errorf("Expected empty feature section, got:\n%s", md)
	}
}

func TestRenderSummary_NoColor(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, false).RenderSummary(renderFixture())
	out := buf.String()

	if strings.Contains(out, "\x1b[") {
		t.Error("Expected no ANSI escapes with colors disabled")
	}
	for _, want := range []string{"Risk: 97/100 (High)", "BLOCKED", "Host: pаypal.com", "Phishing keywords"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q\n%s", want, out)
		}
	}
}

func TestRenderSummary_Color(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, true).RenderSummary(renderFixture())
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Error("Expected ANSI escapes with colors enabled")
	}
}

func TestRenderFiles(t *testing.T) {
	dir := t.TempDir()
	result := renderFixture()
	result.Narrative = &model.Narrative{Provider: "ollama", Text: "Imitates PayPal with a Cyrillic a."}
	r := NewRenderer(&bytes.Buffer{}, false)

	jsonPath := filepath.Join(dir, "out", "scan.json")
	if err := r.RenderJSON(result, jsonPath); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("Failed to read JSON: %v", err)
	}
	var back model.ScanResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if back.RiskScore != 97 || back.SignificantFeatures.Names()[0] != "phish_hints" {
		t.Errorf("Unexpected decoded result: %+v", back)
	}

	mdPath := filepath.Join(dir, "scan.md")
	if err := r.RenderMarkdown(result, mdPath); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	main, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("Failed to read markdown: %v", err)
	}
	if strings.Contains(string(main), "Cyrillic") {
		t.Error("Narrative must not be mixed into the findings report")
	}
	narrative, err := os.ReadFile(filepath.Join(dir, "scan.narrative.md"))
	if err != nil {
		t.Fatalf("Expected narrative file: %v", err)
	}
	if !strings.Contains(string(narrative), "Cyrillic") {
		t.Errorf("Unexpected narrative file: %s", narrative)
	}
}
