package score

import (
	"math"
	"strings"
	"testing"

	"github.com/ppiankov/phishlens/internal/model"
)

func TestScorer_Score_ProbabilityOnly(t *testing.T) {
	scorer := NewScorer(model.DefaultThresholds())

	result := scorer.Score(0.5, nil)

	if result.RiskScore != 50 {
		t.Errorf("Expected risk score 50, got %d", result.RiskScore)
	}
	if result.Tier != model.TierMedium {
		t.Errorf("Expected tier medium, got %s", result.Tier)
	}
	if len(result.Threats) != 1 || !strings.Contains(result.Threats[0], "50%") {
		t.Errorf("Expected one ML threat reporting 50%%, got %v", result.Threats)
	}
	if len(result.Sources) != 1 || result.Sources[0] != SourceModel {
		t.Errorf("Expected source %q, got %v", SourceModel, result.Sources)
	}
	if result.Blocked {
		t.Error("Expected score 50 not to be blocked")
	}
}

func TestScorer_Score_ReputationHitClamps(t *testing.T) {
	scorer := NewScorer(model.DefaultThresholds())

	result := scorer.Score(0.5, []Signal{
		{Contribution: 60, Threat: "Listed by reputation service", Source: "Safe Browsing"},
	})

	if result.RiskScore != 100 {
		t.Errorf("Expected clamped risk score 100, got %d", result.RiskScore)
	}
	if result.Tier != model.TierHigh {
		t.Errorf("Expected tier high, got %s", result.Tier)
	}
	if len(result.Threats) != 2 {
		t.Fatalf("Expected 2 threats, got %d: %v", len(result.Threats), result.Threats)
	}
	if result.Threats[1] != "Listed by reputation service" {
		t.Errorf("Expected signal threat second, got %q", result.Threats[1])
	}
	if !result.Blocked {
		t.Error("Expected score 100 to exceed the blocking threshold")
	}
}

func TestScorer_Score_LowProbabilityNoThreat(t *testing.T) {
	scorer := NewScorer(model.DefaultThresholds())

	for _, prob := range []float64{0, 0.1, 0.3} {
		result := scorer.Score(prob, nil)
		if len(result.Threats) != 0 {
			t.Errorf("prob %.2f: expected no threats, got %v", prob, result.Threats)
		}
		if result.Tier != model.TierLow {
			t.Errorf("prob %.2f: expected tier low, got %s", prob, result.Tier)
		}
	}
}

func TestScorer_Score_Rounding(t *testing.T) {
	scorer := NewScorer(model.DefaultThresholds())

	tests := []struct {
		prob float64
		want int
	}{
		{0.744, 74},
		{0.746, 75},
		{0.999, 100},
		{0.004, 0},
		{1, 100},
	}

	for _, tt := range tests {
		if got := scorer.Score(tt.prob, nil).RiskScore; got != tt.want {
			t.Errorf("Score(%v) = %d, expected %d", tt.prob, got, tt.want)
		}
	}
}

func TestScorer_Tier_Boundaries(t *testing.T) {
	scorer := NewScorer(model.DefaultThresholds())

	tests := []struct {
		score int
		want  model.RiskTier
	}{
		{0, model.TierLow},
		{49, model.TierLow},
		{50, model.TierMedium},
		{74, model.TierMedium},
		{75, model.TierHigh},
		{100, model.TierHigh},
	}

	for _, tt := range tests {
		if got := scorer.Tier(tt.score); got != tt.want {
			t.Errorf("Tier(%d) = %s, expected %s", tt.score, got, tt.want)
		}
	}
}

func TestScorer_Score_BlockingIsSeparateFromTier(t *testing.T) {
	scorer := NewScorer(model.DefaultThresholds())

	// High tier but below the blocking gate
	result := scorer.Score(0.9, nil)
	if result.Tier != model.TierHigh {
		t.Errorf("Expected tier high, got %s", result.Tier)
	}
	if result.Blocked {
		t.Error("Expected 90 to be shown as risky but not blocked")
	}

	// Exactly at the gate is not blocked; above it is
	if scorer.Score(0.95, nil).Blocked {
		t.Error("Expected 95 not to exceed the blocking threshold")
	}
	if !scorer.Score(0.96, nil).Blocked {
		t.Error("Expected 96 to exceed the blocking threshold")
	}

	strict := NewScorer(model.Thresholds{Medium: 50, High: 75, Block: 60})
	if !strict.Score(0.7, nil).Blocked {
		t.Error("Expected configurable blocking threshold to apply")
	}
}

func TestScorer_Score_NegativeSignalClampsAtZero(t *testing.T) {
	scorer := NewScorer(model.DefaultThresholds())

	result := scorer.Score(0.2, []Signal{{Contribution: -50, Source: "Allowlist"}})
	if result.RiskScore != 0 {
		t.Errorf("Expected risk score clamped to 0, got %d", result.RiskScore)
	}
	if len(result.Threats) != 0 {
		t.Errorf("Expected signal without threat text to add no threat, got %v", result.Threats)
	}
	if len(result.Sources) != 1 {
		t.Errorf("Expected 1 source, got %v", result.Sources)
	}
}

func TestScorer_Score_NaNProbability(t *testing.T) {
	scorer := NewScorer(model.DefaultThresholds())

	result := scorer.Score(math.NaN(), nil)
	if result.RiskScore != 0 || result.Tier != model.TierLow {
		t.Errorf("Expected NaN to score 0/low, got %d/%s", result.RiskScore, result.Tier)
	}
}
