package score

import (
	"fmt"
	"math"

	"github.com/ppiankov/phishlens/internal/model"
)

// SourceModel names the classifier as a detection source
const SourceModel = "Machine Learning Model"

// mlThreatFloor is the probability above which the classifier is reported as a threat
const mlThreatFloor = 0.3

// Signal is an external risk contribution, e.g. a reputation-service hit.
// Contribution is added to the score as-is; the scorer does no I/O.
type Signal struct {
	Contribution int    `json:"contribution"`
	Threat       string `json:"threat"`
	Source       string `json:"source"`
}

// Assessment is the scorer's output
type Assessment struct {
	RiskScore int            `json:"risk_score"`
	Tier      model.RiskTier `json:"risk_tier"`
	Threats   []string       `json:"threats"`
	Sources   []string       `json:"sources"`
	Blocked   bool           `json:"blocked"`
}

// Scorer combines a classifier probability with external signals
type Scorer struct {
	thresholds model.Thresholds
}

// NewScorer creates a scorer with the given thresholds
func NewScorer(thresholds model.Thresholds) *Scorer {
	return &Scorer{thresholds: thresholds}
}

// Thresholds returns the tier and blocking thresholds in use
func (s *Scorer) Thresholds() model.Thresholds {
	return s.thresholds
}

// Score computes round(prob*100), adds every signal's contribution, then clamps to [0,100].
// A NaN probability is scored as 0.
func (s *Scorer) Score(prob float64, signals []Signal) Assessment {
	if math.IsNaN(prob) {
		prob = 0
	}

	a := Assessment{
		RiskScore: int(math.Round(prob * 100)),
		Threats:   []string{},
		Sources:   []string{},
	}

	if prob > mlThreatFloor {
		a.Threats = append(a.Threats, fmt.Sprintf("ML model detected phishing patterns (%.0f%% confidence)", prob*100))
		a.Sources = append(a.Sources, SourceModel)
	}

	for _, sig := range signals {
		a.RiskScore += sig.Contribution
		if sig.Threat != "" {
			a.Threats = append(a.Threats, sig.Threat)
		}
		if sig.Source != "" {
			a.Sources = append(a.Sources, sig.Source)
		}
	}

	a.RiskScore = clamp(a.RiskScore, 0, 100)
	a.Tier = s.Tier(a.RiskScore)
	a.Blocked = a.RiskScore > s.thresholds.Block
	return a
}

// Tier maps a risk score to its display tier
func (s *Scorer) Tier(riskScore int) model.RiskTier {
	switch {
	case riskScore >= s.thresholds.High:
		return model.TierHigh
	case riskScore >= s.thresholds.Medium:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
