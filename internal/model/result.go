package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RiskTier is the display bucket derived from a risk score
type RiskTier string

const (
	TierLow    RiskTier = "low"
	TierMedium RiskTier = "medium"
	TierHigh   RiskTier = "high"
)

func (t RiskTier) String() string {
	return string(t)
}

// Label returns the capitalised tier name used in human-facing output
func (t RiskTier) Label() string {
	switch t {
	case TierHigh:
		return "High"
	case TierMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// ScanResult is the outcome of scanning one URL. It is never mutated after construction.
type ScanResult struct {
	ID                    string     `json:"id"`
	URL                   string     `json:"url"`
	DisplayHost           string     `json:"display_host,omitempty"` // Unicode form of a punycode host
	RiskScore             int        `json:"risk_score"`             // 0-100
	RiskTier              RiskTier   `json:"risk_tier"`
	ClassifierProbability float64    `json:"classifier_probability"` // 0-1
	SignificantFeatures   FeatureMap `json:"significant_features"`
	Threats               []string   `json:"threats"`
	Sources               []string   `json:"sources,omitempty"` // detection sources that contributed
	Blocked               bool       `json:"blocked"`           // riskScore crossed the blocking threshold
	Error                 string     `json:"error,omitempty"`   // set when scoring degraded to the safe default
	Timestamp             time.Time  `json:"timestamp"`

	Narrative *Narrative `json:"narrative,omitempty"` // optional LLM summary, never affects the score
}

// Narrative holds an optional LLM-written explanation of a result
type Narrative struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Text     string `json:"text"`
}

// FeatureValue is one named feature value
type FeatureValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// FeatureMap is an insertion-ordered name -> value mapping.
// It serialises as a JSON object whose keys keep their order.
type FeatureMap []FeatureValue

// Get returns the value stored under name
func (m FeatureMap) Get(name string) (float64, bool) {
	for _, fv := range m {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return 0, false
}

// Has reports whether name is present
func (m FeatureMap) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Names returns keys in insertion order
func (m FeatureMap) Names() []string {
	names := make([]string, len(m))
	for i, fv := range m {
		names[i] = fv.Name
	}
	return names
}

// MarshalJSON writes the map as an ordered JSON object
func (m FeatureMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fv := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fv.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fv.Value)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", fv.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object back, preserving key order
func (m *FeatureMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("feature map: expected object, got %v", tok)
	}

	out := FeatureMap{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("feature map: expected string key, got %v", keyTok)
		}
		var value float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("feature %s: %w", key, err)
		}
		out = append(out, FeatureValue{Name: key, Value: value})
	}
	*m = out
	return nil
}
