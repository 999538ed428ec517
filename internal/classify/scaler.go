package classify

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/ppiankov/phishlens/internal/extract"
)

// Scaler holds per-feature standardisation parameters, aligned with extract.Names.
// It is read-only after loading.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ReadScaler decodes and validates scaler parameters
func ReadScaler(r io.Reader) (*Scaler, error) {
	var s Scaler
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks lengths and that every scale is usable as a divisor
func (s *Scaler) Validate() error {
	if len(s.Mean) != extract.NumFeatures || len(s.Scale) != extract.NumFeatures {
		return fmt.Errorf("scaler: mean/scale length %d/%d, want %d", len(s.Mean), len(s.Scale), extract.NumFeatures)
	}
	for i := range s.Scale {
		if s.Scale[i] == 0 || !finite(s.Scale[i]) || !finite(s.Mean[i]) {
			return fmt.Errorf("scaler: invalid parameters for %s (mean=%v scale=%v)", extract.Names[i], s.Mean[i], s.Scale[i])
		}
	}
	return nil
}

// Normalize applies (v[i] - mean[i]) / scale[i] to every slot. No clamping.
func Normalize(v []float64, s *Scaler) ([]float64, error) {
	if s == nil {
		return nil, ErrNotLoaded
	}
	if err := checkLength(v, extract.NumFeatures); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	out := make([]float64, len(v))
	for i, x := range v {
		if math.IsNaN(x) {
			x = 0
		}
		out[i] = (x - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
