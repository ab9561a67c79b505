package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// StandardScaler holds the per-column statistics frozen at fit time.
type StandardScaler struct {
	FeatureNames []string  `json:"feature_names,omitempty"`
	Mean         []float64 `json:"mean,omitempty"`
	Scale        []float64 `json:"scale,omitempty"`
}

func LoadScaler(path string) (*StandardScaler, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var scaler StandardScaler
	if err := json.Unmarshal(payload, &scaler); err != nil {
		return nil, fmt.Errorf("%w: scaler %s: %v", ErrInvalidArtifact, path, err)
	}
	if err := scaler.init(); err != nil {
		return nil, fmt.Errorf("scaler %s: %w", path, err)
	}
	return &scaler, nil
}

// NewStandardScaler validates mean and scale against the fixed column layout.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	scaler := &StandardScaler{
		FeatureNames: FeatureNames(),
		Mean:         append([]float64(nil), mean...),
		Scale:        append([]float64(nil), scale...),
	}
	if err := scaler.init(); err != nil {
		return nil, err
	}
	return scaler, nil
}

func (s *StandardScaler) init() error {
	if s.FeatureNames != nil {
		names := FeatureNames()
		if len(s.FeatureNames) != len(names) {
			return fmt.Errorf("%w: scaler was fitted on %d features, expected %d", ErrFeatureMismatch, len(s.FeatureNames), len(names))
		}
		for i, name := range names {
			if s.FeatureNames[i] != name {
				return fmt.Errorf("%w: scaler column %d is %q, expected %q", ErrFeatureMismatch, i, s.FeatureNames[i], name)
			}
		}
	}

	if s.Mean == nil {
		s.Mean = make([]float64, NumFeatures)
	}
	if s.Scale == nil {
		s.Scale = make([]float64, NumFeatures)
		for i := range s.Scale {
			s.Scale[i] = 1
		}
	}
	if len(s.Mean) != NumFeatures || len(s.Scale) != NumFeatures {
		return fmt.Errorf("%w: scaler has %d means and %d scales, expected %d", ErrInvalidArtifact, len(s.Mean), len(s.Scale), NumFeatures)
	}

	for i := range s.Scale {
		if !isFinite(s.Mean[i]) || !isFinite(s.Scale[i]) {
			return fmt.Errorf("%w: scaler statistics for %s are not finite", ErrInvalidArtifact, FeatureNames()[i])
		}
		// constant column at fit time
		if s.Scale[i] == 0 {
			s.Scale[i] = 1
		}
	}
	return nil
}

func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) {
		return nil, fmt.Errorf("%w: X has %d features, but StandardScaler is expecting %d features as input", ErrFeatureMismatch, len(features), len(s.Mean))
	}
	result := make([]float64, len(features))
	for i, value := range features {
		if !isFinite(value) {
			return nil, fmt.Errorf("input contains NaN or infinity in %s", FeatureNames()[i])
		}
		result[i] = (value - s.Mean[i]) / s.Scale[i]
		if !isFinite(result[i]) {
			return nil, fmt.Errorf("scaled value for %s is not finite", FeatureNames()[i])
		}
	}
	return result, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
