package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/okian/dropout/internal/domain/model"
)

// scalerFile is the exported StandardScaler state.
type scalerFile struct {
	Version      string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

// StandardScaler subtracts the fitted mean and divides by the fitted scale.
type StandardScaler struct {
	mean    [model.NumFeatures]float64
	scale   [model.NumFeatures]float64
	version string
}

// NewStandardScaler builds a scaler from fitted parameters.
func NewStandardScaler(mean, scale [model.NumFeatures]float64, version string) (*StandardScaler, error) {
	for i := range model.NumFeatures {
		if !finite(mean[i]) {
			return nil, invalidf("mean[%d] is not finite", i)
		}
		if !finite(scale[i]) || scale[i] == 0 {
			return nil, invalidf("scale[%d] must be finite and non-zero", i)
		}
	}
	return &StandardScaler{mean: mean, scale: scale, version: version}, nil
}

// LoadStandardScaler reads a scaler export from path.
func LoadStandardScaler(path string) (*StandardScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, invalidf("decode scaler: %v", err)
	}
	if len(f.FeatureNames) != model.NumFeatures {
		return nil, invalidf("scaler has %d feature names, want %d", len(f.FeatureNames), model.NumFeatures)
	}
	for i, name := range model.FeatureNames {
		if f.FeatureNames[i] != name {
			return nil, invalidf("feature %d is %q, want %q", i, f.FeatureNames[i], name)
		}
	}
	if len(f.Mean) != model.NumFeatures || len(f.Scale) != model.NumFeatures {
		return nil, invalidf("scaler mean/scale length %d/%d, want %d", len(f.Mean), len(f.Scale), model.NumFeatures)
	}
	var mean, scale [model.NumFeatures]float64
	copy(mean[:], f.Mean)
	copy(scale[:], f.Scale)
	return NewStandardScaler(mean, scale, pickVersion(f.Version, data))
}

// Transform standardizes fv feature by feature.
func (s *StandardScaler) Transform(fv model.FeatureVector) (model.ScaledFeatureVector, error) {
	var out model.ScaledFeatureVector
	for i, v := range fv.Values() {
		out[i] = (v - s.mean[i]) / s.scale[i]
		if !finite(out[i]) {
			return model.ScaledFeatureVector{}, fmt.Errorf("%w: scaled %s", ErrNonFinite, model.FeatureNames[i])
		}
	}
	return out, nil
}

// Version identifies the fitted parameters.
func (s *StandardScaler) Version() string { return s.version }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
