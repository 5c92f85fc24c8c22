// Package risk maps dropout probabilities to risk tiers.
package risk

import (
	"fmt"

	"github.com/okian/dropout/internal/domain/model"
)

// Tier thresholds. A probability equal to a threshold falls into the lower tier.
const (
	HighThreshold   = 0.7
	MediumThreshold = 0.3
)

// Classify derives the risk tier from a probability in [0,1].
func Classify(probability float64) model.RiskTier {
	switch {
	case probability > HighThreshold:
		return model.RiskHigh
	case probability > MediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// ParseTier reconstructs a RiskTier from its label.
func ParseTier(s string) (model.RiskTier, error) {
	switch model.RiskTier(s) {
	case model.RiskLow, model.RiskMedium, model.RiskHigh:
		return model.RiskTier(s), nil
	default:
		return "", fmt.Errorf("invalid risk tier: %q", s)
	}
}
