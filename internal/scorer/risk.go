package scorer

import (
	"github.com/sells-group/posture-cli/internal/config"
	"github.com/sells-group/posture-cli/internal/model"
)

// RiskClassifier bands percentage scores into risk ratings using a fixed set
// of cutoffs. It is immutable and safe for concurrent use.
type RiskClassifier struct {
	cfg config.RiskConfig
}

// NewRiskClassifier validates cfg and returns a classifier bound to it.
func NewRiskClassifier(cfg config.RiskConfig) (*RiskClassifier, error) {
	if err := ValidateRiskConfig(cfg); err != nil {
		return nil, err
	}
	return &RiskClassifier{cfg: cfg}, nil
}

// Classify maps a score in percent to a rating. A score equal to a cutoff
// lands in the better band. NaN falls through to very high.
func (c *RiskClassifier) Classify(scorePct float64) model.RiskRating {
	switch {
	case scorePct >= c.cfg.VeryLowCutoff:
		return model.RiskVeryLow
	case scorePct >= c.cfg.LowCutoff:
		return model.RiskLow
	case scorePct >= c.cfg.MediumCutoff:
		return model.RiskMedium
	case scorePct >= c.cfg.HighCutoff:
		return model.RiskHigh
	default:
		return model.RiskVeryHigh
	}
}
