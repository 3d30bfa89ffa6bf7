// Package scorer converts metric observations into normalized scores and
// rolls them up into category, function and overall posture scores.
package scorer

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/posture-cli/internal/config"
)

// BelowTargetScore is the fixed per-metric cutoff for counting a metric as
// below target. It is independent of the risk cutoffs.
const BelowTargetScore = 0.9

// Target-range tuning. A zero-width range is treated as one unit wide, and
// the penalty is capped at 2.
const (
	minRangeSpan    = 1.0
	maxRangePenalty = 2.0
)

// ValidateRiskConfig checks that a RiskConfig is usable by a RiskClassifier.
func ValidateRiskConfig(c config.RiskConfig) error {
	if err := c.Validate(); err != nil {
		return eris.Wrap(err, "scorer: validate risk config")
	}
	return nil
}
