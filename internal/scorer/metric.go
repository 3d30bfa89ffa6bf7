package scorer

import (
	"math"

	"github.com/sells-group/posture-cli/internal/model"
)

// Score returns a metric's normalized score in [0, 1]. The boolean is false
// when the metric is unscoreable: inactive, missing its current value, or
// missing the target its direction requires. Unscoreable metrics must be
// excluded by callers, never treated as zero.
func Score(m model.Metric) (float64, bool) {
	if !m.Active || m.CurrentValue == nil || !finite(*m.CurrentValue) {
		return 0, false
	}
	current := *m.CurrentValue

	switch m.Direction {
	case model.Binary:
		if current != 0 {
			return 1, true
		}
		return 0, true

	case model.HigherIsBetter:
		target, ok := targetOf(m)
		if !ok {
			return 0, false
		}
		return scoreHigherIsBetter(current, target), true

	case model.LowerIsBetter:
		target, ok := targetOf(m)
		if !ok {
			return 0, false
		}
		return scoreLowerIsBetter(current, target), true

	case model.TargetRange:
		target, ok := targetOf(m)
		if !ok {
			return 0, false
		}
		low := valueOr(m.ToleranceLow, target)
		high := valueOr(m.ToleranceHigh, target)
		if !finite(low) || !finite(high) {
			return 0, false
		}
		return scoreTargetRange(current, low, high), true
	}

	// Directions are validated when the record is built; nothing reaches here.
	return 0, false
}

// Gap returns the signed percentage distance of a metric from its target.
// Negative always means behind target, whatever the direction. It needs a
// current value and a non-zero target, and is undefined for binary metrics.
func Gap(m model.Metric) (float64, bool) {
	if m.Direction == model.Binary || m.CurrentValue == nil || m.TargetValue == nil {
		return 0, false
	}
	current, target := *m.CurrentValue, *m.TargetValue
	if target == 0 || !finite(current) || !finite(target) {
		return 0, false
	}

	gap := (current - target) / target * 100
	if m.Direction == model.LowerIsBetter {
		gap = -gap
	}
	return gap, true
}

// scoreHigherIsBetter guards the ratio explicitly: a non-positive target has
// no meaningful ratio and scores zero.
func scoreHigherIsBetter(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return clamp01(current / target)
}

func scoreLowerIsBetter(current, target float64) float64 {
	if target == 0 {
		if current == 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - current/target)
}

// scoreTargetRange is 1.0 inside [low, high] and decays linearly with the
// distance to the nearest bound. The clamp reaches 0 one span outside the
// range, before the penalty cap applies.
func scoreTargetRange(current, low, high float64) float64 {
	if current >= low && current <= high {
		return 1
	}
	distance := math.Min(math.Abs(current-low), math.Abs(current-high))
	span := math.Max(high-low, minRangeSpan)
	penalty := math.Min(maxRangePenalty, distance/span)
	return clamp01(1 - penalty)
}

func targetOf(m model.Metric) (float64, bool) {
	if m.TargetValue == nil || !finite(*m.TargetValue) {
		return 0, false
	}
	return *m.TargetValue, true
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
