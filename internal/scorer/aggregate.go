package scorer

import (
	"sort"

	"github.com/sells-group/posture-cli/internal/model"
)

// Group names one aggregation bucket known to the framework taxonomy.
type Group struct {
	Code string
	Name string
}

// Aggregate computes the weighted roll-up of metrics without a risk rating.
// Inactive metrics are ignored entirely. Unscoreable metrics count toward
// MetricsCount but are left out of both the numerator and the denominator.
// A group with no scoreable weight scores 0.
func Aggregate(code string, metrics []model.Metric) model.AggregateScore {
	agg := model.AggregateScore{Code: code}

	var totalWeight, weightedSum float64
	scoreable := 0
	for _, m := range metrics {
		if !m.Active {
			continue
		}
		agg.MetricsCount++

		s, ok := Score(m)
		if !ok {
			continue
		}
		scoreable++
		totalWeight += m.Weight
		weightedSum += s * m.Weight
		if s < BelowTargetScore {
			agg.MetricsBelowTargetCount++
		}
	}

	if scoreable > 0 && totalWeight > 0 {
		agg.WeightedScore = weightedSum / totalWeight
	}
	agg.ScorePct = agg.WeightedScore * 100
	return agg
}

// Aggregator rates aggregates with a RiskClassifier.
type Aggregator struct {
	risk *RiskClassifier
}

// NewAggregator creates an Aggregator using the given classifier.
func NewAggregator(risk *RiskClassifier) *Aggregator {
	return &Aggregator{risk: risk}
}

// Group aggregates metrics as a single scope and attaches a rating.
func (a *Aggregator) Group(code, name string, metrics []model.Metric) model.AggregateScore {
	agg := Aggregate(code, metrics)
	agg.Name = name
	agg.RiskRating = a.risk.Classify(agg.ScorePct)
	return agg
}

// FunctionScores groups metrics by function code. Every function in known is
// reported, in order, even with no metrics; functions found only in the data
// follow in code order. Metrics without a function code are skipped.
func (a *Aggregator) FunctionScores(metrics []model.Metric, known []Group) []model.AggregateScore {
	buckets := bucketBy(metrics, func(m model.Metric) string { return m.FunctionCode })
	return a.rateBuckets(buckets, known)
}

// CategoryScores groups the metrics of one function by category code.
// Metrics of that function without a category code are skipped here but
// still count at function level.
func (a *Aggregator) CategoryScores(functionCode string, metrics []model.Metric, known []Group) []model.AggregateScore {
	var scoped []model.Metric
	for _, m := range metrics {
		if m.FunctionCode == functionCode {
			scoped = append(scoped, m)
		}
	}
	buckets := bucketBy(scoped, func(m model.Metric) string { return m.CategoryCode })
	return a.rateBuckets(buckets, known)
}

// Overall averages the weighted scores of the given functions. Each function
// with at least one metric contributes equally regardless of its size;
// functions with no metrics are left out.
func (a *Aggregator) Overall(functions []model.AggregateScore) model.OverallScore {
	var out model.OverallScore
	var sum float64
	for _, f := range functions {
		if f.MetricsCount == 0 {
			continue
		}
		out.FunctionsCount++
		out.MetricsCount += f.MetricsCount
		sum += f.WeightedScore
	}
	if out.FunctionsCount > 0 {
		out.ScorePct = sum / float64(out.FunctionsCount) * 100
	}
	out.RiskRating = a.risk.Classify(out.ScorePct)
	return out
}

func (a *Aggregator) rateBuckets(buckets map[string][]model.Metric, known []Group) []model.AggregateScore {
	out := make([]model.AggregateScore, 0, len(known)+len(buckets))
	seen := make(map[string]bool, len(known))
	for _, g := range known {
		if seen[g.Code] {
			continue
		}
		seen[g.Code] = true
		out = append(out, a.Group(g.Code, g.Name, buckets[g.Code]))
	}

	var extra []string
	for code := range buckets {
		if !seen[code] {
			extra = append(extra, code)
		}
	}
	sort.Strings(extra)
	for _, code := range extra {
		out = append(out, a.Group(code, "", buckets[code]))
	}
	return out
}

// bucketBy groups active metrics by key, dropping those with an empty key.
// Input order is preserved within each bucket.
func bucketBy(metrics []model.Metric, key func(model.Metric) string) map[string][]model.Metric {
	buckets := make(map[string][]model.Metric)
	for _, m := range metrics {
		if !m.Active {
			continue
		}
		k := key(m)
		if k == "" {
			continue
		}
		buckets[k] = append(buckets[k], m)
	}
	return buckets
}
