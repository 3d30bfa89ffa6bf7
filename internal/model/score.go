package model

import "time"

// RiskRating is one of five ordinal bands derived from a percentage score.
type RiskRating string

// Risk ratings, best first.
const (
	RiskVeryLow  RiskRating = "very_low"
	RiskLow      RiskRating = "low"
	RiskMedium   RiskRating = "medium"
	RiskHigh     RiskRating = "high"
	RiskVeryHigh RiskRating = "very_high"
)

// Label returns a human-readable rating.
func (r RiskRating) Label() string {
	switch r {
	case RiskVeryLow:
		return "Very Low"
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskVeryHigh:
		return "Very High"
	default:
		return string(r)
	}
}

// AggregateScore is the weighted roll-up of one group of metrics (a category,
// a function, or a whole framework).
type AggregateScore struct {
	Code                    string     `json:"code"`
	Name                    string     `json:"name,omitempty"`
	ScorePct                float64    `json:"score_pct"`
	RiskRating              RiskRating `json:"risk_rating"`
	MetricsCount            int        `json:"metrics_count"`
	MetricsBelowTargetCount int        `json:"metrics_below_target_count"`
	WeightedScore           float64    `json:"weighted_score"`
}

// OverallScore is the framework-level posture score.
type OverallScore struct {
	ScorePct       float64    `json:"score_pct"`
	RiskRating     RiskRating `json:"risk_rating"`
	FunctionsCount int        `json:"functions_count"`
	MetricsCount   int        `json:"metrics_count"`
}

// AttentionItem is a metric surfaced for intervention.
type AttentionItem struct {
	MetricID     string    `json:"metric_id"`
	Name         string    `json:"name"`
	FunctionCode string    `json:"function_code,omitempty"`
	CategoryCode string    `json:"category_code,omitempty"`
	Direction    Direction `json:"direction"`
	PriorityRank int       `json:"priority_rank"`
	Score        float64   `json:"score"`
	ScorePct     float64   `json:"score_pct"`
	GapPct       *float64  `json:"gap_pct"`
	CurrentValue *float64  `json:"current_value"`
	TargetValue  *float64  `json:"target_value"`
	Owner        string    `json:"owner,omitempty"`
}

// FunctionBreakdown pairs a function score with its category scores.
type FunctionBreakdown struct {
	Function   AggregateScore   `json:"function"`
	Categories []AggregateScore `json:"categories"`
}

// PostureSnapshot is a full recalculation of one framework for one scope.
type PostureSnapshot struct {
	FrameworkCode string              `json:"framework_code"`
	CatalogID     string              `json:"catalog_id,omitempty"`
	Owner         string              `json:"owner,omitempty"`
	Overall       OverallScore        `json:"overall"`
	Functions     []FunctionBreakdown `json:"functions"`
	UnscopedCount int                 `json:"unscoped_count"`
	ComputedAt    time.Time           `json:"computed_at"`
}
