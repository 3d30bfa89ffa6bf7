package model

import (
	"math"

	"github.com/rotisserie/eris"
)

// DefaultWeight applies when a source row carries no weight.
const DefaultWeight = 1.0

// Priority ranks. 1 is the most urgent.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// ErrMalformedMetric is returned when a source row violates a Metric invariant.
var ErrMalformedMetric = eris.New("malformed metric")

// Metric is the normalized unit of scoring. Adapters build one per source row
// for every scoring run; the engine never mutates it.
type Metric struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Owner           string    `json:"owner,omitempty"`
	Direction       Direction `json:"direction"`
	CurrentValue    *float64  `json:"current_value,omitempty"`
	TargetValue     *float64  `json:"target_value,omitempty"`
	ToleranceLow    *float64  `json:"tolerance_low,omitempty"`
	ToleranceHigh   *float64  `json:"tolerance_high,omitempty"`
	Weight          float64   `json:"weight"`
	PriorityRank    int       `json:"priority_rank"`
	FrameworkCode   string    `json:"framework_code,omitempty"`
	FunctionCode    string    `json:"function_code,omitempty"`
	CategoryCode    string    `json:"category_code,omitempty"`
	SubcategoryCode string    `json:"subcategory_code,omitempty"`
	Active          bool      `json:"active"`
}

// MetricInput carries the raw, source-agnostic fields an adapter collected
// for one metric before validation.
type MetricInput struct {
	ID              string
	Name            string
	Owner           string
	Direction       string
	CurrentValue    *float64
	TargetValue     *float64
	ToleranceLow    *float64
	ToleranceHigh   *float64
	Weight          *float64
	PriorityRank    int
	FrameworkCode   string
	FunctionCode    string
	CategoryCode    string
	SubcategoryCode string
	Active          bool
}

// NewMetric validates in and builds a Metric. An unknown direction, a negative
// or non-finite weight, or a priority outside 1..3 rejects the row. Missing
// values are legal and make the metric unscoreable rather than invalid.
func NewMetric(in MetricInput) (Metric, error) {
	if in.ID == "" {
		return Metric{}, eris.Wrap(ErrMalformedMetric, "missing id")
	}

	dir, err := ParseDirection(in.Direction)
	if err != nil {
		return Metric{}, eris.Wrapf(err, "metric %s", in.ID)
	}

	weight := DefaultWeight
	if in.Weight != nil {
		weight = *in.Weight
	}
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return Metric{}, eris.Wrapf(ErrMalformedMetric, "metric %s: weight %v must be a finite value >= 0", in.ID, weight)
	}

	priority := in.PriorityRank
	if priority == 0 {
		priority = PriorityMedium
	}
	if priority < PriorityHigh || priority > PriorityLow {
		return Metric{}, eris.Wrapf(ErrMalformedMetric, "metric %s: priority %d outside 1..3", in.ID, in.PriorityRank)
	}

	return Metric{
		ID:              in.ID,
		Name:            in.Name,
		Owner:           in.Owner,
		Direction:       dir,
		CurrentValue:    copyFloat(in.CurrentValue),
		TargetValue:     copyFloat(in.TargetValue),
		ToleranceLow:    copyFloat(in.ToleranceLow),
		ToleranceHigh:   copyFloat(in.ToleranceHigh),
		Weight:          weight,
		PriorityRank:    priority,
		FrameworkCode:   in.FrameworkCode,
		FunctionCode:    in.FunctionCode,
		CategoryCode:    in.CategoryCode,
		SubcategoryCode: in.SubcategoryCode,
		Active:          in.Active,
	}, nil
}

// Scoped reports whether the metric carries a function code and can take
// part in hierarchy aggregation.
func (m Metric) Scoped() bool {
	return m.FunctionCode != ""
}

// Float returns a pointer to v. Handy for building rows and fixtures.
func Float(v float64) *float64 { return &v }

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
