package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Direction describes how a metric's raw value maps to "good".
type Direction string

// Supported directions. The set is closed: ParseDirection rejects anything else.
const (
	HigherIsBetter Direction = "higher_is_better"
	LowerIsBetter  Direction = "lower_is_better"
	TargetRange    Direction = "target_range"
	Binary         Direction = "binary"
)

// Directions lists every legal direction.
var Directions = []Direction{HigherIsBetter, LowerIsBetter, TargetRange, Binary}

// ErrInvalidDirection is returned when a row carries a direction outside the closed set.
var ErrInvalidDirection = eris.New("invalid metric direction")

// ParseDirection converts a raw direction string into a Direction. Matching is
// case-insensitive and tolerates surrounding whitespace and hyphens.
func ParseDirection(s string) (Direction, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	norm = strings.ReplaceAll(norm, " ", "_")
	for _, d := range Directions {
		if norm == string(d) {
			return d, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidDirection, "direction %q", s)
}
