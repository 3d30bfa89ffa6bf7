package importer

import (
	"strings"

	"golang.org/x/text/cases"
)

// Canonical column keys.
const (
	colID            = "id"
	colName          = "name"
	colDescription   = "description"
	colOwner         = "owner"
	colDirection     = "direction"
	colCurrent       = "current_value"
	colTarget        = "target_value"
	colToleranceLow  = "tolerance_low"
	colToleranceHigh = "tolerance_high"
	colWeight        = "weight"
	colPriority      = "priority_rank"
	colFunction      = "function_code"
	colCategory      = "category_code"
	colSubcategory   = "subcategory_code"
	colActive        = "active"
)

// headerAliases maps normalized spreadsheet headings to canonical keys.
var headerAliases = map[string]string{
	"id": colID, "metric_id": colID, "key": colID,
	"name": colName, "metric": colName, "metric_name": colName, "title": colName,
	"description": colDescription, "details": colDescription,
	"owner": colOwner, "responsible": colOwner, "responsible_party": colOwner,
	"direction": colDirection, "scoring_direction": colDirection, "type": colDirection,
	"current": colCurrent, "current_value": colCurrent, "value": colCurrent, "actual": colCurrent,
	"target": colTarget, "target_value": colTarget, "goal": colTarget,
	"tolerance_low": colToleranceLow, "low": colToleranceLow, "min": colToleranceLow, "lower_bound": colToleranceLow,
	"tolerance_high": colToleranceHigh, "high": colToleranceHigh, "max": colToleranceHigh, "upper_bound": colToleranceHigh,
	"weight": colWeight,
	"priority": colPriority, "priority_rank": colPriority, "rank": colPriority,
	"function": colFunction, "function_code": colFunction, "csf_function": colFunction,
	"category": colCategory, "category_code": colCategory, "csf_category": colCategory,
	"subcategory": colSubcategory, "subcategory_code": colSubcategory,
	"active": colActive, "enabled": colActive,
}

// normalizeHeader case-folds a heading and collapses punctuation and spaces
// to single underscores: "Current Value (%)" becomes "current_value".
func normalizeHeader(h string) string {
	h = cases.Fold().String(strings.TrimSpace(h))

	var b strings.Builder
	lastUnderscore := true
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// columnIndex maps canonical keys to their position in header. Unknown
// headings are ignored; the first occurrence of a key wins.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}
