package scorer

import (
	"cmp"
	"slices"

	"github.com/sells-group/posture-cli/internal/model"
)

// RankAttention orders scoreable metrics by urgency: priority rank ascending,
// then score ascending, then metric ID so repeated calls on the same input
// always agree. Unscoreable metrics are dropped. limit <= 0 returns all.
func RankAttention(metrics []model.Metric, limit int) []model.AttentionItem {
	items := make([]model.AttentionItem, 0, len(metrics))
	for _, m := range metrics {
		s, ok := Score(m)
		if !ok {
			continue
		}
		item := model.AttentionItem{
			MetricID:     m.ID,
			Name:         m.Name,
			FunctionCode: m.FunctionCode,
			CategoryCode: m.CategoryCode,
			Direction:    m.Direction,
			PriorityRank: m.PriorityRank,
			Score:        s,
			ScorePct:     s * 100,
			CurrentValue: m.CurrentValue,
			TargetValue:  m.TargetValue,
			Owner:        m.Owner,
		}
		if g, ok := Gap(m); ok {
			item.GapPct = &g
		}
		items = append(items, item)
	}

	slices.SortStableFunc(items, func(a, b model.AttentionItem) int {
		if c := cmp.Compare(a.PriorityRank, b.PriorityRank); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Score, b.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.MetricID, b.MetricID)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
