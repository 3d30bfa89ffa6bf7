package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/posture-cli/internal/model"
)

// Output formats.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatCSV, formatJSON:
		return nil
	default:
		return eris.Errorf("--format must be table, csv or json (got %q)", format)
	}
}

// openOutput returns stdout, or a created file when path is set.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create output file %s", path)
	}
	return f, f.Close, nil
}

// writeOutput runs render against the --output target.
func writeOutput(path string, render func(io.Writer) error) error {
	w, closeFn, err := openOutput(path)
	if err != nil {
		return err
	}
	if err := render(w); err != nil {
		closeFn() //nolint:errcheck
		return err
	}
	return closeFn()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "write JSON")
	}
	return nil
}

var scoreCSVHeader = []string{"code", "name", "score_pct", "risk_rating", "metrics_count", "metrics_below_target_count"}

// writeScores renders aggregate scores. overall is appended when non-nil.
func writeScores(w io.Writer, format string, scores []model.AggregateScore, overall *model.OverallScore) error {
	switch format {
	case formatJSON:
		if overall == nil {
			return writeJSON(w, scores)
		}
		return writeJSON(w, struct {
			Functions []model.AggregateScore `json:"functions"`
			Overall   model.OverallScore     `json:"overall"`
		}{scores, *overall})

	case formatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(scoreCSVHeader); err != nil {
			return eris.Wrap(err, "write CSV header")
		}
		for _, s := range scores {
			if err := cw.Write([]string{
				s.Code,
				s.Name,
				fmt.Sprintf("%.1f", s.ScorePct),
				string(s.RiskRating),
				fmt.Sprintf("%d", s.MetricsCount),
				fmt.Sprintf("%d", s.MetricsBelowTargetCount),
			}); err != nil {
				return eris.Wrap(err, "write CSV row")
			}
		}
		if overall != nil {
			if err := cw.Write([]string{
				"OVERALL", "",
				fmt.Sprintf("%.1f", overall.ScorePct),
				string(overall.RiskRating),
				fmt.Sprintf("%d", overall.MetricsCount),
				"",
			}); err != nil {
				return eris.Wrap(err, "write CSV row")
			}
		}
		cw.Flush()
		return eris.Wrap(cw.Error(), "flush CSV")

	default:
		if _, err := fmt.Fprintf(w, "%-8s %-45s %7s %-10s %7s %6s\n",
			"Code", "Name", "Score", "Risk", "Metrics", "Below"); err != nil {
			return eris.Wrap(err, "write table header")
		}
		if _, err := fmt.Fprintln(w, strings.Repeat("-", 88)); err != nil {
			return eris.Wrap(err, "write table separator")
		}
		for _, s := range scores {
			if _, err := fmt.Fprintf(w, "%-8s %-45s %6.1f%% %-10s %7d %6d\n",
				s.Code, truncate(s.Name, 45), s.ScorePct, s.RiskRating.Label(), s.MetricsCount, s.MetricsBelowTargetCount); err != nil {
				return eris.Wrap(err, "write table row")
			}
		}
		if overall != nil {
			if _, err := fmt.Fprintf(w, "\nOverall: %.1f%% (%s risk) across %d functions, %d metrics\n",
				overall.ScorePct, overall.RiskRating.Label(), overall.FunctionsCount, overall.MetricsCount); err != nil {
				return eris.Wrap(err, "write table footer")
			}
		}
		return nil
	}
}

func writeOverall(w io.Writer, format, frameworkCode string, overall model.OverallScore) error {
	switch format {
	case formatJSON:
		return writeJSON(w, overall)
	case formatCSV:
		cw := csv.NewWriter(w)
		err := cw.WriteAll([][]string{
			{"framework", "score_pct", "risk_rating", "functions_count", "metrics_count"},
			{
				frameworkCode,
				fmt.Sprintf("%.1f", overall.ScorePct),
				string(overall.RiskRating),
				fmt.Sprintf("%d", overall.FunctionsCount),
				fmt.Sprintf("%d", overall.MetricsCount),
			},
		})
		return eris.Wrap(err, "write CSV")
	default:
		_, err := fmt.Fprintf(w, "Framework: %s\nScore:     %.1f%%\nRisk:      %s\nFunctions: %d\nMetrics:   %d\n",
			frameworkCode, overall.ScorePct, overall.RiskRating.Label(), overall.FunctionsCount, overall.MetricsCount)
		return eris.Wrap(err, "write overall")
	}
}

func writeAttention(w io.Writer, format string, items []model.AttentionItem) error {
	switch format {
	case formatJSON:
		return writeJSON(w, items)
	case formatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"metric_id", "name", "function_code", "category_code", "priority_rank", "score_pct", "gap_pct"}); err != nil {
			return eris.Wrap(err, "write CSV header")
		}
		for _, it := range items {
			if err := cw.Write([]string{
				it.MetricID,
				it.Name,
				it.FunctionCode,
				it.CategoryCode,
				fmt.Sprintf("%d", it.PriorityRank),
				fmt.Sprintf("%.1f", it.ScorePct),
				formatGap(it.GapPct),
			}); err != nil {
				return eris.Wrap(err, "write CSV row")
			}
		}
		cw.Flush()
		return eris.Wrap(cw.Error(), "flush CSV")
	default:
		if _, err := fmt.Fprintf(w, "%-20s %-40s %-8s %4s %7s %8s\n",
			"Metric", "Name", "Function", "Prio", "Score", "Gap"); err != nil {
			return eris.Wrap(err, "write table header")
		}
		if _, err := fmt.Fprintln(w, strings.Repeat("-", 92)); err != nil {
			return eris.Wrap(err, "write table separator")
		}
		for _, it := range items {
			if _, err := fmt.Fprintf(w, "%-20s %-40s %-8s %4d %6.1f%% %8s\n",
				truncate(it.MetricID, 20), truncate(it.Name, 40), it.FunctionCode, it.PriorityRank, it.ScorePct, formatGap(it.GapPct)); err != nil {
				return eris.Wrap(err, "write table row")
			}
		}
		return nil
	}
}

func formatGap(g *float64) string {
	if g == nil {
		return ""
	}
	return fmt.Sprintf("%+.1f%%", *g)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
