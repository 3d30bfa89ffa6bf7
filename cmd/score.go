package main

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/posture"
)

// scopeFlags are shared by every scoring command.
type scopeFlags struct {
	framework string
	catalog   string
	owner     string
	format    string
	output    string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	fl := cmd.PersistentFlags()
	fl.StringVar(&f.framework, "framework", "", "framework code (default from config)")
	fl.StringVar(&f.catalog, "catalog", "", `custom catalog ID, or "active" for the owner's active catalog`)
	fl.StringVar(&f.owner, "owner", "", "catalog owner")
	fl.StringVar(&f.format, "format", formatTable, "output format: table, csv or json")
	fl.StringVar(&f.output, "output", "", "output file path (default: stdout)")
}

func (f *scopeFlags) scope() posture.Scope {
	fw := f.framework
	if fw == "" {
		fw = cfg.Scoring.DefaultFramework
	}
	return posture.Scope{FrameworkCode: fw, CatalogID: f.catalog, Owner: f.owner}
}

var (
	scoreFlags    scopeFlags
	scoreFunction string
	scoreAll      string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute posture scores",
	Long: `Compute posture scores for a framework from the default metric catalog
or a custom catalog.

Examples:
  # Function scores and overall posture for NIST CSF 2.0
  score functions

  # Category scores under Protect, from the owner's active catalog
  score categories --function PR --catalog active --owner acme

  # Every configured framework as JSON
  score all --format json --output posture.json`,
}

var scoreFunctionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Score every function of a framework",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, &scoreFlags, func(env *engineEnv, scope posture.Scope) error {
			scores, err := env.Service.ComputeFunctionScores(cmd.Context(), scope)
			if err != nil {
				return eris.Wrap(err, "score functions")
			}
			overall := env.Service.ComputeOverallScore(scores)
			return writeOutput(scoreFlags.output, func(w io.Writer) error {
				return writeScores(w, scoreFlags.format, scores, &overall)
			})
		})
	},
}

var scoreCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Score the categories of one function",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if scoreFunction == "" {
			return eris.New("score categories: --function is required")
		}
		return withEngine(cmd, &scoreFlags, func(env *engineEnv, scope posture.Scope) error {
			scores, err := env.Service.ComputeCategoryScores(cmd.Context(), scoreFunction, scope)
			if err != nil {
				return eris.Wrap(err, "score categories")
			}
			return writeOutput(scoreFlags.output, func(w io.Writer) error {
				return writeScores(w, scoreFlags.format, scores, nil)
			})
		})
	},
}

var scoreOverallCmd = &cobra.Command{
	Use:   "overall",
	Short: "Compute the overall posture of a framework",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, &scoreFlags, func(env *engineEnv, scope posture.Scope) error {
			scores, err := env.Service.ComputeFunctionScores(cmd.Context(), scope)
			if err != nil {
				return eris.Wrap(err, "score overall")
			}
			overall := env.Service.ComputeOverallScore(scores)
			return writeOutput(scoreFlags.output, func(w io.Writer) error {
				return writeOverall(w, scoreFlags.format, scope.FrameworkCode, overall)
			})
		})
	},
}

var scoreAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Snapshot several frameworks concurrently",
	RunE: func(cmd *cobra.Command, _ []string) error {
		frameworks := splitAndTrim(scoreAll)
		if len(frameworks) == 0 {
			frameworks = cfg.Scoring.Frameworks
		}
		return withEngine(cmd, &scoreFlags, func(env *engineEnv, scope posture.Scope) error {
			snaps, err := env.Service.RecalculateAll(cmd.Context(), frameworks, scope)
			if err != nil {
				return eris.Wrap(err, "score all")
			}
			for _, s := range snaps {
				zap.L().Info("framework scored",
					zap.String("framework", s.FrameworkCode),
					zap.Float64("score_pct", s.Overall.ScorePct),
					zap.String("risk_rating", string(s.Overall.RiskRating)),
					zap.Int("unscoped", s.UnscopedCount),
				)
			}
			return writeOutput(scoreFlags.output, func(w io.Writer) error {
				return writeSnapshots(w, scoreFlags.format, snaps)
			})
		})
	},
}

func init() {
	scoreFlags.register(scoreCmd)
	scoreCategoriesCmd.Flags().StringVar(&scoreFunction, "function", "", "function code (required)")
	scoreAllCmd.Flags().StringVar(&scoreAll, "frameworks", "", "comma-separated framework codes (default from config)")

	scoreCmd.AddCommand(scoreFunctionsCmd, scoreCategoriesCmd, scoreOverallCmd, scoreAllCmd)
	rootCmd.AddCommand(scoreCmd)
}

// withEngine validates the shared flags, opens the engine and runs fn.
func withEngine(cmd *cobra.Command, f *scopeFlags, fn func(env *engineEnv, scope posture.Scope) error) error {
	if err := validateFormat(f.format); err != nil {
		return err
	}
	env, err := initEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env, f.scope())
}

// writeSnapshots renders snapshots as one JSON document, one CSV with a
// framework column, or one score table per framework.
func writeSnapshots(w io.Writer, format string, snaps []*model.PostureSnapshot) error {
	switch format {
	case formatJSON:
		return writeJSON(w, snaps)
	case formatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(append([]string{"framework"}, scoreCSVHeader...)); err != nil {
			return eris.Wrap(err, "write CSV header")
		}
		for _, s := range snaps {
			for _, b := range s.Functions {
				f := b.Function
				if err := cw.Write([]string{
					s.FrameworkCode,
					f.Code,
					f.Name,
					fmt.Sprintf("%.1f", f.ScorePct),
					string(f.RiskRating),
					fmt.Sprintf("%d", f.MetricsCount),
					fmt.Sprintf("%d", f.MetricsBelowTargetCount),
				}); err != nil {
					return eris.Wrap(err, "write CSV row")
				}
			}
		}
		cw.Flush()
		return eris.Wrap(cw.Error(), "flush CSV")
	}

	for i, s := range snaps {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return eris.Wrap(err, "write snapshot separator")
			}
		}
		if _, err := fmt.Fprintf(w, "== %s ==\n", s.FrameworkCode); err != nil {
			return eris.Wrap(err, "write snapshot header")
		}
		fns := make([]model.AggregateScore, len(s.Functions))
		for j, b := range s.Functions {
			fns[j] = b.Function
		}
		overall := s.Overall
		if err := writeScores(w, formatTable, fns, &overall); err != nil {
			return err
		}
	}
	return nil
}
