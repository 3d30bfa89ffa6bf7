package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/posture-cli/internal/posture"
)

var (
	attentionFlags scopeFlags
	attentionLimit int
)

var attentionCmd = &cobra.Command{
	Use:   "attention",
	Short: "List the metrics most in need of attention",
	Long: `Rank scoreable metrics by priority, then by score, lowest first.

--limit 0 uses scoring.attention_limit from config; a negative limit lists
every scoreable metric.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, &attentionFlags, func(env *engineEnv, scope posture.Scope) error {
			items, err := env.Service.MetricsNeedingAttention(cmd.Context(), scope, attentionLimit)
			if err != nil {
				return eris.Wrap(err, "attention")
			}
			return writeOutput(attentionFlags.output, func(w io.Writer) error {
				return writeAttention(w, attentionFlags.format, items)
			})
		})
	},
}

func init() {
	attentionFlags.register(attentionCmd)
	attentionCmd.Flags().IntVar(&attentionLimit, "limit", 0, "maximum metrics to list (0=config default, negative=all)")
	rootCmd.AddCommand(attentionCmd)
}
