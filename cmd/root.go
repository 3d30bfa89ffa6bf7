package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/posture-cli/internal/config"
)

var (
	cfg        *config.Config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "posture",
	Short: "Cybersecurity posture scoring engine",
	Long: `Scores security metrics against NIST CSF 2.0 and the AI RMF, rolls them up by
category and function, and bands the results into risk ratings.

Configuration comes from ./config.yaml (or --config) and POSTURE_* environment
variables, e.g. POSTURE_STORE_DATABASE_URL or POSTURE_RISK_HIGH_CUTOFF.`,
	Example: `  posture migrate
  posture catalog import --file q3.xlsx --owner acme --name "Q3 board" --activate
  posture score functions --framework nist_csf_2 --catalog active --owner acme
  posture score all --frameworks nist_csf_2,ai_rmf --format json
  posture attention --limit 5
  posture --config /etc/posture/config.yaml serve --port 9090`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
