package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/posture-cli/internal/importer"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage custom metric catalogs",
}

var (
	catalogFile      string
	catalogOwner     string
	catalogName      string
	catalogFramework string
	catalogActivate  bool
	catalogID        string
)

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a custom catalog from a CSV or XLSX file",
	Long: `Import a custom catalog from a CSV or XLSX file.

Required columns: name, direction. Optional: id, description, current_value,
target_value, tolerance_low, tolerance_high, weight, priority, active,
function, category, subcategory. Rows without a function or category are
imported unmapped. Any invalid row aborts the import.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		fw := catalogFramework
		if fw == "" {
			fw = cfg.Scoring.DefaultFramework
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := importer.New(env.Store, env.Taxonomy).Import(ctx, importer.Request{
			Path:          catalogFile,
			Owner:         catalogOwner,
			Name:          catalogName,
			FrameworkCode: fw,
			Activate:      catalogActivate,
		})
		if err != nil {
			return eris.Wrap(err, "catalog import")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Imported catalog %s: %d items (%d mapped, %d unmapped), active=%v\n",
			res.Catalog.ID, res.Items, res.Mapped, res.Unmapped, res.Catalog.Active)
		return nil
	},
}

var catalogActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Make a catalog the owner's active catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.ActivateCatalog(ctx, catalogOwner, catalogID); err != nil {
			return eris.Wrapf(err, "catalog activate %s", catalogID)
		}

		zap.L().Info("catalog activated",
			zap.String("catalog_id", catalogID),
			zap.String("owner", catalogOwner),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Catalog %s is now active for %s\n", catalogID, catalogOwner)
		return nil
	},
}

func init() {
	f := catalogImportCmd.Flags()
	f.StringVar(&catalogFile, "file", "", "path to a .csv or .xlsx file (required)")
	f.StringVar(&catalogOwner, "owner", "", "catalog owner (required)")
	f.StringVar(&catalogName, "name", "", "catalog name (required)")
	f.StringVar(&catalogFramework, "framework", "", "framework the catalog maps to (default from config)")
	f.BoolVar(&catalogActivate, "activate", false, "activate the catalog after import")
	_ = catalogImportCmd.MarkFlagRequired("file")
	_ = catalogImportCmd.MarkFlagRequired("owner")
	_ = catalogImportCmd.MarkFlagRequired("name")

	a := catalogActivateCmd.Flags()
	a.StringVar(&catalogID, "id", "", "catalog ID (required)")
	a.StringVar(&catalogOwner, "owner", "", "catalog owner (required)")
	_ = catalogActivateCmd.MarkFlagRequired("id")
	_ = catalogActivateCmd.MarkFlagRequired("owner")

	catalogCmd.AddCommand(catalogImportCmd, catalogActivateCmd)
	rootCmd.AddCommand(catalogCmd)
}
