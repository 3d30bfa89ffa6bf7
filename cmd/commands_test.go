package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/posture-cli/internal/config"
	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/store"
)

const catalogCSV = `name,direction,current_value,target_value,priority,function,category
Incident response plan tested,binary,1,,1,RS,RS.MA
Backups restored in drill,higher_is_better,80,100,2,RC,RC.RP
Policy exceptions open,lower_is_better,6,3,1,GV,GV.PO
`

// setupCLI points cfg at a fresh SQLite file seeded with default metrics and
// resets command flags afterwards.
func setupCLI(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "posture.db")

	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath},
		Risk:  config.DefaultRiskConfig(),
		Scoring: config.ScoringConfig{
			DefaultFramework: "nist_csf_2",
			Frameworks:       []string{"nist_csf_2", "ai_rmf"},
			AttentionLimit:   10,
		},
	}

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	for _, row := range []model.MetricRow{
		{ID: "mfa", Name: "MFA coverage", Direction: "higher_is_better", CurrentValue: model.Float(85), TargetValue: model.Float(95), PriorityRank: 1, FrameworkCode: "nist_csf_2", FunctionCode: "PR", CategoryCode: "PR.AA", Active: true},
		{ID: "mttd", Name: "Mean time to detect", Direction: "lower_is_better", CurrentValue: model.Float(8), TargetValue: model.Float(4), PriorityRank: 2, FrameworkCode: "nist_csf_2", FunctionCode: "DE", CategoryCode: "DE.CM", Active: true},
		{ID: "ai-inv", Name: "AI systems inventoried", Direction: "binary", CurrentValue: model.Float(1), FrameworkCode: "ai_rmf", FunctionCode: "MAP", CategoryCode: "MAP-1", Active: true},
	} {
		require.NoError(t, st.UpsertMetric(ctx, row))
	}
	require.NoError(t, st.Close())

	t.Cleanup(func() {
		scoreFlags = scopeFlags{format: formatTable}
		attentionFlags = scopeFlags{format: formatTable}
		scoreFunction, scoreAll = "", ""
		attentionLimit = 0
		catalogFile, catalogOwner, catalogName, catalogFramework, catalogID = "", "", "", "", ""
		catalogActivate = false
	})
	return dbPath
}

func runCmd(t *testing.T, c *cobra.Command) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetContext(context.Background())
	err := c.RunE(c, nil)
	return out.String(), err
}

func TestMigrateCmd(t *testing.T) {
	setupCLI(t)
	_, err := runCmd(t, migrateCmd)
	require.NoError(t, err)
}

func TestScoreFunctionsCmd_JSON(t *testing.T) {
	setupCLI(t)
	outPath := filepath.Join(t.TempDir(), "functions.json")
	scoreFlags = scopeFlags{format: formatJSON, output: outPath}

	_, err := runCmd(t, scoreFunctionsCmd)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var got struct {
		Functions []model.AggregateScore `json:"functions"`
		Overall   model.OverallScore     `json:"overall"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.Functions, 6)
	assert.Equal(t, 2, got.Overall.FunctionsCount)
	assert.InDelta(t, 85.0/95.0*50, got.Overall.ScorePct, 1e-6)
}

func TestScoreCategoriesCmd_RequiresFunction(t *testing.T) {
	setupCLI(t)
	_, err := runCmd(t, scoreCategoriesCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--function is required")
}

func TestScoreCategoriesCmd_CSV(t *testing.T) {
	setupCLI(t)
	outPath := filepath.Join(t.TempDir(), "cats.csv")
	scoreFlags = scopeFlags{format: formatCSV, output: outPath}
	scoreFunction = "PR"

	_, err := runCmd(t, scoreCategoriesCmd)
	require.NoError(t, err)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(records), 1)
	assert.Equal(t, "PR.AA", records[1][0])
	assert.Equal(t, "89.5", records[1][2])
}

func TestScoreCmd_BadFormat(t *testing.T) {
	setupCLI(t)
	scoreFlags = scopeFlags{format: "xml"}

	_, err := runCmd(t, scoreOverallCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--format")
}

func TestScoreAllCmd(t *testing.T) {
	setupCLI(t)
	outPath := filepath.Join(t.TempDir(), "all.json")
	scoreFlags = scopeFlags{format: formatJSON, output: outPath}

	_, err := runCmd(t, scoreAllCmd)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var snaps []model.PostureSnapshot
	require.NoError(t, json.Unmarshal(data, &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, "ai_rmf", snaps[1].FrameworkCode)
	assert.InDelta(t, 100.0, snaps[1].Overall.ScorePct, 1e-6)
}

func TestCatalogImportAndScore(t *testing.T) {
	setupCLI(t)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(catalogCSV), 0o644))

	catalogFile, catalogOwner, catalogName, catalogActivate = csvPath, "acme", "Board metrics", true
	out, err := runCmd(t, catalogImportCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "3 items (3 mapped, 0 unmapped), active=true")

	outPath := filepath.Join(dir, "overall.json")
	scoreFlags = scopeFlags{catalog: "active", owner: "acme", format: formatJSON, output: outPath}
	_, err = runCmd(t, scoreOverallCmd)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var overall model.OverallScore
	require.NoError(t, json.Unmarshal(data, &overall))
	assert.Equal(t, 3, overall.FunctionsCount)
	// RS 1.0, RC 0.8, GV 0.0
	assert.InDelta(t, 60.0, overall.ScorePct, 1e-6)
	assert.Equal(t, model.RiskMedium, overall.RiskRating)

	attPath := filepath.Join(dir, "attention.csv")
	attentionFlags = scopeFlags{catalog: "active", owner: "acme", format: formatCSV, output: attPath}
	attentionLimit = 1
	_, err = runCmd(t, attentionCmd)
	require.NoError(t, err)

	f, err := os.Open(attPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Policy exceptions open", records[1][1])
}

func TestCatalogImport_InvalidRowWritesNothing(t *testing.T) {
	dbPath := setupCLI(t)
	csvPath := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,direction\nok,binary\nbad,sideways\n"), 0o644))

	catalogFile, catalogOwner, catalogName = csvPath, "acme", "Broken"
	_, err := runCmd(t, catalogImportCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.GetActiveCatalog(context.Background(), "acme")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalogActivateCmd_Unknown(t *testing.T) {
	setupCLI(t)
	catalogID, catalogOwner = "does-not-exist", "acme"

	_, err := runCmd(t, catalogActivateCmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
