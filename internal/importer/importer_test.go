package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/posture-cli/internal/framework"
	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/store"
)

func testLookup(t *testing.T) framework.Lookup {
	t.Helper()
	tax, err := framework.Default()
	require.NoError(t, err)
	return tax
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Metrics")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

const sampleCSV = `Metric ID,Metric Name,Direction,Current Value,Target,Min,Max,Weight,Priority,Function,Category
mfa,MFA coverage,Higher is better,85%,95%,,,2,high,pr,PR.AA
crit,Open critical vulns,lower_is_better,4,0,,,,,,ID.RA
uptime,Service uptime,target-range,99.2,99.5,99,100,,low,,
`

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Current Value", "current_value"},
		{"  CURRENT VALUE (%) ", "current_value"},
		{"metric-name", "metric_name"},
		{"\ufeffid", "id"},
		{"Priority", "priority"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeHeader(tt.in), tt.in)
	}
}

func TestColumnIndex(t *testing.T) {
	idx := columnIndex([]string{"Metric", "Goal", "Unknown", "Value", "Name"})
	assert.Equal(t, 0, idx[colName], "first occurrence wins")
	assert.Equal(t, 1, idx[colTarget])
	assert.Equal(t, 3, idx[colCurrent])
	_, ok := idx[colWeight]
	assert.False(t, ok)
}

func TestReadFileCSV(t *testing.T) {
	path := writeCSV(t, "name,direction\n\n# comment line\nA,binary\n,\nB,binary\n")

	header, rows, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "direction"}, header)
	assert.Equal(t, [][]string{{"A", "binary"}, {"B", "binary"}}, rows)
}

func TestReadFileXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Name", "Direction", "Current"},
		{" MFA ", "binary", "1"},
	})

	header, rows, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Direction", "Current"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, "MFA", rows[0][0])
}

func TestReadFileRejects(t *testing.T) {
	_, _, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "catalog.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	_, _, err = ReadFile(context.Background(), writeCSV(t, "\n\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestReadFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ReadFile(ctx, writeCSV(t, sampleCSV))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestParse(t *testing.T) {
	header, rows, err := ReadFile(context.Background(), writeCSV(t, sampleCSV))
	require.NoError(t, err)

	items, mappings, err := Parse(testLookup(t), "nist_csf_2", header, rows)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Len(t, mappings, 2)

	mfa := items[0]
	assert.Equal(t, "mfa", mfa.ID)
	assert.Equal(t, "higher_is_better", mfa.Direction)
	require.NotNil(t, mfa.CurrentValue)
	assert.InDelta(t, 85.0, *mfa.CurrentValue, 1e-9)
	require.NotNil(t, mfa.Weight)
	assert.InDelta(t, 2.0, *mfa.Weight, 1e-9)
	assert.Equal(t, model.PriorityHigh, mfa.PriorityRank)
	assert.True(t, mfa.Active)

	assert.Equal(t, model.CatalogMapping{ItemID: "mfa", FunctionCode: "PR", CategoryCode: "PR.AA"}, mappings[0])
	assert.Equal(t, model.CatalogMapping{ItemID: "crit", FunctionCode: "ID", CategoryCode: "ID.RA"}, mappings[1],
		"category alone resolves its function")

	uptime := items[2]
	assert.Equal(t, "target_range", uptime.Direction)
	require.NotNil(t, uptime.ToleranceLow)
	assert.InDelta(t, 99.0, *uptime.ToleranceLow, 1e-9)
	assert.Nil(t, uptime.Weight)
	assert.Equal(t, model.PriorityLow, uptime.PriorityRank)
}

func TestParseGeneratesIDs(t *testing.T) {
	items, _, err := Parse(testLookup(t), "ai_rmf",
		[]string{"name", "direction", "function"},
		[][]string{{"Model cards", "binary", "map"}, {"Bias audits", "binary", ""}})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.NotEmpty(t, items[0].ID)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestParseRejects(t *testing.T) {
	header := []string{"id", "name", "direction", "current", "weight", "priority", "function", "category", "subcategory", "active"}
	tests := []struct {
		name    string
		row     []string
		wantErr string
	}{
		{"bad direction", []string{"a", "A", "sideways", "", "", "", "", "", "", ""}, "invalid metric direction"},
		{"bad number", []string{"a", "A", "binary", "lots", "", "", "", "", "", ""}, "invalid number"},
		{"negative weight", []string{"a", "A", "binary", "", "-1", "", "", "", "", ""}, "weight"},
		{"bad priority", []string{"a", "A", "binary", "", "", "urgent", "", "", "", ""}, "invalid priority"},
		{"unknown function", []string{"a", "A", "binary", "", "", "", "XX", "", "", ""}, "unknown function"},
		{"unknown category", []string{"a", "A", "binary", "", "", "", "", "PR.ZZ", "", ""}, "unknown category"},
		{"category under other function", []string{"a", "A", "binary", "", "", "", "DE", "PR.AA", "", ""}, "belongs to function PR"},
		{"orphan subcategory", []string{"a", "A", "binary", "", "", "", "", "", "PR.AA-01", ""}, "without function"},
		{"bad active", []string{"a", "A", "binary", "", "", "", "", "", "", "maybe"}, "invalid boolean"},
		{"empty name", []string{"a", "", "binary", "", "", "", "", "", "", ""}, "name is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(testLookup(t), "nist_csf_2", header, [][]string{tt.row})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "row 2")
		})
	}
}

func TestParseMissingColumnsAndDuplicates(t *testing.T) {
	lookup := testLookup(t)

	_, _, err := Parse(lookup, "nist_csf_2", []string{"name"}, [][]string{{"A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "direction"`)

	_, _, err = Parse(lookup, "nist_csf_2", []string{"id", "name", "direction"},
		[][]string{{"a", "A", "binary"}, {"a", "B", "binary"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3: duplicate id")

	_, _, err = Parse(lookup, "iso_27001", []string{"name", "direction"}, [][]string{{"A", "binary"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, framework.ErrUnknownFramework))

	_, _, err = Parse(lookup, "nist_csf_2", []string{"name", "direction"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metric rows")
}

func TestImport(t *testing.T) {
	st := newTestStore(t)
	im := New(st, testLookup(t))
	ctx := context.Background()

	res, err := im.Import(ctx, Request{
		Path:          writeCSV(t, sampleCSV),
		Owner:         "org-1",
		Name:          "Q3 board metrics",
		FrameworkCode: "nist_csf_2",
		Activate:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Items)
	assert.Equal(t, 2, res.Mapped)
	assert.Equal(t, 1, res.Unmapped)
	assert.True(t, res.Catalog.Active)

	active, err := st.GetActiveCatalog(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, res.Catalog.ID, active.ID)

	items, err := st.ListCatalogItems(ctx, res.Catalog.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestImportSameSheetTwiceAndAcrossOwners(t *testing.T) {
	st := newTestStore(t)
	im := New(st, testLookup(t))
	ctx := context.Background()
	path := writeCSV(t, sampleCSV)

	reqs := []Request{
		{Path: path, Owner: "acme", Name: "v1", FrameworkCode: "nist_csf_2", Activate: true},
		{Path: path, Owner: "acme", Name: "v2", FrameworkCode: "nist_csf_2", Activate: true},
		{Path: path, Owner: "globex", Name: "v1", FrameworkCode: "nist_csf_2"},
	}
	seen := map[string]bool{}
	for _, req := range reqs {
		res, err := im.Import(ctx, req)
		require.NoError(t, err, "%s/%s", req.Owner, req.Name)
		assert.False(t, seen[res.Catalog.ID])
		seen[res.Catalog.ID] = true

		items, err := st.ListCatalogItems(ctx, res.Catalog.ID)
		require.NoError(t, err)
		assert.Len(t, items, 3)
		mappings, err := st.ListCatalogMappings(ctx, res.Catalog.ID)
		require.NoError(t, err)
		assert.Len(t, mappings, 2)
	}

	active, err := st.GetActiveCatalog(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "v2", active.Name)
}

func TestImportXLSXInactive(t *testing.T) {
	st := newTestStore(t)
	im := New(st, testLookup(t))

	path := createTestXLSX(t, [][]string{
		{"Name", "Direction", "Current", "Target", "Function"},
		{"Model inventory", "higher_is_better", "40", "100", "MAP"},
	})
	res, err := im.Import(context.Background(), Request{Path: path, Owner: "org-1", Name: "AI", FrameworkCode: "ai_rmf"})
	require.NoError(t, err)
	assert.False(t, res.Catalog.Active)
	assert.Equal(t, 1, res.Mapped)

	_, err = st.GetActiveCatalog(context.Background(), "org-1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestImportRequiresOwnerAndName(t *testing.T) {
	im := New(newTestStore(t), testLookup(t))

	_, err := im.Import(context.Background(), Request{Path: "x.csv", Name: "n", FrameworkCode: "nist_csf_2"})
	assert.ErrorContains(t, err, "owner is required")

	_, err = im.Import(context.Background(), Request{Path: "x.csv", Owner: "o", FrameworkCode: "nist_csf_2"})
	assert.ErrorContains(t, err, "name is required")
}

func TestImportInvalidRowWritesNothing(t *testing.T) {
	st := newTestStore(t)
	im := New(st, testLookup(t))

	_, err := im.Import(context.Background(), Request{
		Path:          writeCSV(t, "name,direction\nA,binary\nB,sideways\n"),
		Owner:         "org-1",
		Name:          "broken",
		FrameworkCode: "nist_csf_2",
		Activate:      true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")

	_, err = st.GetActiveCatalog(context.Background(), "org-1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
