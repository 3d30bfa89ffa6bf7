package importer

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posture-cli/internal/framework"
	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/store"
)

// Request describes one catalog upload.
type Request struct {
	Path          string
	Owner         string
	Name          string
	FrameworkCode string
	Activate      bool
}

// Result summarizes an import.
type Result struct {
	Catalog  *model.Catalog `json:"catalog"`
	Items    int            `json:"items"`
	Mapped   int            `json:"mapped"`
	Unmapped int            `json:"unmapped"`
}

// Importer loads uploaded sheets into the store as custom catalogs.
type Importer struct {
	store  store.Store
	lookup framework.Lookup
}

// New creates an Importer. Mappings are validated against lookup.
func New(st store.Store, lookup framework.Lookup) *Importer {
	return &Importer{store: st, lookup: lookup}
}

// Import reads req.Path, creates a catalog and stores its items and mappings.
// Any invalid row aborts the import before anything is written.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	if req.Owner == "" {
		return nil, eris.New("importer: owner is required")
	}
	if req.Name == "" {
		return nil, eris.New("importer: catalog name is required")
	}

	header, rows, err := ReadFile(ctx, req.Path)
	if err != nil {
		return nil, err
	}
	items, mappings, err := Parse(im.lookup, req.FrameworkCode, header, rows)
	if err != nil {
		return nil, err
	}

	cat, err := im.store.CreateCatalogWithItems(ctx, model.Catalog{
		Owner:         req.Owner,
		Name:          req.Name,
		FrameworkCode: req.FrameworkCode,
	}, items, mappings)
	if err != nil {
		return nil, eris.Wrap(err, "importer: create catalog")
	}
	if req.Activate {
		if err := im.store.ActivateCatalog(ctx, req.Owner, cat.ID); err != nil {
			return nil, eris.Wrapf(err, "importer: activate catalog %s", cat.ID)
		}
		cat.Active = true
	}

	zap.L().Info("catalog imported",
		zap.String("catalog_id", cat.ID),
		zap.String("owner", req.Owner),
		zap.String("framework", req.FrameworkCode),
		zap.Int("items", len(items)),
		zap.Int("mapped", len(mappings)),
		zap.Bool("active", cat.Active),
	)

	return &Result{
		Catalog:  cat,
		Items:    len(items),
		Mapped:   len(mappings),
		Unmapped: len(items) - len(mappings),
	}, nil
}

// Parse converts sheet rows into catalog items and mappings. Rows without a
// function or category become unmapped items. A category given without a
// function resolves to its parent function.
func Parse(lookup framework.Lookup, frameworkCode string, header []string, rows [][]string) ([]model.CatalogItem, []model.CatalogMapping, error) {
	functions, err := lookup.Functions(frameworkCode)
	if err != nil {
		return nil, nil, eris.Wrap(err, "importer")
	}

	idx := columnIndex(header)
	for _, required := range []string{colName, colDirection} {
		if _, ok := idx[required]; !ok {
			return nil, nil, eris.Errorf("importer: missing required column %q", required)
		}
	}

	items := make([]model.CatalogItem, 0, len(rows))
	var mappings []model.CatalogMapping
	seen := make(map[string]int, len(rows))

	for i, row := range rows {
		line := i + 2 // 1-based, after the header
		get := func(key string) string {
			j, ok := idx[key]
			if !ok || j >= len(row) {
				return ""
			}
			return row[j]
		}

		item, err := parseItem(get)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "importer: row %d", line)
		}
		if prev, dup := seen[item.ID]; dup {
			return nil, nil, eris.Errorf("importer: row %d: duplicate id %q (first seen on row %d)", line, item.ID, prev)
		}
		seen[item.ID] = line

		mapping, err := parseMapping(lookup, frameworkCode, functions, item.ID, get)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "importer: row %d", line)
		}
		items = append(items, item)
		if mapping != nil {
			mappings = append(mappings, *mapping)
		}
	}

	if len(items) == 0 {
		return nil, nil, eris.New("importer: file has no metric rows")
	}
	return items, mappings, nil
}

func parseItem(get func(string) string) (model.CatalogItem, error) {
	it := model.CatalogItem{
		ID:          get(colID),
		Name:        get(colName),
		Description: get(colDescription),
		Owner:       get(colOwner),
		Active:      true,
	}
	if it.Name == "" {
		return it, eris.New("name is empty")
	}
	if it.ID == "" {
		it.ID = uuid.New().String()
	}

	dir, err := model.ParseDirection(get(colDirection))
	if err != nil {
		return it, err
	}
	it.Direction = string(dir)

	for _, f := range []struct {
		key string
		dst **float64
	}{
		{colCurrent, &it.CurrentValue},
		{colTarget, &it.TargetValue},
		{colToleranceLow, &it.ToleranceLow},
		{colToleranceHigh, &it.ToleranceHigh},
		{colWeight, &it.Weight},
	} {
		v, err := parseNumber(get(f.key))
		if err != nil {
			return it, eris.Wrapf(err, "column %s", f.key)
		}
		*f.dst = v
	}
	if it.Weight != nil && *it.Weight < 0 {
		return it, eris.Errorf("weight %v must be >= 0", *it.Weight)
	}

	if p := get(colPriority); p != "" {
		rank, err := parsePriority(p)
		if err != nil {
			return it, err
		}
		it.PriorityRank = rank
	}

	if a := get(colActive); a != "" {
		active, err := parseBool(a)
		if err != nil {
			return it, eris.Wrap(err, "column active")
		}
		it.Active = active
	}
	return it, nil
}

func parseMapping(lookup framework.Lookup, frameworkCode string, functions []framework.Function, itemID string, get func(string) string) (*model.CatalogMapping, error) {
	fn := strings.ToUpper(get(colFunction))
	cat := strings.ToUpper(get(colCategory))
	sub := strings.ToUpper(get(colSubcategory))

	if fn == "" && cat == "" {
		if sub != "" {
			return nil, eris.Errorf("subcategory %s given without function or category", sub)
		}
		return nil, nil
	}

	if fn != "" {
		if _, ok := lookup.Function(frameworkCode, fn); !ok {
			return nil, eris.Errorf("unknown function %q for %s", fn, frameworkCode)
		}
	}
	if cat != "" {
		parent := parentFunction(functions, cat)
		if parent == "" {
			return nil, eris.Errorf("unknown category %q for %s", cat, frameworkCode)
		}
		if fn == "" {
			fn = parent
		} else if parent != fn {
			return nil, eris.Errorf("category %s belongs to function %s, not %s", cat, parent, fn)
		}
	}

	return &model.CatalogMapping{
		ItemID:          itemID,
		FunctionCode:    fn,
		CategoryCode:    cat,
		SubcategoryCode: sub,
	}, nil
}

func parentFunction(functions []framework.Function, category string) string {
	for _, fn := range functions {
		for _, c := range fn.Categories {
			if c.Code == category {
				return fn.Code
			}
		}
	}
	return ""
}

// parseNumber accepts plain numbers, thousands separators and a trailing
// percent sign. Empty cells and "n/a" are absent values.
func parseNumber(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "n/a", "na", "-":
		return nil, nil
	}
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, eris.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, eris.Errorf("invalid number %q", s)
	}
	return &v, nil
}

// parsePriority accepts 1..3 or high/medium/low.
func parsePriority(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "high":
		return model.PriorityHigh, nil
	case "2", "medium", "med":
		return model.PriorityMedium, nil
	case "3", "low":
		return model.PriorityLow, nil
	}
	return 0, eris.Errorf("invalid priority %q (want 1-3 or high/medium/low)", s)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "active":
		return true, nil
	case "0", "false", "no", "n", "inactive":
		return false, nil
	}
	return false, eris.Errorf("invalid boolean %q", s)
}
