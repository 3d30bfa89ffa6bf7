// Package store persists metric catalogs: the organization's default metrics
// and user-uploaded custom catalogs with their framework mappings.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/posture-cli/internal/model"
)

// ErrNotFound is returned when a catalog does not exist or belongs to
// another owner.
var ErrNotFound = eris.New("store: not found")

// MetricFilter narrows ListMetrics. Empty fields match everything.
type MetricFilter struct {
	FrameworkCode string `json:"framework_code,omitempty"`
	FunctionCode  string `json:"function_code,omitempty"`
	ActiveOnly    bool   `json:"active_only,omitempty"`
}

// Store defines the persistence interface for metric sources.
type Store interface {
	// Default catalog
	ListMetrics(ctx context.Context, filter MetricFilter) ([]model.MetricRow, error)
	UpsertMetric(ctx context.Context, row model.MetricRow) error

	// Custom catalogs
	GetCatalog(ctx context.Context, id string) (*model.Catalog, error)
	GetActiveCatalog(ctx context.Context, owner string) (*model.Catalog, error)
	CreateCatalog(ctx context.Context, c model.Catalog) (*model.Catalog, error)
	CreateCatalogWithItems(ctx context.Context, c model.Catalog, items []model.CatalogItem, mappings []model.CatalogMapping) (*model.Catalog, error)
	AddCatalogItems(ctx context.Context, catalogID string, items []model.CatalogItem, mappings []model.CatalogMapping) error
	ListCatalogItems(ctx context.Context, catalogID string) ([]model.CatalogItem, error)
	ListCatalogMappings(ctx context.Context, catalogID string) ([]model.CatalogMapping, error)
	ActivateCatalog(ctx context.Context, owner, catalogID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// validateBatch checks that every mapping points at an item in the batch and
// that no item is mapped twice.
func validateBatch(items []model.CatalogItem, mappings []model.CatalogMapping) error {
	ids := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID == "" {
			return eris.New("store: catalog item without id")
		}
		if ids[it.ID] {
			return eris.Errorf("store: duplicate catalog item %s", it.ID)
		}
		ids[it.ID] = true
	}
	mapped := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		if !ids[m.ItemID] {
			return eris.Errorf("store: mapping references unknown item %s", m.ItemID)
		}
		if mapped[m.ItemID] {
			return eris.Errorf("store: item %s mapped more than once", m.ItemID)
		}
		if m.FunctionCode == "" {
			return eris.Errorf("store: mapping for item %s has no function code", m.ItemID)
		}
		mapped[m.ItemID] = true
	}
	return nil
}
