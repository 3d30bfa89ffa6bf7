// Package source adapts the two metric origins (the organization's default
// catalog and user-uploaded custom catalogs) into normalized model.Metric
// records, so the scorer sees one shape regardless of where data came from.
package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/resilience"
	"github.com/sells-group/posture-cli/internal/store"
)

// ActiveCatalog is the catalog ID callers pass to score the owner's active
// custom catalog.
const ActiveCatalog = "active"

var (
	// ErrOwnerRequired is returned when an owner-scoped lookup has no owner.
	ErrOwnerRequired = eris.New("owner is required")
	// ErrFrameworkMismatch is returned when a catalog targets a different
	// framework than the one being scored.
	ErrFrameworkMismatch = eris.New("catalog framework mismatch")
)

// Filter narrows the metrics a Source returns.
type Filter struct {
	FrameworkCode string
	FunctionCode  string
}

// Scope identifies what to score: a framework, and optionally a custom
// catalog owned by Owner.
type Scope struct {
	FrameworkCode string `json:"framework_code"`
	CatalogID     string `json:"catalog_id,omitempty"`
	Owner         string `json:"owner,omitempty"`
}

// Source yields normalized metrics for one scoring run.
type Source interface {
	Metrics(ctx context.Context, f Filter) ([]model.Metric, error)
	// Describe names the source for logs and snapshots.
	Describe() string
}

// readRetry runs a repository read under the retry policy, logging retries.
func readRetry[T any](ctx context.Context, cfg resilience.RetryConfig, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg.OnRetry = resilience.RetryLogger(op)
	return resilience.DoVal(ctx, cfg, fn)
}

// DefaultSource reads the organization's own metrics, which already carry
// their hierarchy keys.
type DefaultSource struct {
	store store.Store
	retry resilience.RetryConfig
}

// NewDefaultSource creates a DefaultSource.
func NewDefaultSource(st store.Store, retry resilience.RetryConfig) *DefaultSource {
	return &DefaultSource{store: st, retry: retry}
}

// Describe implements Source.
func (s *DefaultSource) Describe() string { return "default" }

// Metrics implements Source. Only active rows are read; a malformed one fails
// the whole read.
func (s *DefaultSource) Metrics(ctx context.Context, f Filter) ([]model.Metric, error) {
	rows, err := readRetry(ctx, s.retry, "list_metrics", func(ctx context.Context) ([]model.MetricRow, error) {
		return s.store.ListMetrics(ctx, store.MetricFilter{
			FrameworkCode: f.FrameworkCode,
			FunctionCode:  f.FunctionCode,
			ActiveOnly:    true,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: default metrics")
	}

	metrics := make([]model.Metric, 0, len(rows))
	for _, r := range rows {
		m, err := model.NewMetric(r.Input())
		if err != nil {
			return nil, eris.Wrapf(err, "source: default metric row %s", r.ID)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// CatalogSource reads one explicit custom catalog, joining items with their
// framework mappings. It never falls back to the default catalog.
type CatalogSource struct {
	store     store.Store
	retry     resilience.RetryConfig
	catalogID string
	owner     string
}

// NewCatalogSource creates a CatalogSource bound to catalogID. When owner is
// non-empty the catalog must belong to it.
func NewCatalogSource(st store.Store, retry resilience.RetryConfig, catalogID, owner string) *CatalogSource {
	return &CatalogSource{store: st, retry: retry, catalogID: catalogID, owner: owner}
}

// Describe implements Source.
func (s *CatalogSource) Describe() string { return "catalog:" + s.catalogID }

// CatalogID returns the bound catalog.
func (s *CatalogSource) CatalogID() string { return s.catalogID }

// Metrics implements Source. Items without a mapping become unscoped
// metrics; they are still returned so callers can count them.
func (s *CatalogSource) Metrics(ctx context.Context, f Filter) ([]model.Metric, error) {
	cat, err := readRetry(ctx, s.retry, "get_catalog", func(ctx context.Context) (*model.Catalog, error) {
		return s.store.GetCatalog(ctx, s.catalogID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: catalog %s", s.catalogID)
	}
	if s.owner != "" && cat.Owner != s.owner {
		return nil, eris.Wrapf(store.ErrNotFound, "source: catalog %s for owner %s", s.catalogID, s.owner)
	}
	if f.FrameworkCode != "" && cat.FrameworkCode != f.FrameworkCode {
		return nil, eris.Wrapf(ErrFrameworkMismatch, "source: catalog %s targets %s, not %s", cat.ID, cat.FrameworkCode, f.FrameworkCode)
	}

	items, err := readRetry(ctx, s.retry, "list_catalog_items", func(ctx context.Context) ([]model.CatalogItem, error) {
		return s.store.ListCatalogItems(ctx, cat.ID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: catalog %s items", cat.ID)
	}
	mappings, err := readRetry(ctx, s.retry, "list_catalog_mappings", func(ctx context.Context) ([]model.CatalogMapping, error) {
		return s.store.ListCatalogMappings(ctx, cat.ID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: catalog %s mappings", cat.ID)
	}

	byItem := make(map[string]*model.CatalogMapping, len(mappings))
	for i := range mappings {
		byItem[mappings[i].ItemID] = &mappings[i]
	}

	metrics := make([]model.Metric, 0, len(items))
	for _, it := range items {
		m, err := model.NewMetric(it.Input(cat.FrameworkCode, byItem[it.ID]))
		if err != nil {
			return nil, eris.Wrapf(err, "source: catalog %s item %s", cat.ID, it.ID)
		}
		if f.FunctionCode != "" && m.FunctionCode != f.FunctionCode {
			continue
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// Selector picks the Source for a scope.
type Selector struct {
	store store.Store
	retry resilience.RetryConfig
}

// NewSelector creates a Selector.
func NewSelector(st store.Store, retry resilience.RetryConfig) *Selector {
	return &Selector{store: st, retry: retry}
}

// For returns the Source for scope: the default catalog when no catalog ID
// is given, the owner's active catalog for ActiveCatalog, and the named
// catalog otherwise.
func (s *Selector) For(ctx context.Context, scope Scope) (Source, error) {
	switch scope.CatalogID {
	case "":
		return NewDefaultSource(s.store, s.retry), nil
	case ActiveCatalog:
		cat, err := s.ActiveCatalog(ctx, scope.Owner)
		if err != nil {
			return nil, err
		}
		return NewCatalogSource(s.store, s.retry, cat.ID, cat.Owner), nil
	default:
		return NewCatalogSource(s.store, s.retry, scope.CatalogID, scope.Owner), nil
	}
}

// ActiveCatalog resolves the owner's active custom catalog.
func (s *Selector) ActiveCatalog(ctx context.Context, owner string) (*model.Catalog, error) {
	if owner == "" {
		return nil, eris.Wrap(ErrOwnerRequired, "source: active catalog")
	}
	cat, err := readRetry(ctx, s.retry, "get_active_catalog", func(ctx context.Context) (*model.Catalog, error) {
		return s.store.GetActiveCatalog(ctx, owner)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: active catalog for %s", owner)
	}
	return cat, nil
}
