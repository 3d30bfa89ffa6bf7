package source

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListMetrics(ctx context.Context, f store.MetricFilter) ([]model.MetricRow, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MetricRow), args.Error(1)
}

func (m *mockStore) UpsertMetric(ctx context.Context, row model.MetricRow) error {
	return m.Called(ctx, row).Error(0)
}

func (m *mockStore) GetCatalog(ctx context.Context, id string) (*model.Catalog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Catalog), args.Error(1)
}

func (m *mockStore) GetActiveCatalog(ctx context.Context, owner string) (*model.Catalog, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Catalog), args.Error(1)
}

func (m *mockStore) CreateCatalog(ctx context.Context, c model.Catalog) (*model.Catalog, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Catalog), args.Error(1)
}

func (m *mockStore) CreateCatalogWithItems(ctx context.Context, c model.Catalog, items []model.CatalogItem, mappings []model.CatalogMapping) (*model.Catalog, error) {
	args := m.Called(ctx, c, items, mappings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Catalog), args.Error(1)
}

func (m *mockStore) AddCatalogItems(ctx context.Context, catalogID string, items []model.CatalogItem, mappings []model.CatalogMapping) error {
	return m.Called(ctx, catalogID, items, mappings).Error(0)
}

func (m *mockStore) ListCatalogItems(ctx context.Context, catalogID string) ([]model.CatalogItem, error) {
	args := m.Called(ctx, catalogID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CatalogItem), args.Error(1)
}

func (m *mockStore) ListCatalogMappings(ctx context.Context, catalogID string) ([]model.CatalogMapping, error) {
	args := m.Called(ctx, catalogID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CatalogMapping), args.Error(1)
}

func (m *mockStore) ActivateCatalog(ctx context.Context, owner, catalogID string) error {
	return m.Called(ctx, owner, catalogID).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

var _ store.Store = (*mockStore)(nil)
