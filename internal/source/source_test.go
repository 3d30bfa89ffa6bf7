package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/resilience"
	"github.com/sells-group/posture-cli/internal/scorer"
	"github.com/sells-group/posture-cli/internal/store"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func testCatalog() *model.Catalog {
	return &model.Catalog{ID: "cat-1", Owner: "org-1", Name: "custom", FrameworkCode: "nist_csf_2", Active: true}
}

func TestDefaultSource_Metrics(t *testing.T) {
	st := new(mockStore)
	st.On("ListMetrics", mock.Anything, store.MetricFilter{FrameworkCode: "nist_csf_2", FunctionCode: "PR", ActiveOnly: true}).
		Return([]model.MetricRow{
			{ID: "m-1", Direction: "Higher_Is_Better", CurrentValue: model.Float(85), TargetValue: model.Float(95), FrameworkCode: "nist_csf_2", FunctionCode: "PR", CategoryCode: "PR.AA", Active: true},
			{ID: "m-2", Direction: "binary", CurrentValue: model.Float(0), Weight: model.Float(3), PriorityRank: 1, FrameworkCode: "nist_csf_2", FunctionCode: "PR", Active: true},
		}, nil).Once()

	src := NewDefaultSource(st, fastRetry())
	got, err := src.Metrics(context.Background(), Filter{FrameworkCode: "nist_csf_2", FunctionCode: "PR"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.HigherIsBetter, got[0].Direction)
	assert.InDelta(t, model.DefaultWeight, got[0].Weight, 1e-9)
	assert.Equal(t, model.PriorityMedium, got[0].PriorityRank)
	assert.Equal(t, "PR.AA", got[0].CategoryCode)
	assert.InDelta(t, 3.0, got[1].Weight, 1e-9)
	assert.Equal(t, "default", src.Describe())
	st.AssertExpectations(t)
}

func TestDefaultSource_RejectsMalformedRow(t *testing.T) {
	st := new(mockStore)
	st.On("ListMetrics", mock.Anything, mock.Anything).
		Return([]model.MetricRow{{ID: "m-bad", Direction: "sideways", Active: true}}, nil).Once()

	_, err := NewDefaultSource(st, fastRetry()).Metrics(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidDirection))
	assert.Contains(t, err.Error(), "m-bad")
}

func TestDefaultSource_RetriesTransientErrors(t *testing.T) {
	st := new(mockStore)
	st.On("ListMetrics", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("database is locked"))).Once()
	st.On("ListMetrics", mock.Anything, mock.Anything).
		Return([]model.MetricRow{{ID: "m-1", Direction: "binary", Active: true}}, nil).Once()

	got, err := NewDefaultSource(st, fastRetry()).Metrics(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	st.AssertNumberOfCalls(t, "ListMetrics", 2)
}

func TestDefaultSource_PermanentErrorPropagates(t *testing.T) {
	st := new(mockStore)
	st.On("ListMetrics", mock.Anything, mock.Anything).
		Return(nil, errors.New("relation \"metrics\" does not exist")).Once()

	got, err := NewDefaultSource(st, fastRetry()).Metrics(context.Background(), Filter{})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "source: default metrics")
	st.AssertNumberOfCalls(t, "ListMetrics", 1)
}

func TestCatalogSource_JoinsMappings(t *testing.T) {
	st := new(mockStore)
	st.On("GetCatalog", mock.Anything, "cat-1").Return(testCatalog(), nil).Once()
	st.On("ListCatalogItems", mock.Anything, "cat-1").Return([]model.CatalogItem{
		{ID: "i-1", Direction: "higher_is_better", CurrentValue: model.Float(85), TargetValue: model.Float(95), Active: true},
		{ID: "i-2", Direction: "lower_is_better", CurrentValue: model.Float(2), TargetValue: model.Float(4), Active: true},
		{ID: "i-3", Direction: "binary", CurrentValue: model.Float(1), Active: true},
	}, nil).Once()
	st.On("ListCatalogMappings", mock.Anything, "cat-1").Return([]model.CatalogMapping{
		{ItemID: "i-1", FunctionCode: "PR", CategoryCode: "PR.AA"},
		{ItemID: "i-2", FunctionCode: "DE", CategoryCode: "DE.CM"},
	}, nil).Once()

	src := NewCatalogSource(st, fastRetry(), "cat-1", "org-1")
	got, err := src.Metrics(context.Background(), Filter{FrameworkCode: "nist_csf_2"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "PR", got[0].FunctionCode)
	assert.Equal(t, "PR.AA", got[0].CategoryCode)
	assert.Equal(t, "nist_csf_2", got[0].FrameworkCode)
	assert.Equal(t, "DE", got[1].FunctionCode)
	assert.False(t, got[2].Scoped(), "unmapped items carry no hierarchy keys")
	assert.Equal(t, "catalog:cat-1", src.Describe())
	st.AssertExpectations(t)
}

func TestCatalogSource_FunctionFilter(t *testing.T) {
	st := new(mockStore)
	st.On("GetCatalog", mock.Anything, "cat-1").Return(testCatalog(), nil)
	st.On("ListCatalogItems", mock.Anything, "cat-1").Return([]model.CatalogItem{
		{ID: "i-1", Direction: "binary", Active: true},
		{ID: "i-2", Direction: "binary", Active: true},
	}, nil)
	st.On("ListCatalogMappings", mock.Anything, "cat-1").Return([]model.CatalogMapping{
		{ItemID: "i-1", FunctionCode: "PR"},
		{ItemID: "i-2", FunctionCode: "DE"},
	}, nil)

	got, err := NewCatalogSource(st, fastRetry(), "cat-1", "").Metrics(context.Background(), Filter{FunctionCode: "DE"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "i-2", got[0].ID)
}

func TestCatalogSource_UnknownCatalog(t *testing.T) {
	st := new(mockStore)
	st.On("GetCatalog", mock.Anything, "missing").Return(nil, store.ErrNotFound).Once()

	_, err := NewCatalogSource(st, fastRetry(), "missing", "org-1").Metrics(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	st.AssertNotCalled(t, "ListMetrics", mock.Anything, mock.Anything)
	st.AssertNumberOfCalls(t, "GetCatalog", 1)
}

func TestCatalogSource_OtherOwnersCatalog(t *testing.T) {
	st := new(mockStore)
	st.On("GetCatalog", mock.Anything, "cat-1").Return(testCatalog(), nil).Once()

	_, err := NewCatalogSource(st, fastRetry(), "cat-1", "org-2").Metrics(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	st.AssertNotCalled(t, "ListCatalogItems", mock.Anything, mock.Anything)
}

func TestCatalogSource_FrameworkMismatch(t *testing.T) {
	st := new(mockStore)
	st.On("GetCatalog", mock.Anything, "cat-1").Return(testCatalog(), nil).Once()

	_, err := NewCatalogSource(st, fastRetry(), "cat-1", "org-1").Metrics(context.Background(), Filter{FrameworkCode: "ai_rmf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrameworkMismatch))
}

func TestCatalogSource_MappingReadFailure(t *testing.T) {
	st := new(mockStore)
	st.On("GetCatalog", mock.Anything, "cat-1").Return(testCatalog(), nil).Once()
	st.On("ListCatalogItems", mock.Anything, "cat-1").Return([]model.CatalogItem{{ID: "i-1", Direction: "binary"}}, nil).Once()
	st.On("ListCatalogMappings", mock.Anything, "cat-1").Return(nil, errors.New("permission denied")).Once()

	_, err := NewCatalogSource(st, fastRetry(), "cat-1", "org-1").Metrics(context.Background(), Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mappings")
}

// Two structurally different sources describing the same metric must score
// identically once normalized.
func TestSourcesScoreIdentically(t *testing.T) {
	st := new(mockStore)
	st.On("ListMetrics", mock.Anything, mock.Anything).Return([]model.MetricRow{
		{ID: "x", Direction: "target_range", CurrentValue: model.Float(120), TargetValue: model.Float(100), ToleranceLow: model.Float(90), ToleranceHigh: model.Float(110), FrameworkCode: "nist_csf_2", FunctionCode: "PR", Active: true},
	}, nil)
	st.On("GetCatalog", mock.Anything, "cat-1").Return(testCatalog(), nil)
	st.On("ListCatalogItems", mock.Anything, "cat-1").Return([]model.CatalogItem{
		{ID: "x", Direction: "target_range", CurrentValue: model.Float(120), TargetValue: model.Float(100), ToleranceLow: model.Float(90), ToleranceHigh: model.Float(110), Active: true},
	}, nil)
	st.On("ListCatalogMappings", mock.Anything, "cat-1").Return([]model.CatalogMapping{{ItemID: "x", FunctionCode: "PR"}}, nil)

	ctx := context.Background()
	fromDefault, err := NewDefaultSource(st, fastRetry()).Metrics(ctx, Filter{FrameworkCode: "nist_csf_2"})
	require.NoError(t, err)
	fromCatalog, err := NewCatalogSource(st, fastRetry(), "cat-1", "org-1").Metrics(ctx, Filter{FrameworkCode: "nist_csf_2"})
	require.NoError(t, err)

	require.Equal(t, fromDefault, fromCatalog)
	a, ok := scorer.Score(fromDefault[0])
	require.True(t, ok)
	b, ok := scorer.Score(fromCatalog[0])
	require.True(t, ok)
	assert.Equal(t, a, b)
	assert.InDelta(t, 0.5, a, 1e-9)
}

func TestSelector_For(t *testing.T) {
	st := new(mockStore)
	sel := NewSelector(st, fastRetry())
	ctx := context.Background()

	src, err := sel.For(ctx, Scope{FrameworkCode: "nist_csf_2"})
	require.NoError(t, err)
	assert.IsType(t, &DefaultSource{}, src)

	src, err = sel.For(ctx, Scope{FrameworkCode: "nist_csf_2", CatalogID: "cat-9", Owner: "org-1"})
	require.NoError(t, err)
	require.IsType(t, &CatalogSource{}, src)
	assert.Equal(t, "cat-9", src.(*CatalogSource).CatalogID())
}

func TestSelector_ForActive(t *testing.T) {
	st := new(mockStore)
	st.On("GetActiveCatalog", mock.Anything, "org-1").Return(testCatalog(), nil).Once()

	src, err := NewSelector(st, fastRetry()).For(context.Background(), Scope{CatalogID: ActiveCatalog, Owner: "org-1"})
	require.NoError(t, err)
	require.IsType(t, &CatalogSource{}, src)
	assert.Equal(t, "cat-1", src.(*CatalogSource).CatalogID())
	st.AssertExpectations(t)
}

func TestSelector_ActiveCatalogErrors(t *testing.T) {
	st := new(mockStore)
	sel := NewSelector(st, fastRetry())

	_, err := sel.ActiveCatalog(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOwnerRequired))

	st.On("GetActiveCatalog", mock.Anything, "org-3").Return(nil, store.ErrNotFound).Once()
	_, err = sel.For(context.Background(), Scope{CatalogID: ActiveCatalog, Owner: "org-3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
