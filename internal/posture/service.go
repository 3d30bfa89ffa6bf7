// Package posture is the engine façade: it selects a metric source for a
// scope, scores the metrics and rolls them up against the framework taxonomy.
package posture

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/posture-cli/internal/framework"
	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/scorer"
	"github.com/sells-group/posture-cli/internal/source"
)

// Scope identifies what to score.
type Scope = source.Scope

// SourceSelector resolves the metric source for a scope.
type SourceSelector interface {
	For(ctx context.Context, scope Scope) (source.Source, error)
}

// Options tunes a Service.
type Options struct {
	// AttentionLimit is used when MetricsNeedingAttention is called with limit 0.
	AttentionLimit int
	// MaxConcurrentFrameworks bounds RecalculateAll.
	MaxConcurrentFrameworks int
}

// Service computes posture scores on demand. Nothing is cached between calls.
type Service struct {
	selector SourceSelector
	lookup   framework.Lookup
	agg      *scorer.Aggregator
	opts     Options
	now      func() time.Time
}

// NewService creates a Service.
func NewService(sel SourceSelector, lookup framework.Lookup, agg *scorer.Aggregator, opts Options) *Service {
	if opts.AttentionLimit <= 0 {
		opts.AttentionLimit = 10
	}
	if opts.MaxConcurrentFrameworks <= 0 {
		opts.MaxConcurrentFrameworks = 4
	}
	return &Service{
		selector: sel,
		lookup:   lookup,
		agg:      agg,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Lookup exposes the taxonomy the service scores against.
func (s *Service) Lookup() framework.Lookup { return s.lookup }

// ComputeFunctionScores scores every function of the scope's framework.
func (s *Service) ComputeFunctionScores(ctx context.Context, scope Scope) ([]model.AggregateScore, error) {
	functions, err := s.lookup.Functions(scope.FrameworkCode)
	if err != nil {
		return nil, err
	}
	metrics, err := s.metrics(ctx, scope, "")
	if err != nil {
		return nil, err
	}
	return s.agg.FunctionScores(metrics, functionGroups(functions)), nil
}

// ComputeCategoryScores scores the categories of one function. A function
// code unknown to the taxonomy is scored from the data alone, like
// ComputeFunctionScores does.
func (s *Service) ComputeCategoryScores(ctx context.Context, functionCode string, scope Scope) ([]model.AggregateScore, error) {
	categories, err := s.lookup.Categories(scope.FrameworkCode, functionCode)
	if err != nil {
		return nil, err
	}
	metrics, err := s.metrics(ctx, scope, functionCode)
	if err != nil {
		return nil, err
	}
	return s.agg.CategoryScores(functionCode, metrics, categoryGroups(categories)), nil
}

// ComputeOverallScore averages function scores into the framework posture.
func (s *Service) ComputeOverallScore(functions []model.AggregateScore) model.OverallScore {
	return s.agg.Overall(functions)
}

// MetricsNeedingAttention ranks the scope's metrics by urgency. limit 0 uses
// the configured default; a negative limit returns every scoreable metric.
func (s *Service) MetricsNeedingAttention(ctx context.Context, scope Scope, limit int) ([]model.AttentionItem, error) {
	if _, err := s.lookup.Functions(scope.FrameworkCode); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = s.opts.AttentionLimit
	}
	metrics, err := s.metrics(ctx, scope, "")
	if err != nil {
		return nil, err
	}
	return scorer.RankAttention(metrics, limit), nil
}

// Snapshot computes functions, their categories and the overall score from a
// single read of the scope's metrics.
func (s *Service) Snapshot(ctx context.Context, scope Scope) (*model.PostureSnapshot, error) {
	functions, err := s.lookup.Functions(scope.FrameworkCode)
	if err != nil {
		return nil, err
	}
	metrics, err := s.metrics(ctx, scope, "")
	if err != nil {
		return nil, err
	}

	fnScores := s.agg.FunctionScores(metrics, functionGroups(functions))
	snap := &model.PostureSnapshot{
		FrameworkCode: scope.FrameworkCode,
		CatalogID:     scope.CatalogID,
		Owner:         scope.Owner,
		Overall:       s.agg.Overall(fnScores),
		Functions:     make([]model.FunctionBreakdown, 0, len(fnScores)),
		ComputedAt:    s.now(),
	}
	for _, fs := range fnScores {
		var known []scorer.Group
		if fn, ok := s.lookup.Function(scope.FrameworkCode, fs.Code); ok {
			known = categoryGroups(fn.Categories)
		}
		snap.Functions = append(snap.Functions, model.FunctionBreakdown{
			Function:   fs,
			Categories: s.agg.CategoryScores(fs.Code, metrics, known),
		})
	}
	for _, m := range metrics {
		if m.Active && !m.Scoped() {
			snap.UnscopedCount++
		}
	}
	return snap, nil
}

// RecalculateAll snapshots several frameworks concurrently. scope supplies
// the catalog and owner; its framework code is replaced per framework. A
// custom catalog targets a single framework, so frameworks it does not cover
// are skipped; it is an error when none match. Any other failure cancels the
// rest.
func (s *Service) RecalculateAll(ctx context.Context, frameworks []string, scope Scope) ([]*model.PostureSnapshot, error) {
	out := make([]*model.PostureSnapshot, len(frameworks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrentFrameworks)
	for i, fw := range frameworks {
		fwScope := scope
		fwScope.FrameworkCode = fw
		g.Go(func() error {
			snap, err := s.Snapshot(gctx, fwScope)
			if err != nil {
				if fwScope.CatalogID != "" && errors.Is(err, source.ErrFrameworkMismatch) {
					zap.L().Debug("catalog does not cover framework",
						zap.String("catalog", fwScope.CatalogID),
						zap.String("framework", fw),
					)
					return nil
				}
				return eris.Wrapf(err, "posture: recalculate %s", fw)
			}
			out[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snaps := make([]*model.PostureSnapshot, 0, len(out))
	for _, snap := range out {
		if snap != nil {
			snaps = append(snaps, snap)
		}
	}
	if len(snaps) == 0 && len(frameworks) > 0 {
		return nil, eris.Wrapf(source.ErrFrameworkMismatch, "posture: catalog %s covers none of %v", scope.CatalogID, frameworks)
	}
	return snaps, nil
}

func (s *Service) metrics(ctx context.Context, scope Scope, functionCode string) ([]model.Metric, error) {
	src, err := s.selector.For(ctx, scope)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	metrics, err := src.Metrics(ctx, source.Filter{FrameworkCode: scope.FrameworkCode, FunctionCode: functionCode})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("metrics loaded",
		zap.String("framework", scope.FrameworkCode),
		zap.String("source", src.Describe()),
		zap.String("function", functionCode),
		zap.Int("count", len(metrics)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return metrics, nil
}

func functionGroups(fns []framework.Function) []scorer.Group {
	out := make([]scorer.Group, len(fns))
	for i, fn := range fns {
		out[i] = scorer.Group{Code: fn.Code, Name: fn.Name}
	}
	return out
}

func categoryGroups(cats []framework.Category) []scorer.Group {
	out := make([]scorer.Group, len(cats))
	for i, c := range cats {
		out[i] = scorer.Group{Code: c.Code, Name: c.Name}
	}
	return out
}
