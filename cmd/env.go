package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/posture-cli/internal/framework"
	"github.com/sells-group/posture-cli/internal/posture"
	"github.com/sells-group/posture-cli/internal/resilience"
	"github.com/sells-group/posture-cli/internal/scorer"
	"github.com/sells-group/posture-cli/internal/source"
	"github.com/sells-group/posture-cli/internal/store"
)

// engineEnv bundles what scoring commands need.
type engineEnv struct {
	Store    store.Store
	Taxonomy *framework.Taxonomy
	Selector *source.Selector
	Service  *posture.Service
}

// Close releases the store.
func (e *engineEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "posture.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine opens the store, migrates it and wires the scoring service.
func initEngine(ctx context.Context) (*engineEnv, error) {
	tax, err := framework.Load(cfg.Scoring.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	risk, err := scorer.NewRiskClassifier(cfg.Risk)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	sel := source.NewSelector(st, resilience.FromConfig(cfg.Retry))
	svc := posture.NewService(sel, tax, scorer.NewAggregator(risk), posture.Options{
		AttentionLimit:          cfg.Scoring.AttentionLimit,
		MaxConcurrentFrameworks: cfg.Scoring.MaxConcurrentFrameworks,
	})

	return &engineEnv{Store: st, Taxonomy: tax, Selector: sel, Service: svc}, nil
}
