// Package api serves posture scores over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/posture-cli/internal/framework"
	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/posture"
)

// Engine is the scoring surface the API exposes. *posture.Service satisfies it.
type Engine interface {
	Lookup() framework.Lookup
	ComputeFunctionScores(ctx context.Context, scope posture.Scope) ([]model.AggregateScore, error)
	ComputeCategoryScores(ctx context.Context, functionCode string, scope posture.Scope) ([]model.AggregateScore, error)
	ComputeOverallScore(functions []model.AggregateScore) model.OverallScore
	MetricsNeedingAttention(ctx context.Context, scope posture.Scope, limit int) ([]model.AttentionItem, error)
	Snapshot(ctx context.Context, scope posture.Scope) (*model.PostureSnapshot, error)
}

var _ Engine = (*posture.Service)(nil)

// Options configures the router middleware.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler for engine.
func NewRouter(engine Engine, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	h := &handler{engine: engine}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)))
	}
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/health", h.health)

	r.Route("/api/v1/frameworks", func(r chi.Router) {
		r.Get("/", h.listFrameworks)
		r.Route("/{framework}", func(r chi.Router) {
			r.Get("/functions", h.functions)
			r.Get("/functions/{function}/categories", h.categories)
			r.Get("/overall", h.overall)
			r.Get("/attention", h.attention)
			r.Get("/snapshot", h.snapshot)
		})
	})

	return r
}
