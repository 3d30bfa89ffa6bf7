package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/posture-cli/internal/framework"
	"github.com/sells-group/posture-cli/internal/model"
	"github.com/sells-group/posture-cli/internal/posture"
	"github.com/sells-group/posture-cli/internal/source"
	"github.com/sells-group/posture-cli/internal/store"
)

type handler struct {
	engine Engine
}

type functionsResponse struct {
	Scope     posture.Scope          `json:"scope"`
	Functions []model.AggregateScore `json:"functions"`
	Overall   model.OverallScore     `json:"overall"`
}

type categoriesResponse struct {
	Scope        posture.Scope          `json:"scope"`
	FunctionCode string                 `json:"function_code"`
	Categories   []model.AggregateScore `json:"categories"`
}

type overallResponse struct {
	Scope   posture.Scope      `json:"scope"`
	Overall model.OverallScore `json:"overall"`
}

type attentionResponse struct {
	Scope   posture.Scope         `json:"scope"`
	Metrics []model.AttentionItem `json:"metrics"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listFrameworks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"frameworks": h.engine.Lookup().Frameworks()})
}

func (h *handler) functions(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r)
	scores, err := h.engine.ComputeFunctionScores(r.Context(), scope)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, functionsResponse{
		Scope:     scope,
		Functions: scores,
		Overall:   h.engine.ComputeOverallScore(scores),
	})
}

func (h *handler) categories(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r)
	fn := chi.URLParam(r, "function")
	scores, err := h.engine.ComputeCategoryScores(r.Context(), fn, scope)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Scope: scope, FunctionCode: fn, Categories: scores})
}

func (h *handler) overall(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r)
	scores, err := h.engine.ComputeFunctionScores(r.Context(), scope)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overallResponse{Scope: scope, Overall: h.engine.ComputeOverallScore(scores)})
}

func (h *handler) attention(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	scope := scopeFrom(r)
	items, err := h.engine.MetricsNeedingAttention(r.Context(), scope, limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attentionResponse{Scope: scope, Metrics: items})
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context(), scopeFrom(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func scopeFrom(r *http.Request) posture.Scope {
	q := r.URL.Query()
	return posture.Scope{
		FrameworkCode: chi.URLParam(r, "framework"),
		CatalogID:     q.Get("catalog_id"),
		Owner:         q.Get("owner"),
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, framework.ErrUnknownFramework), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, source.ErrOwnerRequired), errors.Is(err, source.ErrFrameworkMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api: scoring failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
