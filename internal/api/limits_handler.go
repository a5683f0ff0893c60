package api

import (
	"errors"
	"net/http"

	"github.com/alecgard/jauge/internal/limits"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// limitsHandler groups provider spending-cap HTTP handlers.
type limitsHandler struct {
	store LimitStore
}

func newLimitsHandler(store LimitStore) *limitsHandler {
	return &limitsHandler{store: store}
}

// ListLimits handles GET /api/v1/limits.
func (h *limitsHandler) ListLimits(w http.ResponseWriter, r *http.Request) {
	configured, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list limits")
		return
	}
	if configured == nil {
		configured = []*limits.Limit{}
	}
	writeJSON(w, http.StatusOK, map[string][]*limits.Limit{"data": configured})
}

// GetLimit handles GET /api/v1/limits/{providerID}/{appType}.
func (h *limitsHandler) GetLimit(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	appType := chi.URLParam(r, "appType")

	limit, err := h.store.Get(r.Context(), providerID, appType)
	if err != nil {
		if errors.Is(err, limits.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no limit configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get limit")
		return
	}
	writeJSON(w, http.StatusOK, limit)
}

// limitRequest is the PUT body for a cap upsert. Caps are USD decimal strings;
// zero means unlimited.
type limitRequest struct {
	DailyLimitUSD   decimal.Decimal `json:"dailyLimitUsd"`
	MonthlyLimitUSD decimal.Decimal `json:"monthlyLimitUsd"`
}

// SetLimit handles PUT /api/v1/limits/{providerID}/{appType}.
func (h *limitsHandler) SetLimit(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	appType := chi.URLParam(r, "appType")

	var req limitRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body: "+err.Error())
		return
	}
	if req.DailyLimitUSD.IsNegative() || req.MonthlyLimitUSD.IsNegative() {
		writeError(w, http.StatusBadRequest, "invalid_body", "limits must be non-negative")
		return
	}

	saved, err := h.store.Set(r.Context(), limits.Limit{
		ProviderID:      providerID,
		AppType:         appType,
		DailyLimitUSD:   req.DailyLimitUSD,
		MonthlyLimitUSD: req.MonthlyLimitUSD,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save limit")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteLimit handles DELETE /api/v1/limits/{providerID}/{appType}.
func (h *limitsHandler) DeleteLimit(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	appType := chi.URLParam(r, "appType")

	if err := h.store.Delete(r.Context(), providerID, appType); err != nil {
		if errors.Is(err, limits.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no limit configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete limit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles GET /api/v1/limits/{providerID}/{appType}/status. The
// status is computed from live spend sums and is never persisted.
func (h *limitsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	appType := chi.URLParam(r, "appType")

	status, err := h.store.Check(r.Context(), providerID, appType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to check limit status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
