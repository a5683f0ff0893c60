package api

import (
	"net/http"

	"github.com/alecgard/jauge/internal/metering"
)

// statsHandler groups aggregation HTTP handlers.
type statsHandler struct {
	store StatsStore
}

func newStatsHandler(store StatsStore) *statsHandler {
	return &statsHandler{store: store}
}

// GetSummary handles GET /api/v1/usage/summary.
func (h *statsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q, err := parseAggregateQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}

	summary, err := h.store.Summary(r.Context(), q)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetTrends handles GET /api/v1/usage/trends. Both window bounds are required:
// gap-free bucketing needs a concrete range to fill.
func (h *statsHandler) GetTrends(w http.ResponseWriter, r *http.Request) {
	q, err := parseAggregateQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	if q.StartDate == 0 || q.EndDate == 0 {
		writeError(w, http.StatusBadRequest, "invalid_params", "'start' and 'end' are required for trends")
		return
	}

	trends, err := h.store.DailyTrends(r.Context(), q)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]metering.DailyStat{"data": trends})
}

// GetProviderStats handles GET /api/v1/usage/providers.
func (h *statsHandler) GetProviderStats(w http.ResponseWriter, r *http.Request) {
	q, err := parseAggregateQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}

	stats, err := h.store.ProviderStats(r.Context(), q)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	if stats == nil {
		stats = []metering.ProviderStat{}
	}
	writeJSON(w, http.StatusOK, map[string][]metering.ProviderStat{"data": stats})
}

// GetModelStats handles GET /api/v1/usage/models.
func (h *statsHandler) GetModelStats(w http.ResponseWriter, r *http.Request) {
	q, err := parseAggregateQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}

	stats, err := h.store.ModelStats(r.Context(), q)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	if stats == nil {
		stats = []metering.ModelStat{}
	}
	writeJSON(w, http.StatusOK, map[string][]metering.ModelStat{"data": stats})
}
