package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/alecgard/jauge/internal/metering"
	"github.com/alecgard/jauge/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"
)

// logsHandler groups request-log query and retention HTTP handlers.
type logsHandler struct {
	store   LogStore
	metrics *metrics.Metrics
}

func newLogsHandler(store LogStore, m *metrics.Metrics) *logsHandler {
	return &logsHandler{store: store, metrics: m}
}

// ListLogs handles GET /api/v1/logs.
func (h *logsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseLogFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	page, pageSize, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}

	result, err := h.store.ListRecords(r.Context(), f, page, pageSize)
	if err != nil {
		writeStoreError(w, err, "request log not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// logDetail wraps a record with its display-time derived metrics.
type logDetail struct {
	*metering.UsageRecord
	Derived metering.DerivedMetrics `json:"derived"`
}

// GetLog handles GET /api/v1/logs/{requestID}. With ?pretty=1 the stored body
// snapshots are re-indented when (and only when) they are valid JSON.
func (h *logsHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	rec, err := h.store.GetRecord(r.Context(), requestID)
	if err != nil {
		writeStoreError(w, err, "request log not found")
		return
	}

	if r.URL.Query().Get("pretty") == "1" {
		rec.RequestBody = prettyJSON(rec.RequestBody)
		rec.ResponseBody = prettyJSON(rec.ResponseBody)
	}

	writeJSON(w, http.StatusOK, logDetail{
		UsageRecord: rec,
		Derived:     metering.Derive(rec),
	})
}

// prettyJSON re-indents s when it is valid JSON; anything else (truncated
// snapshots, SSE transcripts, plain text) is returned verbatim.
func prettyJSON(s string) string {
	if s == "" || !gjson.Valid(s) {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(s), "", "  "); err != nil {
		return s
	}
	return buf.String()
}

// GetFilterOptions handles GET /api/v1/logs/filters.
func (h *logsHandler) GetFilterOptions(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}

	opts, err := h.store.DistinctFilterValues(r.Context(), start, end)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// CountLogs handles GET /api/v1/logs/count.
func (h *logsHandler) CountLogs(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}

	count, err := h.store.CountByRange(r.Context(), start, end)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// DeleteLogs handles DELETE /api/v1/logs. An explicit range is required so a
// missing param can never wipe the table; the response reports rows actually
// removed, which may lag concurrent ingestion.
func (h *logsHandler) DeleteLogs(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	if start == 0 && end == 0 {
		writeError(w, http.StatusBadRequest, "invalid_params", "'start' or 'end' is required for bulk deletes")
		return
	}

	deleted, err := h.store.DeleteByRange(r.Context(), start, end)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	if h.metrics != nil {
		h.metrics.AddRetentionDeleted(deleted)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
