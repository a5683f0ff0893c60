package api

import (
	"net/http"
	"time"

	"github.com/alecgard/jauge/internal/metering"
	"github.com/alecgard/jauge/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ingestHandler accepts usage records from the proxy tier, prices them from
// the in-memory pricing snapshot and hands them to the write buffer.
type ingestHandler struct {
	collector Recorder
	pricer    Pricer
	metrics   *metrics.Metrics
}

func newIngestHandler(collector Recorder, pricer Pricer, m *metrics.Metrics) *ingestHandler {
	return &ingestHandler{collector: collector, pricer: pricer, metrics: m}
}

// ingestRequest is the POST body for record ingestion. requestId and createdAt
// are assigned server-side when absent; cost fields are never accepted from
// the caller.
type ingestRequest struct {
	RequestID    string `json:"requestId"`
	ProviderID   string `json:"providerId"`
	ProviderName string `json:"providerName"`
	ProviderType string `json:"providerType"`
	AppType      string `json:"appType"`
	Model        string `json:"model"`
	RequestModel string `json:"requestModel"`

	CostMultiplier *decimal.Decimal `json:"costMultiplier"`

	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`

	IsStreaming  bool   `json:"isStreaming"`
	LatencyMs    int64  `json:"latencyMs"`
	FirstTokenMs *int64 `json:"firstTokenMs"`

	StatusCode   int    `json:"statusCode"`
	ErrorMessage string `json:"errorMessage"`

	RequestBody  string `json:"requestBody"`
	ResponseBody string `json:"responseBody"`

	CreatedAt int64 `json:"createdAt"`
}

// validate returns the rejection reason and a field-level message, or ok.
func (req *ingestRequest) validate() (reason, field, message string, ok bool) {
	switch {
	case req.ProviderID == "":
		return "missing_field", "providerId", "providerId is required", false
	case req.AppType == "":
		return "missing_field", "appType", "appType is required", false
	case req.Model == "" && req.RequestModel == "":
		return "missing_field", "model", "model or requestModel is required", false
	case req.StatusCode < 100 || req.StatusCode > 599:
		return "invalid_status", "statusCode", "statusCode must be a valid HTTP status", false
	case req.InputTokens < 0 || req.OutputTokens < 0 ||
		req.CacheReadTokens < 0 || req.CacheCreationTokens < 0:
		return "negative_tokens", "inputTokens", "token counts must be non-negative", false
	case req.LatencyMs < 0:
		return "invalid_timing", "latencyMs", "latencyMs must be non-negative", false
	case req.FirstTokenMs != nil && !req.IsStreaming:
		return "invalid_timing", "firstTokenMs", "firstTokenMs is only valid for streaming responses", false
	case req.FirstTokenMs != nil && (*req.FirstTokenMs < 0 || *req.FirstTokenMs > req.LatencyMs):
		return "invalid_timing", "firstTokenMs", "firstTokenMs must be within [0, latencyMs]", false
	case req.CostMultiplier != nil && req.CostMultiplier.IsNegative():
		return "invalid_multiplier", "costMultiplier", "costMultiplier must be non-negative", false
	case req.CreatedAt < 0:
		return "invalid_timing", "createdAt", "createdAt must be non-negative", false
	}
	return "", "", "", true
}

// CreateRecord handles POST /api/v1/records. Records for failed upstream
// requests are accepted like any other; pricing misses zero the costs but
// never reject the record.
func (h *ingestHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := readJSON(r, &req); err != nil {
		h.reject(w, "invalid_json", "", "invalid JSON body: "+err.Error())
		return
	}

	if reason, field, message, ok := req.validate(); !ok {
		h.reject(w, reason, field, message)
		return
	}

	rec := metering.UsageRecord{
		RequestID:           req.RequestID,
		ProviderID:          req.ProviderID,
		ProviderName:        req.ProviderName,
		ProviderType:        req.ProviderType,
		AppType:             req.AppType,
		Model:               req.Model,
		RequestModel:        req.RequestModel,
		InputTokens:         req.InputTokens,
		OutputTokens:        req.OutputTokens,
		CacheReadTokens:     req.CacheReadTokens,
		CacheCreationTokens: req.CacheCreationTokens,
		IsStreaming:         req.IsStreaming,
		LatencyMs:           req.LatencyMs,
		FirstTokenMs:        req.FirstTokenMs,
		StatusCode:          req.StatusCode,
		ErrorMessage:        req.ErrorMessage,
		RequestBody:         req.RequestBody,
		ResponseBody:        req.ResponseBody,
		CreatedAt:           req.CreatedAt,
	}

	// The billing model falls back to the requested one when the upstream
	// response never named a model (errors, some streaming providers).
	if rec.Model == "" {
		rec.Model = req.RequestModel
	}
	if rec.RequestID == "" {
		rec.RequestID = uuid.NewString()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	if req.CostMultiplier != nil {
		rec.CostMultiplier = *req.CostMultiplier
	}

	if h.pricer != nil {
		if priced := h.pricer.Price(&rec); !priced && h.metrics != nil {
			h.metrics.IncPricingMiss(rec.Model)
		}
	}

	h.collector.Record(rec)
	if h.metrics != nil {
		h.metrics.IngestRecordsTotal.Inc()
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"requestId":    rec.RequestID,
		"createdAt":    rec.CreatedAt,
		"totalCostUsd": rec.TotalCostUSD,
	})
}

func (h *ingestHandler) reject(w http.ResponseWriter, reason, field, message string) {
	if h.metrics != nil {
		h.metrics.IncIngestRejected(reason)
	}
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorDetail{Code: reason, Message: message, Field: field},
	})
}
