package api

import (
	"errors"
	"net/http"

	"github.com/alecgard/jauge/internal/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// pricingHandler groups pricing-table HTTP handlers. Mutations go to the
// database first and are then mirrored into the in-memory snapshot so the next
// ingested record sees them; historical records are never repriced.
type pricingHandler struct {
	store PricingStore
	table Pricer
}

func newPricingHandler(store PricingStore, table Pricer) *pricingHandler {
	return &pricingHandler{store: store, table: table}
}

// ListPricing handles GET /api/v1/pricing.
func (h *pricingHandler) ListPricing(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list pricing")
		return
	}
	if entries == nil {
		entries = []*pricing.ModelPricing{}
	}
	writeJSON(w, http.StatusOK, map[string][]*pricing.ModelPricing{"data": entries})
}

// pricingRequest is the PUT body for a pricing upsert. Rates are USD per
// million tokens, decimal strings on the wire.
type pricingRequest struct {
	DisplayName             string          `json:"displayName"`
	InputPerMillionUSD      decimal.Decimal `json:"inputPerMillionUsd"`
	OutputPerMillionUSD     decimal.Decimal `json:"outputPerMillionUsd"`
	CacheReadPerMillionUSD  decimal.Decimal `json:"cacheReadPerMillionUsd"`
	CacheWritePerMillionUSD decimal.Decimal `json:"cacheWritePerMillionUsd"`
}

// UpsertPricing handles PUT /api/v1/pricing/{modelID}.
func (h *pricingHandler) UpsertPricing(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")

	var req pricingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body: "+err.Error())
		return
	}
	if req.InputPerMillionUSD.IsNegative() || req.OutputPerMillionUSD.IsNegative() ||
		req.CacheReadPerMillionUSD.IsNegative() || req.CacheWritePerMillionUSD.IsNegative() {
		writeError(w, http.StatusBadRequest, "invalid_body", "rates must be non-negative")
		return
	}

	saved, err := h.store.Upsert(r.Context(), pricing.ModelPricing{
		ModelID:                 modelID,
		DisplayName:             req.DisplayName,
		InputPerMillionUSD:      req.InputPerMillionUSD,
		OutputPerMillionUSD:     req.OutputPerMillionUSD,
		CacheReadPerMillionUSD:  req.CacheReadPerMillionUSD,
		CacheWritePerMillionUSD: req.CacheWritePerMillionUSD,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save pricing")
		return
	}

	if h.table != nil {
		h.table.Put(*saved)
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeletePricing handles DELETE /api/v1/pricing/{modelID}.
func (h *pricingHandler) DeletePricing(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")

	if err := h.store.Delete(r.Context(), modelID); err != nil {
		if errors.Is(err, pricing.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no pricing for model "+modelID)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete pricing")
		return
	}

	if h.table != nil {
		h.table.Remove(modelID)
	}
	w.WriteHeader(http.StatusNoContent)
}
