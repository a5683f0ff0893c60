package pricing

import (
	"context"
	"fmt"
	"sync"

	"github.com/alecgard/jauge/internal/metering"
	"github.com/shopspring/decimal"
)

// Table is the read-mostly in-memory view of model pricing consulted once per
// ingested record. Mutations are rare (operator-driven) and go through the
// Store first; callers then update the snapshot via Put/Remove or Reload.
type Table struct {
	mu      sync.RWMutex
	entries map[string]ModelPricing
}

// NewTable creates an empty pricing table.
func NewTable() *Table {
	return &Table{entries: make(map[string]ModelPricing)}
}

// Reload replaces the snapshot with the current store contents.
func (t *Table) Reload(ctx context.Context, store *Store) error {
	entries, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("reloading pricing table: %w", err)
	}

	fresh := make(map[string]ModelPricing, len(entries))
	for _, p := range entries {
		fresh[p.ModelID] = *p
	}

	t.mu.Lock()
	t.entries = fresh
	t.mu.Unlock()
	return nil
}

// Get returns the pricing entry for modelID and whether one exists.
func (t *Table) Get(modelID string) (ModelPricing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.entries[modelID]
	return p, ok
}

// Put updates the snapshot after a successful store upsert.
func (t *Table) Put(p ModelPricing) {
	t.mu.Lock()
	t.entries[p.ModelID] = p
	t.mu.Unlock()
}

// Remove updates the snapshot after a successful store delete.
func (t *Table) Remove(modelID string) {
	t.mu.Lock()
	delete(t.entries, modelID)
	t.mu.Unlock()
}

// Len returns the number of entries in the snapshot.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Price fills in the five cost fields of a record from the table snapshot.
// A record whose model has no pricing entry gets zero costs — metering never
// fails because pricing is incomplete. It reports whether pricing was found.
//
// Each token category is priced independently as
// tokens/1e6 * ratePerMillion * costMultiplier, all in exact decimal
// arithmetic; the total is the sum of the four components.
func (t *Table) Price(rec *metering.UsageRecord) bool {
	if rec.CostMultiplier.IsZero() {
		rec.CostMultiplier = decimal.NewFromInt(1)
	}

	p, ok := t.Get(rec.Model)
	if !ok {
		rec.InputCostUSD = decimal.Zero
		rec.OutputCostUSD = decimal.Zero
		rec.CacheReadCostUSD = decimal.Zero
		rec.CacheCreationCostUSD = decimal.Zero
		rec.TotalCostUSD = decimal.Zero
		return false
	}

	rec.InputCostUSD = categoryCost(rec.InputTokens, p.InputPerMillionUSD, rec.CostMultiplier)
	rec.OutputCostUSD = categoryCost(rec.OutputTokens, p.OutputPerMillionUSD, rec.CostMultiplier)
	rec.CacheReadCostUSD = categoryCost(rec.CacheReadTokens, p.CacheReadPerMillionUSD, rec.CostMultiplier)
	rec.CacheCreationCostUSD = categoryCost(rec.CacheCreationTokens, p.CacheWritePerMillionUSD, rec.CostMultiplier)
	rec.TotalCostUSD = rec.InputCostUSD.
		Add(rec.OutputCostUSD).
		Add(rec.CacheReadCostUSD).
		Add(rec.CacheCreationCostUSD)
	return true
}

// categoryCost computes tokens/1e6 * rate * multiplier without division:
// Shift(-6) moves the decimal point exactly, so no precision is lost.
func categoryCost(tokens int64, ratePerMillion, multiplier decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(tokens).Mul(ratePerMillion).Mul(multiplier).Shift(-6)
}
