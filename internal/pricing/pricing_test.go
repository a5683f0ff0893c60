package pricing

import (
	"sync"
	"testing"

	"github.com/alecgard/jauge/internal/metering"
	"github.com/shopspring/decimal"
)

func sonnetPricing() ModelPricing {
	return ModelPricing{
		ModelID:                 "claude-sonnet-4",
		DisplayName:             "Claude Sonnet 4",
		InputPerMillionUSD:      decimal.RequireFromString("3"),
		OutputPerMillionUSD:     decimal.RequireFromString("15"),
		CacheReadPerMillionUSD:  decimal.RequireFromString("0.30"),
		CacheWritePerMillionUSD: decimal.RequireFromString("3.75"),
	}
}

func TestTablePrice_Breakdown(t *testing.T) {
	table := NewTable()
	table.Put(sonnetPricing())

	rec := &metering.UsageRecord{
		Model:        "claude-sonnet-4",
		InputTokens:  1000,
		OutputTokens: 500,
	}
	if !table.Price(rec) {
		t.Fatal("expected pricing to be found")
	}

	if got := rec.InputCostUSD.StringFixed(6); got != "0.003000" {
		t.Errorf("input cost = %s, want 0.003000", got)
	}
	if got := rec.OutputCostUSD.StringFixed(6); got != "0.007500" {
		t.Errorf("output cost = %s, want 0.007500", got)
	}
	if got := rec.TotalCostUSD.StringFixed(6); got != "0.010500" {
		t.Errorf("total cost = %s, want 0.010500", got)
	}
	if got := rec.CostMultiplier.String(); got != "1" {
		t.Errorf("multiplier should default to 1, got %s", got)
	}
}

func TestTablePrice_TotalIsExactComponentSum(t *testing.T) {
	table := NewTable()
	table.Put(sonnetPricing())

	rec := &metering.UsageRecord{
		Model:               "claude-sonnet-4",
		InputTokens:         123457,
		OutputTokens:        98765,
		CacheReadTokens:     5461,
		CacheCreationTokens: 777,
	}
	table.Price(rec)

	sum := rec.InputCostUSD.
		Add(rec.OutputCostUSD).
		Add(rec.CacheReadCostUSD).
		Add(rec.CacheCreationCostUSD)
	if !rec.TotalCostUSD.Equal(sum) {
		t.Errorf("total %s != component sum %s", rec.TotalCostUSD, sum)
	}
}

func TestTablePrice_CostMultiplier(t *testing.T) {
	table := NewTable()
	table.Put(sonnetPricing())

	// The multiplier scales each already-rate-priced category.
	rec := &metering.UsageRecord{
		Model:          "claude-sonnet-4",
		InputTokens:    1000,
		OutputTokens:   500,
		CostMultiplier: decimal.RequireFromString("0.5"),
	}
	table.Price(rec)

	if got := rec.InputCostUSD.StringFixed(6); got != "0.001500" {
		t.Errorf("input cost = %s, want 0.001500", got)
	}
	if got := rec.TotalCostUSD.StringFixed(6); got != "0.005250" {
		t.Errorf("total cost = %s, want 0.005250", got)
	}
}

func TestTablePrice_MissIsNonFatal(t *testing.T) {
	table := NewTable()

	rec := &metering.UsageRecord{
		Model:        "unknown-model",
		InputTokens:  1000,
		OutputTokens: 500,
	}
	if table.Price(rec) {
		t.Fatal("expected pricing miss")
	}

	if !rec.TotalCostUSD.IsZero() || !rec.InputCostUSD.IsZero() {
		t.Errorf("pricing miss must zero cost fields, got total %s", rec.TotalCostUSD)
	}
}

func TestTablePrice_CacheCategories(t *testing.T) {
	table := NewTable()
	table.Put(sonnetPricing())

	rec := &metering.UsageRecord{
		Model:               "claude-sonnet-4",
		CacheReadTokens:     1_000_000,
		CacheCreationTokens: 1_000_000,
	}
	table.Price(rec)

	if got := rec.CacheReadCostUSD.StringFixed(6); got != "0.300000" {
		t.Errorf("cache read cost = %s, want 0.300000", got)
	}
	if got := rec.CacheCreationCostUSD.StringFixed(6); got != "3.750000" {
		t.Errorf("cache creation cost = %s, want 3.750000", got)
	}
}

func TestTable_PutGetRemove(t *testing.T) {
	table := NewTable()
	if _, ok := table.Get("claude-sonnet-4"); ok {
		t.Fatal("empty table should miss")
	}

	table.Put(sonnetPricing())
	p, ok := table.Get("claude-sonnet-4")
	if !ok {
		t.Fatal("expected entry after Put")
	}
	if p.DisplayName != "Claude Sonnet 4" {
		t.Errorf("unexpected display name %q", p.DisplayName)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", table.Len())
	}

	table.Remove("claude-sonnet-4")
	if _, ok := table.Get("claude-sonnet-4"); ok {
		t.Fatal("expected miss after Remove")
	}
}

func TestTable_ConcurrentReads(t *testing.T) {
	table := NewTable()
	table.Put(sonnetPricing())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec := &metering.UsageRecord{Model: "claude-sonnet-4", InputTokens: 10}
				table.Price(rec)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			table.Put(sonnetPricing())
		}
	}()
	wg.Wait()
}
