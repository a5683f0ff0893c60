package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModelPricing maps a billing model id to per-million-token USD rates. Rates
// are consulted at record-creation time only; editing or deleting an entry
// never reprices historical records.
type ModelPricing struct {
	ModelID                 string          `json:"modelId"`
	DisplayName             string          `json:"displayName"`
	InputPerMillionUSD      decimal.Decimal `json:"inputPerMillionUsd"`
	OutputPerMillionUSD     decimal.Decimal `json:"outputPerMillionUsd"`
	CacheReadPerMillionUSD  decimal.Decimal `json:"cacheReadPerMillionUsd"`
	CacheWritePerMillionUSD decimal.Decimal `json:"cacheWritePerMillionUsd"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}
