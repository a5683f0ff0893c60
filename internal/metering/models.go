package metering

import "github.com/shopspring/decimal"

// UsageRecord is one metering row per completed (or failed) upstream request.
// Records are write-once: created when the request outcome is fully known,
// never mutated, and removed only by bulk retention deletes.
type UsageRecord struct {
	RequestID    string `json:"requestId"`
	ProviderID   string `json:"providerId"`
	ProviderName string `json:"providerName,omitempty"`
	ProviderType string `json:"providerType,omitempty"`
	AppType      string `json:"appType"`

	// Model is the resolved billing model; RequestModel is what the client
	// originally asked for (they differ under model remapping).
	Model        string `json:"model"`
	RequestModel string `json:"requestModel,omitempty"`

	// CostMultiplier scales each rate-priced cost category (promotional or
	// discounted pricing). Defaults to 1.
	CostMultiplier decimal.Decimal `json:"costMultiplier"`

	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`

	// Cost fields are computed once at ingestion from the pricing table
	// snapshot and kept verbatim afterwards, even if pricing changes.
	InputCostUSD         decimal.Decimal `json:"inputCostUsd"`
	OutputCostUSD        decimal.Decimal `json:"outputCostUsd"`
	CacheReadCostUSD     decimal.Decimal `json:"cacheReadCostUsd"`
	CacheCreationCostUSD decimal.Decimal `json:"cacheCreationCostUsd"`
	TotalCostUSD         decimal.Decimal `json:"totalCostUsd"`

	IsStreaming bool  `json:"isStreaming"`
	LatencyMs   int64 `json:"latencyMs"`
	// FirstTokenMs is set only for streaming responses (time to first token).
	FirstTokenMs *int64 `json:"firstTokenMs,omitempty"`

	StatusCode   int    `json:"statusCode"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Payload snapshots are stored verbatim for debugging and never parsed by
	// the core (aside from optional pretty-printing at display time). List
	// queries omit them; only detail lookups return them.
	RequestBody  string `json:"requestBody,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`

	CreatedAt int64 `json:"createdAt"`
}

// LogFilters narrows request-log queries. Zero values mean "no constraint".
// StartDate/EndDate form an inclusive Unix-second window on CreatedAt; whether
// the caller resolved it from a rolling or a fixed window is invisible here.
type LogFilters struct {
	AppType      string `json:"appType,omitempty"`
	ProviderType string `json:"providerType,omitempty"`
	ProviderName string `json:"providerName,omitempty"`
	ProviderID   string `json:"providerId,omitempty"`
	Model        string `json:"model,omitempty"`
	StatusCode   int    `json:"statusCode,omitempty"`
	StatusFilter string `json:"statusFilter,omitempty"` // "success" or "error"
	StartDate    int64  `json:"startDate,omitempty"`
	EndDate      int64  `json:"endDate,omitempty"`
}

// LogPage is one page of request logs plus the pre-pagination total.
type LogPage struct {
	Data     []*UsageRecord `json:"data"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// AggregateQuery scopes an aggregation to a time window and optional
// provider/appType dimensions. A zero StartDate/EndDate leaves that side of
// the window unbounded.
type AggregateQuery struct {
	StartDate  int64  `json:"startDate,omitempty"`
	EndDate    int64  `json:"endDate,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	AppType    string `json:"appType,omitempty"`
}

// UsageSummary holds window-level totals. SuccessRate is 0 (not NaN) when no
// records match.
type UsageSummary struct {
	TotalRequests       int64           `json:"totalRequests"`
	TotalCostUSD        decimal.Decimal `json:"totalCostUsd"`
	InputTokens         int64           `json:"inputTokens"`
	OutputTokens        int64           `json:"outputTokens"`
	CacheReadTokens     int64           `json:"cacheReadTokens"`
	CacheCreationTokens int64           `json:"cacheCreationTokens"`
	SuccessRate         float64         `json:"successRate"`
}

// DailyStat is one bucket of a gap-free daily trend series. Date is the UTC
// date (YYYY-MM-DD) of the bucket start.
type DailyStat struct {
	Date                string          `json:"date"`
	RequestCount        int64           `json:"requestCount"`
	TotalCostUSD        decimal.Decimal `json:"totalCostUsd"`
	InputTokens         int64           `json:"inputTokens"`
	OutputTokens        int64           `json:"outputTokens"`
	CacheReadTokens     int64           `json:"cacheReadTokens"`
	CacheCreationTokens int64           `json:"cacheCreationTokens"`
}

// ProviderStat is a per-provider rollup. Providers with no matching records
// are not emitted.
type ProviderStat struct {
	ProviderID   string          `json:"providerId"`
	ProviderName string          `json:"providerName,omitempty"`
	RequestCount int64           `json:"requestCount"`
	TotalTokens  int64           `json:"totalTokens"`
	TotalCostUSD decimal.Decimal `json:"totalCostUsd"`
	SuccessRate  float64         `json:"successRate"`
	AvgLatencyMs float64         `json:"avgLatencyMs"`
}

// ModelStat is a per-model rollup. Models with no matching records are not
// emitted.
type ModelStat struct {
	Model             string          `json:"model"`
	RequestCount      int64           `json:"requestCount"`
	TotalTokens       int64           `json:"totalTokens"`
	TotalCostUSD      decimal.Decimal `json:"totalCostUsd"`
	AvgCostPerRequest decimal.Decimal `json:"avgCostPerRequest"`
}

// ProviderOption is a provider observed in the window, for filter dropdowns.
type ProviderOption struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// FilterOptions lists the distinct provider and model values observed within
// a time window.
type FilterOptions struct {
	Providers []ProviderOption `json:"providers"`
	Models    []string         `json:"models"`
}
