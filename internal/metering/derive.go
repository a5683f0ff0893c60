package metering

// IsSuccess reports whether a status code counts as a successful request.
// Every success/error classification in the system (status filters, success
// rates, rollups) goes through this predicate or its SQL mirror in store
// queries; do not re-derive the threshold elsewhere.
func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// CacheHitRate returns the percentage of prompt tokens served from cache:
// cacheRead / (input + output + cacheRead) * 100. It returns nil when the
// denominator is zero (absent, not zero).
func CacheHitRate(inputTokens, outputTokens, cacheReadTokens int64) *float64 {
	denom := inputTokens + outputTokens + cacheReadTokens
	if denom == 0 {
		return nil
	}
	rate := float64(cacheReadTokens) / float64(denom) * 100
	return &rate
}

// generationMs returns the wall time of the generation phase in milliseconds.
// For streaming records the prefill phase (up to the first token) is
// subtracted; non-streaming responses have no distinguishable prefill.
func generationMs(r *UsageRecord) int64 {
	if r.IsStreaming && r.FirstTokenMs != nil {
		return r.LatencyMs - *r.FirstTokenMs
	}
	return r.LatencyMs
}

// TimePerOutputToken returns the average milliseconds spent per output token
// during the generation phase. Defined only for streaming records with a
// recorded first-token time; nil when outputTokens is zero or the generation
// time is non-positive.
func TimePerOutputToken(r *UsageRecord) *float64 {
	if !r.IsStreaming || r.FirstTokenMs == nil || r.OutputTokens == 0 {
		return nil
	}
	gen := r.LatencyMs - *r.FirstTokenMs
	if gen <= 0 {
		return nil
	}
	v := float64(gen) / float64(r.OutputTokens)
	return &v
}

// TokensPerSecond returns output throughput over the generation phase, with
// the same guards as TimePerOutputToken. For non-streaming records the whole
// latency counts as generation time.
func TokensPerSecond(r *UsageRecord) *float64 {
	if r.OutputTokens == 0 {
		return nil
	}
	gen := generationMs(r)
	if gen <= 0 {
		return nil
	}
	v := float64(r.OutputTokens) / (float64(gen) / 1000)
	return &v
}

// DerivedMetrics carries the display-time numbers computed from a record.
// Absent values stay nil rather than zero so consumers can distinguish
// "undefined" from "measured as zero".
type DerivedMetrics struct {
	CacheHitRate       *float64 `json:"cacheHitRate,omitempty"`
	TokensPerSecond    *float64 `json:"tokensPerSecond,omitempty"`
	TimePerOutputToken *float64 `json:"timePerOutputToken,omitempty"`
	Success            bool     `json:"success"`
}

// Derive computes all display-time metrics for a single record.
func Derive(r *UsageRecord) DerivedMetrics {
	return DerivedMetrics{
		CacheHitRate:       CacheHitRate(r.InputTokens, r.OutputTokens, r.CacheReadTokens),
		TokensPerSecond:    TokensPerSecond(r),
		TimePerOutputToken: TimePerOutputToken(r),
		Success:            IsSuccess(r.StatusCode),
	}
}
