package metering

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const secondsPerDay = 86400

// maxTrendDays caps the daily series length (about ten years). Without it a
// single wide window would have the server materialize one bucket per day of
// the whole Unix epoch range.
const maxTrendDays = 3660

// trendDays returns the gap-free bucket count ceil((end-start)/86400) for a
// validated window (0 <= start <= end). The division form cannot overflow the
// way start+86399 would near MaxInt64.
func trendDays(start, end int64) int64 {
	n := (end - start) / secondsPerDay
	if (end-start)%secondsPerDay != 0 {
		n++
	}
	return n
}

// successCaseSQL mirrors IsSuccess for in-database aggregation.
const successCaseSQL = `SUM(CASE WHEN status_code >= 200 AND status_code < 300 THEN 1 ELSE 0 END)`

// aggWhere translates an aggregate query into a WHERE clause. It reuses the
// filter engine so window and dimension semantics stay identical across
// pagination and aggregation.
func aggWhere(q AggregateQuery) (string, []any, error) {
	if q.StartDate != 0 && q.EndDate != 0 && q.StartDate > q.EndDate {
		return "", nil, &ValidationError{Field: "startDate", Reason: "startDate is after endDate"}
	}
	where, args := buildWhereClause(LogFilters{
		ProviderID: q.ProviderID,
		AppType:    q.AppType,
		StartDate:  q.StartDate,
		EndDate:    q.EndDate,
	})
	return where, args, nil
}

// Summary computes window totals in a single range scan. Zero matching
// records yield an all-zero summary with SuccessRate 0.
func (s *Store) Summary(ctx context.Context, q AggregateQuery) (*UsageSummary, error) {
	where, args, err := aggWhere(q)
	if err != nil {
		return nil, err
	}

	query := `SELECT
		COUNT(*),
		COALESCE(SUM(total_cost_usd), 0)::text,
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cache_read_tokens), 0),
		COALESCE(SUM(cache_creation_tokens), 0),
		COALESCE(` + successCaseSQL + `, 0)
	FROM request_logs` + where

	var summary UsageSummary
	var totalCost string
	var successCount int64
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&summary.TotalRequests,
		&totalCost,
		&summary.InputTokens,
		&summary.OutputTokens,
		&summary.CacheReadTokens,
		&summary.CacheCreationTokens,
		&successCount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage summary: %w", err)
	}

	if summary.TotalCostUSD, err = decimal.NewFromString(totalCost); err != nil {
		return nil, fmt.Errorf("parsing summary total cost: %w", err)
	}
	if summary.TotalRequests > 0 {
		summary.SuccessRate = float64(successCount) / float64(summary.TotalRequests)
	}

	return &summary, nil
}

// DailyTrends returns a gap-free daily series for the window. Buckets are
// indexed from the window start in UTC-day steps; days with no records are
// emitted with zero values so charts see a complete series.
func (s *Store) DailyTrends(ctx context.Context, q AggregateQuery) ([]DailyStat, error) {
	if err := ValidateRange(q.StartDate, q.EndDate); err != nil {
		return nil, err
	}
	if trendDays(q.StartDate, q.EndDate) > maxTrendDays {
		return nil, &ValidationError{
			Field:  "endDate",
			Reason: fmt.Sprintf("window must not span more than %d days", maxTrendDays),
		}
	}
	where, args, err := aggWhere(q)
	if err != nil {
		return nil, err
	}

	args = append(args, q.StartDate)
	bucketExpr := `(created_at - $` + strconv.Itoa(len(args)) + `) / ` + strconv.Itoa(secondsPerDay)

	query := `SELECT ` + bucketExpr + ` AS bucket,
		COUNT(*),
		COALESCE(SUM(total_cost_usd), 0)::text,
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cache_read_tokens), 0),
		COALESCE(SUM(cache_creation_tokens), 0)
	FROM request_logs` + where + `
	GROUP BY bucket ORDER BY bucket`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage trends: %w", err)
	}
	defer rows.Close()

	filled := make(map[int64]DailyStat)
	for rows.Next() {
		var idx int64
		var stat DailyStat
		var totalCost string
		if err := rows.Scan(&idx, &stat.RequestCount, &totalCost,
			&stat.InputTokens, &stat.OutputTokens,
			&stat.CacheReadTokens, &stat.CacheCreationTokens); err != nil {
			return nil, fmt.Errorf("scanning trend bucket: %w", err)
		}
		if stat.TotalCostUSD, err = decimal.NewFromString(totalCost); err != nil {
			return nil, fmt.Errorf("parsing trend bucket cost: %w", err)
		}
		filled[idx] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trend buckets: %w", err)
	}

	return fillTrendBuckets(q.StartDate, q.EndDate, filled), nil
}

// fillTrendBuckets expands sparse per-bucket sums into a complete series of
// exactly ceil((end-start)/86400) buckets. The inclusive window end can land
// on a bucket boundary; such records are folded into the final bucket.
func fillTrendBuckets(start, end int64, filled map[int64]DailyStat) []DailyStat {
	n := trendDays(start, end)
	if n <= 0 {
		return []DailyStat{}
	}

	if overflow, ok := filled[n]; ok {
		last := filled[n-1]
		last.RequestCount += overflow.RequestCount
		last.TotalCostUSD = last.TotalCostUSD.Add(overflow.TotalCostUSD)
		last.InputTokens += overflow.InputTokens
		last.OutputTokens += overflow.OutputTokens
		last.CacheReadTokens += overflow.CacheReadTokens
		last.CacheCreationTokens += overflow.CacheCreationTokens
		filled[n-1] = last
	}

	out := make([]DailyStat, 0, n)
	for i := int64(0); i < n; i++ {
		stat := filled[i]
		stat.Date = time.Unix(start+i*secondsPerDay, 0).UTC().Format("2006-01-02")
		out = append(out, stat)
	}
	return out
}

// ProviderStats returns per-provider rollups over the window, most active
// provider first. Providers with no matching records are excluded.
func (s *Store) ProviderStats(ctx context.Context, q AggregateQuery) ([]ProviderStat, error) {
	where, args, err := aggWhere(q)
	if err != nil {
		return nil, err
	}

	query := `SELECT provider_id, MAX(provider_name),
		COUNT(*),
		COALESCE(SUM(input_tokens + output_tokens + cache_read_tokens + cache_creation_tokens), 0),
		COALESCE(SUM(total_cost_usd), 0)::text,
		COALESCE(` + successCaseSQL + `, 0),
		COALESCE(AVG(latency_ms), 0)
	FROM request_logs` + where + `
	GROUP BY provider_id ORDER BY COUNT(*) DESC, provider_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying provider stats: %w", err)
	}
	defer rows.Close()

	var stats []ProviderStat
	for rows.Next() {
		var st ProviderStat
		var totalCost string
		var successCount int64
		if err := rows.Scan(&st.ProviderID, &st.ProviderName, &st.RequestCount,
			&st.TotalTokens, &totalCost, &successCount, &st.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scanning provider stat: %w", err)
		}
		if st.TotalCostUSD, err = decimal.NewFromString(totalCost); err != nil {
			return nil, fmt.Errorf("parsing provider stat cost: %w", err)
		}
		if st.RequestCount > 0 {
			st.SuccessRate = float64(successCount) / float64(st.RequestCount)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider stats: %w", err)
	}

	return stats, nil
}

// ModelStats returns per-model rollups over the window, most active model
// first. Models with no matching records are excluded.
func (s *Store) ModelStats(ctx context.Context, q AggregateQuery) ([]ModelStat, error) {
	where, args, err := aggWhere(q)
	if err != nil {
		return nil, err
	}

	query := `SELECT model,
		COUNT(*),
		COALESCE(SUM(input_tokens + output_tokens + cache_read_tokens + cache_creation_tokens), 0),
		COALESCE(SUM(total_cost_usd), 0)::text
	FROM request_logs` + where + `
	GROUP BY model ORDER BY COUNT(*) DESC, model`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying model stats: %w", err)
	}
	defer rows.Close()

	var stats []ModelStat
	for rows.Next() {
		var st ModelStat
		var totalCost string
		if err := rows.Scan(&st.Model, &st.RequestCount, &st.TotalTokens, &totalCost); err != nil {
			return nil, fmt.Errorf("scanning model stat: %w", err)
		}
		if st.TotalCostUSD, err = decimal.NewFromString(totalCost); err != nil {
			return nil, fmt.Errorf("parsing model stat cost: %w", err)
		}
		if st.RequestCount > 0 {
			st.AvgCostPerRequest = st.TotalCostUSD.Div(decimal.NewFromInt(st.RequestCount))
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model stats: %w", err)
	}

	return stats, nil
}
