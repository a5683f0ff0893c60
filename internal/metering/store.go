package metering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecgard/jauge/internal/crypto"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// listColumns are the request_logs columns returned by list queries. Payload
// snapshots are excluded; detail lookups add them.
const listColumns = `request_id, provider_id, provider_name, provider_type, app_type,
	model, request_model, cost_multiplier::text,
	input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens,
	input_cost_usd::text, output_cost_usd::text, cache_read_cost_usd::text,
	cache_creation_cost_usd::text, total_cost_usd::text,
	is_streaming, latency_ms, first_token_ms, status_code, error_message, created_at`

// Store provides database operations over the request_logs table.
type Store struct {
	pool   *pgxpool.Pool
	cipher *crypto.Cipher // nil when body encryption is disabled
}

// NewStore creates a Store backed by the given connection pool. cipher may be
// nil to store payload snapshots in plaintext.
func NewStore(pool *pgxpool.Pool, cipher *crypto.Cipher) *Store {
	return &Store{pool: pool, cipher: cipher}
}

// BatchInsert writes a slice of usage records in a single multi-row INSERT.
// It is a no-op when recs is empty. Records become visible to readers
// atomically per statement; a record is never partially visible.
func (s *Store) BatchInsert(ctx context.Context, recs []UsageRecord) error {
	if len(recs) == 0 {
		return nil
	}

	const cols = 25 // columns per row
	args := make([]any, 0, len(recs)*cols)
	rows := make([]string, 0, len(recs))

	for i, rec := range recs {
		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = "$" + strconv.Itoa(base+j+1)
		}
		rows = append(rows, "("+strings.Join(ph, ", ")+")")

		reqBody, err := s.cipher.Encrypt(rec.RequestBody)
		if err != nil {
			return fmt.Errorf("encrypting request body: %w", err)
		}
		respBody, err := s.cipher.Encrypt(rec.ResponseBody)
		if err != nil {
			return fmt.Errorf("encrypting response body: %w", err)
		}

		args = append(args,
			rec.RequestID,
			rec.ProviderID,
			rec.ProviderName,
			rec.ProviderType,
			rec.AppType,
			rec.Model,
			rec.RequestModel,
			rec.CostMultiplier.String(),
			rec.InputTokens,
			rec.OutputTokens,
			rec.CacheReadTokens,
			rec.CacheCreationTokens,
			rec.InputCostUSD.String(),
			rec.OutputCostUSD.String(),
			rec.CacheReadCostUSD.String(),
			rec.CacheCreationCostUSD.String(),
			rec.TotalCostUSD.String(),
			rec.IsStreaming,
			rec.LatencyMs,
			rec.FirstTokenMs,
			rec.StatusCode,
			rec.ErrorMessage,
			reqBody,
			respBody,
			rec.CreatedAt,
		)
	}

	query := `INSERT INTO request_logs
		(request_id, provider_id, provider_name, provider_type, app_type,
		 model, request_model, cost_multiplier,
		 input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens,
		 input_cost_usd, output_cost_usd, cache_read_cost_usd,
		 cache_creation_cost_usd, total_cost_usd,
		 is_streaming, latency_ms, first_token_ms, status_code, error_message,
		 request_body, response_body, created_at)
		VALUES ` + strings.Join(rows, ", ")

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting usage records: %w", err)
	}

	return nil
}

// ListRecords returns one page of records matching the filters, ordered by
// created_at DESC with request_id DESC as a stable tie-break, plus the total
// match count before pagination. A page beyond the available range yields an
// empty page with the correct total.
func (s *Store) ListRecords(ctx context.Context, f LogFilters, page, pageSize int) (*LogPage, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	page, pageSize, err := NormalizePage(page, pageSize)
	if err != nil {
		return nil, err
	}

	where, args := buildWhereClause(f)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM request_logs`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting request logs: %w", err)
	}

	limit, offset := PageBounds(page, pageSize)
	query := `SELECT ` + listColumns + ` FROM request_logs` + where +
		` ORDER BY created_at DESC, request_id DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing request logs: %w", err)
	}
	defer rows.Close()

	data := make([]*UsageRecord, 0, pageSize)
	for rows.Next() {
		rec, err := scanRecord(rows.Scan, false)
		if err != nil {
			return nil, fmt.Errorf("scanning request log row: %w", err)
		}
		data = append(data, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating request log rows: %w", err)
	}

	return &LogPage{Data: data, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetRecord returns a single record with payload snapshots included, or
// ErrNotFound when the id is unknown.
func (s *Store) GetRecord(ctx context.Context, requestID string) (*UsageRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listColumns+`, request_body, response_body
		 FROM request_logs WHERE request_id = $1`, requestID)

	rec, err := scanRecord(row.Scan, true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting request log: %w", err)
	}

	if rec.RequestBody, err = s.cipher.Decrypt(rec.RequestBody); err != nil {
		return nil, fmt.Errorf("decrypting request body: %w", err)
	}
	if rec.ResponseBody, err = s.cipher.Decrypt(rec.ResponseBody); err != nil {
		return nil, fmt.Errorf("decrypting response body: %w", err)
	}

	return rec, nil
}

// DistinctFilterValues returns the provider and model values observed within
// the (optionally open-ended) window, for populating filter choices.
func (s *Store) DistinctFilterValues(ctx context.Context, startDate, endDate int64) (*FilterOptions, error) {
	where, args := buildWindowClause(startDate, endDate)

	opts := &FilterOptions{Providers: []ProviderOption{}, Models: []string{}}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT provider_id, provider_name FROM request_logs`+where+
			` ORDER BY provider_name, provider_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing distinct providers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ProviderOption
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scanning provider option: %w", err)
		}
		opts.Providers = append(opts.Providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider options: %w", err)
	}

	mrows, err := s.pool.Query(ctx,
		`SELECT DISTINCT model FROM request_logs`+where+` ORDER BY model`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing distinct models: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m string
		if err := mrows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scanning model option: %w", err)
		}
		opts.Models = append(opts.Models, m)
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model options: %w", err)
	}

	return opts, nil
}

// CountByRange returns the number of records inside the inclusive range.
func (s *Store) CountByRange(ctx context.Context, startDate, endDate int64) (int64, error) {
	if err := ValidateRange(startDate, endDate); err != nil {
		return 0, err
	}
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM request_logs WHERE created_at >= $1 AND created_at <= $2`,
		startDate, endDate,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting request logs by range: %w", err)
	}
	return n, nil
}

// DeleteByRange removes all records inside the inclusive range and returns
// the count actually removed. Under concurrent ingestion this may differ from
// a preceding CountByRange; the two agree only with no concurrent writers.
func (s *Store) DeleteByRange(ctx context.Context, startDate, endDate int64) (int64, error) {
	if err := ValidateRange(startDate, endDate); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM request_logs WHERE created_at >= $1 AND created_at <= $2`,
		startDate, endDate,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting request logs by range: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanRecord scans one request_logs row in listColumns order. withBodies adds
// the two trailing payload snapshot columns.
func scanRecord(scan func(dest ...any) error, withBodies bool) (*UsageRecord, error) {
	var rec UsageRecord
	var multiplier, inCost, outCost, crCost, ccCost, totalCost string

	dest := []any{
		&rec.RequestID, &rec.ProviderID, &rec.ProviderName, &rec.ProviderType, &rec.AppType,
		&rec.Model, &rec.RequestModel, &multiplier,
		&rec.InputTokens, &rec.OutputTokens, &rec.CacheReadTokens, &rec.CacheCreationTokens,
		&inCost, &outCost, &crCost, &ccCost, &totalCost,
		&rec.IsStreaming, &rec.LatencyMs, &rec.FirstTokenMs, &rec.StatusCode, &rec.ErrorMessage,
		&rec.CreatedAt,
	}
	if withBodies {
		dest = append(dest, &rec.RequestBody, &rec.ResponseBody)
	}

	if err := scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if rec.CostMultiplier, err = decimal.NewFromString(multiplier); err != nil {
		return nil, fmt.Errorf("parsing cost_multiplier: %w", err)
	}
	if rec.InputCostUSD, err = decimal.NewFromString(inCost); err != nil {
		return nil, fmt.Errorf("parsing input_cost_usd: %w", err)
	}
	if rec.OutputCostUSD, err = decimal.NewFromString(outCost); err != nil {
		return nil, fmt.Errorf("parsing output_cost_usd: %w", err)
	}
	if rec.CacheReadCostUSD, err = decimal.NewFromString(crCost); err != nil {
		return nil, fmt.Errorf("parsing cache_read_cost_usd: %w", err)
	}
	if rec.CacheCreationCostUSD, err = decimal.NewFromString(ccCost); err != nil {
		return nil, fmt.Errorf("parsing cache_creation_cost_usd: %w", err)
	}
	if rec.TotalCostUSD, err = decimal.NewFromString(totalCost); err != nil {
		return nil, fmt.Errorf("parsing total_cost_usd: %w", err)
	}

	return &rec, nil
}

// buildWhereClause constructs a WHERE clause and positional arguments from
// log filters. Supplied fields are conjoined; the returned string starts with
// " WHERE" or is empty. The success threshold mirrors IsSuccess.
func buildWhereClause(f LogFilters) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.AppType != "" {
		add("app_type = $%d", f.AppType)
	}
	if f.ProviderType != "" {
		add("provider_type = $%d", f.ProviderType)
	}
	if f.ProviderName != "" {
		add("provider_name = $%d", f.ProviderName)
	}
	if f.ProviderID != "" {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.Model != "" {
		add("model = $%d", f.Model)
	}
	if f.StatusCode != 0 {
		add("status_code = $%d", f.StatusCode)
	}
	switch f.StatusFilter {
	case StatusFilterSuccess:
		conditions = append(conditions, "status_code >= 200 AND status_code < 300")
	case StatusFilterError:
		conditions = append(conditions, "(status_code < 200 OR status_code >= 300)")
	}
	if f.StartDate != 0 {
		add("created_at >= $%d", f.StartDate)
	}
	if f.EndDate != 0 {
		add("created_at <= $%d", f.EndDate)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// buildWindowClause is buildWhereClause restricted to a time window.
func buildWindowClause(startDate, endDate int64) (string, []any) {
	return buildWhereClause(LogFilters{StartDate: startDate, EndDate: endDate})
}
