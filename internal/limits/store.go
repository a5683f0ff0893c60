package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no limit is configured for a provider/appType
// pair.
var ErrNotFound = errors.New("provider limit not found")

// Limit holds the configured daily and monthly USD caps for a provider and
// appType pair. A zero cap means unlimited.
type Limit struct {
	ProviderID      string          `json:"providerId"`
	AppType         string          `json:"appType"`
	DailyLimitUSD   decimal.Decimal `json:"dailyLimitUsd"`
	MonthlyLimitUSD decimal.Decimal `json:"monthlyLimitUsd"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Status is the derived, point-in-time view of cumulative spend against the
// configured caps. It is computed on demand and never persisted.
type Status struct {
	ProviderID          string          `json:"providerId"`
	AppType             string          `json:"appType"`
	DailyLimitUSD       decimal.Decimal `json:"dailyLimitUsd"`
	MonthlyLimitUSD     decimal.Decimal `json:"monthlyLimitUsd"`
	DailySpendUSD       decimal.Decimal `json:"dailySpendUsd"`
	MonthlySpendUSD     decimal.Decimal `json:"monthlySpendUsd"`
	DailyRemainingUSD   decimal.Decimal `json:"dailyRemainingUsd"`
	MonthlyRemainingUSD decimal.Decimal `json:"monthlyRemainingUsd"`
	DailyExceeded       bool            `json:"dailyExceeded"`
	MonthlyExceeded     bool            `json:"monthlyExceeded"`
	CheckedAt           int64           `json:"checkedAt"`
}

// Store provides database operations for provider spending limits.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time // injectable clock for testing
}

// NewStore creates a limit store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

const limitColumns = `provider_id, app_type, daily_limit_usd::text, monthly_limit_usd::text, updated_at`

// Set upserts the caps for the given provider/appType pair.
func (s *Store) Set(ctx context.Context, in Limit) (*Limit, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO provider_limits (provider_id, app_type, daily_limit_usd, monthly_limit_usd, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (provider_id, app_type)
		 DO UPDATE SET daily_limit_usd = EXCLUDED.daily_limit_usd,
		               monthly_limit_usd = EXCLUDED.monthly_limit_usd,
		               updated_at = now()
		 RETURNING `+limitColumns,
		in.ProviderID, in.AppType, in.DailyLimitUSD.String(), in.MonthlyLimitUSD.String(),
	)
	out, err := scanLimit(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("upserting provider limit: %w", err)
	}
	return out, nil
}

// Get retrieves the caps for the given provider/appType pair.
func (s *Store) Get(ctx context.Context, providerID, appType string) (*Limit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+limitColumns+` FROM provider_limits
		 WHERE provider_id = $1 AND app_type = $2`,
		providerID, appType,
	)
	out, err := scanLimit(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting provider limit: %w", err)
	}
	return out, nil
}

// List returns all configured limits ordered by provider and appType.
func (s *Store) List(ctx context.Context) ([]*Limit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+limitColumns+` FROM provider_limits ORDER BY provider_id, app_type`)
	if err != nil {
		return nil, fmt.Errorf("listing provider limits: %w", err)
	}
	defer rows.Close()

	var out []*Limit
	for rows.Next() {
		l, err := scanLimit(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning provider limit row: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider limit rows: %w", err)
	}
	return out, nil
}

// Delete removes the caps for the given provider/appType pair.
func (s *Store) Delete(ctx context.Context, providerID, appType string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM provider_limits WHERE provider_id = $1 AND app_type = $2`,
		providerID, appType,
	)
	if err != nil {
		return fmt.Errorf("deleting provider limit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Check computes the current limit status for the pair. A pair with no
// configured limit is reported as unlimited (zero caps) rather than an error,
// since producers call this on the hot path. Spend windows are the current
// UTC day and UTC month.
func (s *Store) Check(ctx context.Context, providerID, appType string) (*Status, error) {
	st := &Status{
		ProviderID:      providerID,
		AppType:         appType,
		DailyLimitUSD:   decimal.Zero,
		MonthlyLimitUSD: decimal.Zero,
	}

	limit, err := s.Get(ctx, providerID, appType)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if limit != nil {
		st.DailyLimitUSD = limit.DailyLimitUSD
		st.MonthlyLimitUSD = limit.MonthlyLimitUSD
	}

	now := s.now().UTC()
	dayStart, monthStart := windowStarts(now)
	st.CheckedAt = now.Unix()

	if st.DailySpendUSD, err = s.spendSince(ctx, providerID, appType, dayStart); err != nil {
		return nil, fmt.Errorf("summing daily spend: %w", err)
	}
	if st.MonthlySpendUSD, err = s.spendSince(ctx, providerID, appType, monthStart); err != nil {
		return nil, fmt.Errorf("summing monthly spend: %w", err)
	}

	st.DailyRemainingUSD, st.DailyExceeded = remaining(st.DailyLimitUSD, st.DailySpendUSD)
	st.MonthlyRemainingUSD, st.MonthlyExceeded = remaining(st.MonthlyLimitUSD, st.MonthlySpendUSD)
	return st, nil
}

func (s *Store) spendSince(ctx context.Context, providerID, appType string, since int64) (decimal.Decimal, error) {
	var spend string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_cost_usd), 0)::text
		 FROM request_logs
		 WHERE provider_id = $1 AND app_type = $2 AND created_at >= $3`,
		providerID, appType, since,
	).Scan(&spend)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(spend)
}

// remaining computes the headroom under a cap. A zero cap means unlimited:
// remaining stays zero and the cap is never exceeded.
func remaining(limit, spend decimal.Decimal) (decimal.Decimal, bool) {
	if limit.IsZero() {
		return decimal.Zero, false
	}
	rem := limit.Sub(spend)
	if rem.IsNegative() {
		rem = decimal.Zero
	}
	return rem, spend.GreaterThanOrEqual(limit)
}

// windowStarts returns the Unix-second starts of the UTC day and UTC month
// containing now.
func windowStarts(now time.Time) (dayStart, monthStart int64) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day.Unix(), month.Unix()
}

func scanLimit(scan func(dest ...any) error) (*Limit, error) {
	var l Limit
	var daily, monthly string
	if err := scan(&l.ProviderID, &l.AppType, &daily, &monthly, &l.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if l.DailyLimitUSD, err = decimal.NewFromString(daily); err != nil {
		return nil, fmt.Errorf("parsing daily limit: %w", err)
	}
	if l.MonthlyLimitUSD, err = decimal.NewFromString(monthly); err != nil {
		return nil, fmt.Errorf("parsing monthly limit: %w", err)
	}
	return &l, nil
}
