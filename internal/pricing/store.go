package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no pricing entry exists for a model id.
var ErrNotFound = errors.New("model pricing not found")

const pricingColumns = `model_id, display_name,
	input_per_million::text, output_per_million::text,
	cache_read_per_million::text, cache_write_per_million::text, updated_at`

// Store provides database operations over the model_pricing table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a pricing store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert inserts or replaces the pricing entry for p.ModelID.
func (s *Store) Upsert(ctx context.Context, p ModelPricing) (*ModelPricing, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO model_pricing
		 (model_id, display_name, input_per_million, output_per_million,
		  cache_read_per_million, cache_write_per_million, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (model_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   input_per_million = EXCLUDED.input_per_million,
		   output_per_million = EXCLUDED.output_per_million,
		   cache_read_per_million = EXCLUDED.cache_read_per_million,
		   cache_write_per_million = EXCLUDED.cache_write_per_million,
		   updated_at = now()
		 RETURNING `+pricingColumns,
		p.ModelID, p.DisplayName,
		p.InputPerMillionUSD.String(), p.OutputPerMillionUSD.String(),
		p.CacheReadPerMillionUSD.String(), p.CacheWritePerMillionUSD.String(),
	)
	out, err := scanPricing(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("upserting model pricing: %w", err)
	}
	return out, nil
}

// Get returns the pricing entry for modelID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, modelID string) (*ModelPricing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pricingColumns+` FROM model_pricing WHERE model_id = $1`, modelID)
	out, err := scanPricing(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting model pricing: %w", err)
	}
	return out, nil
}

// List returns all pricing entries ordered by model id.
func (s *Store) List(ctx context.Context) ([]*ModelPricing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pricingColumns+` FROM model_pricing ORDER BY model_id`)
	if err != nil {
		return nil, fmt.Errorf("listing model pricing: %w", err)
	}
	defer rows.Close()

	var entries []*ModelPricing
	for rows.Next() {
		p, err := scanPricing(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning model pricing row: %w", err)
		}
		entries = append(entries, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model pricing rows: %w", err)
	}
	return entries, nil
}

// Delete removes the pricing entry for modelID. Already-priced historical
// records keep their cost fields. Returns ErrNotFound when no entry exists.
func (s *Store) Delete(ctx context.Context, modelID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM model_pricing WHERE model_id = $1`, modelID)
	if err != nil {
		return fmt.Errorf("deleting model pricing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPricing(scan func(dest ...any) error) (*ModelPricing, error) {
	var p ModelPricing
	var in, out, cr, cw string
	if err := scan(&p.ModelID, &p.DisplayName, &in, &out, &cr, &cw, &p.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.InputPerMillionUSD, err = decimal.NewFromString(in); err != nil {
		return nil, fmt.Errorf("parsing input rate: %w", err)
	}
	if p.OutputPerMillionUSD, err = decimal.NewFromString(out); err != nil {
		return nil, fmt.Errorf("parsing output rate: %w", err)
	}
	if p.CacheReadPerMillionUSD, err = decimal.NewFromString(cr); err != nil {
		return nil, fmt.Errorf("parsing cache read rate: %w", err)
	}
	if p.CacheWritePerMillionUSD, err = decimal.NewFromString(cw); err != nil {
		return nil, fmt.Errorf("parsing cache write rate: %w", err)
	}
	return &p, nil
}
