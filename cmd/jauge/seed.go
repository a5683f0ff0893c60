package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alecgard/jauge/internal/config"
	"github.com/alecgard/jauge/internal/pricing"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed default model pricing",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func rate(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Published per-million-token list prices as of mid-2025. Operators can
// adjust them through PUT /api/v1/pricing after seeding.
var defaultPricing = []pricing.ModelPricing{
	{
		ModelID:                 "claude-sonnet-4",
		DisplayName:             "Claude Sonnet 4",
		InputPerMillionUSD:      rate("3"),
		OutputPerMillionUSD:     rate("15"),
		CacheReadPerMillionUSD:  rate("0.3"),
		CacheWritePerMillionUSD: rate("3.75"),
	},
	{
		ModelID:                 "claude-opus-4",
		DisplayName:             "Claude Opus 4",
		InputPerMillionUSD:      rate("15"),
		OutputPerMillionUSD:     rate("75"),
		CacheReadPerMillionUSD:  rate("1.5"),
		CacheWritePerMillionUSD: rate("18.75"),
	},
	{
		ModelID:                 "claude-3-5-haiku",
		DisplayName:             "Claude 3.5 Haiku",
		InputPerMillionUSD:      rate("0.8"),
		OutputPerMillionUSD:     rate("4"),
		CacheReadPerMillionUSD:  rate("0.08"),
		CacheWritePerMillionUSD: rate("1"),
	},
	{
		ModelID:                 "gpt-4o",
		DisplayName:             "GPT-4o",
		InputPerMillionUSD:      rate("2.5"),
		OutputPerMillionUSD:     rate("10"),
		CacheReadPerMillionUSD:  rate("1.25"),
		CacheWritePerMillionUSD: rate("0"),
	},
	{
		ModelID:                 "gpt-4o-mini",
		DisplayName:             "GPT-4o mini",
		InputPerMillionUSD:      rate("0.15"),
		OutputPerMillionUSD:     rate("0.6"),
		CacheReadPerMillionUSD:  rate("0.075"),
		CacheWritePerMillionUSD: rate("0"),
	},
	{
		ModelID:                 "gemini-2.5-pro",
		DisplayName:             "Gemini 2.5 Pro",
		InputPerMillionUSD:      rate("1.25"),
		OutputPerMillionUSD:     rate("10"),
		CacheReadPerMillionUSD:  rate("0.31"),
		CacheWritePerMillionUSD: rate("0"),
	},
	{
		ModelID:                 "gemini-2.5-flash",
		DisplayName:             "Gemini 2.5 Flash",
		InputPerMillionUSD:      rate("0.3"),
		OutputPerMillionUSD:     rate("2.5"),
		CacheReadPerMillionUSD:  rate("0.075"),
		CacheWritePerMillionUSD: rate("0"),
	},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := pricing.NewStore(pool)

	// Check if seed has already run.
	existing, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("checking existing pricing: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("model pricing already exists, skipping seed")
		return nil
	}

	for _, p := range defaultPricing {
		saved, err := store.Upsert(ctx, p)
		if err != nil {
			return fmt.Errorf("seeding pricing for %q: %w", p.ModelID, err)
		}
		slog.Info("seeded model pricing", "model", saved.ModelID,
			"input_per_mtok", saved.InputPerMillionUSD.String(),
			"output_per_mtok", saved.OutputPerMillionUSD.String())
	}

	fmt.Printf("\n=== Pricing Seeded ===\n")
	fmt.Printf("Models: %d\n", len(defaultPricing))
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl http://localhost:8080/api/v1/pricing\n")

	return nil
}
