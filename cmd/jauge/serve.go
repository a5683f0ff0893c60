package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecgard/jauge/internal/api"
	"github.com/alecgard/jauge/internal/config"
	"github.com/alecgard/jauge/internal/crypto"
	"github.com/alecgard/jauge/internal/limits"
	"github.com/alecgard/jauge/internal/metering"
	"github.com/alecgard/jauge/internal/metrics"
	"github.com/alecgard/jauge/internal/pricing"
	"github.com/alecgard/jauge/internal/ratelimit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Jauge accounting server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Auth.OperatorKeyHash == "" {
		slog.Warn("no operator key configured; mutating routes are unauthenticated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	cipher, err := crypto.NewCipher(cfg.Privacy.BodyEncryptionKey)
	if err != nil {
		return err
	}
	if cipher != nil {
		slog.Info("payload snapshot encryption enabled")
	}

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	})

	meterStore := metering.NewStore(pool, cipher)
	collector := metering.NewCollector(meterStore, cfg.Metering.BatchSize, cfg.Metering.FlushInterval)
	collector.OnFlush = func(count int, duration time.Duration, err error) {
		m.ObserveFlush(count, duration, err)
		m.CollectorBufferSize.Set(float64(collector.BufferedCount()))
	}
	go collector.Start(ctx)

	pricingStore := pricing.NewStore(pool)
	priceTable := pricing.NewTable()
	if err := priceTable.Reload(ctx, pricingStore); err != nil {
		return err
	}
	slog.Info("pricing table loaded", "models", priceTable.Len())

	limitStore := limits.NewStore(pool)
	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		Logs:            meterStore,
		Stats:           meterStore,
		Pricing:         pricingStore,
		PriceTable:      priceTable,
		Limits:          limitStore,
		Collector:       collector,
		Metrics:         m,
		Limiter:         limiter,
		DBPool:          pool,
		OperatorKeyHash: cfg.Auth.OperatorKeyHash,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Final flush so buffered records survive the restart.
	collector.Stop()

	return srv.Shutdown(shutdownCtx)
}
