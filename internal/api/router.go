package api

import (
	"context"
	"net/http"

	"github.com/alecgard/jauge/internal/auth"
	"github.com/alecgard/jauge/internal/limits"
	"github.com/alecgard/jauge/internal/metering"
	"github.com/alecgard/jauge/internal/metrics"
	"github.com/alecgard/jauge/internal/pricing"
	"github.com/alecgard/jauge/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LogStore is the subset of the metering store used by log queries and
// retention deletes.
type LogStore interface {
	ListRecords(ctx context.Context, f metering.LogFilters, page, pageSize int) (*metering.LogPage, error)
	GetRecord(ctx context.Context, requestID string) (*metering.UsageRecord, error)
	DistinctFilterValues(ctx context.Context, startDate, endDate int64) (*metering.FilterOptions, error)
	CountByRange(ctx context.Context, startDate, endDate int64) (int64, error)
	DeleteByRange(ctx context.Context, startDate, endDate int64) (int64, error)
}

// StatsStore is the subset of the metering store used by aggregation queries.
type StatsStore interface {
	Summary(ctx context.Context, q metering.AggregateQuery) (*metering.UsageSummary, error)
	DailyTrends(ctx context.Context, q metering.AggregateQuery) ([]metering.DailyStat, error)
	ProviderStats(ctx context.Context, q metering.AggregateQuery) ([]metering.ProviderStat, error)
	ModelStats(ctx context.Context, q metering.AggregateQuery) ([]metering.ModelStat, error)
}

// PricingStore persists model pricing entries.
type PricingStore interface {
	Upsert(ctx context.Context, p pricing.ModelPricing) (*pricing.ModelPricing, error)
	List(ctx context.Context) ([]*pricing.ModelPricing, error)
	Delete(ctx context.Context, modelID string) error
}

// Pricer is the in-memory pricing snapshot consulted at ingestion and kept in
// sync with pricing mutations.
type Pricer interface {
	Price(rec *metering.UsageRecord) bool
	Put(p pricing.ModelPricing)
	Remove(modelID string)
}

// LimitStore manages provider spending caps and derives limit status.
type LimitStore interface {
	Set(ctx context.Context, in limits.Limit) (*limits.Limit, error)
	Get(ctx context.Context, providerID, appType string) (*limits.Limit, error)
	List(ctx context.Context) ([]*limits.Limit, error)
	Delete(ctx context.Context, providerID, appType string) error
	Check(ctx context.Context, providerID, appType string) (*limits.Status, error)
}

// Recorder buffers accepted usage records for asynchronous persistence.
type Recorder interface {
	Record(rec metering.UsageRecord)
}

// Pinger reports storage connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Logs            LogStore
	Stats           StatsStore
	Pricing         PricingStore
	PriceTable      Pricer
	Limits          LimitStore
	Collector       Recorder
	Metrics         *metrics.Metrics
	Limiter         *ratelimit.Limiter
	DBPool          Pinger
	OperatorKeyHash string
	AllowedOrigins  []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(slogRequestLogger)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Handlers.
	logs := newLogsHandler(deps.Logs, deps.Metrics)
	stats := newStatsHandler(deps.Stats)
	prices := newPricingHandler(deps.Pricing, deps.PriceTable)
	caps := newLimitsHandler(deps.Limits)
	ingest := newIngestHandler(deps.Collector, deps.PriceTable, deps.Metrics)

	// Health check.
	r.Get("/health", healthHandler(deps.DBPool))

	// Observability endpoints.
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	// Query routes (rate limited per client IP).
	r.Group(func(qr chi.Router) {
		if deps.Limiter != nil {
			var onReject []func()
			if deps.Metrics != nil {
				onReject = append(onReject, deps.Metrics.IncRateLimitRejection)
			}
			qr.Use(ratelimit.Middleware(deps.Limiter, onReject...))
		}

		qr.Get("/api/v1/logs", logs.ListLogs)
		qr.Get("/api/v1/logs/filters", logs.GetFilterOptions)
		qr.Get("/api/v1/logs/count", logs.CountLogs)
		qr.Get("/api/v1/logs/{requestID}", logs.GetLog)

		qr.Get("/api/v1/usage/summary", stats.GetSummary)
		qr.Get("/api/v1/usage/trends", stats.GetTrends)
		qr.Get("/api/v1/usage/providers", stats.GetProviderStats)
		qr.Get("/api/v1/usage/models", stats.GetModelStats)

		qr.Get("/api/v1/pricing", prices.ListPricing)

		qr.Get("/api/v1/limits", caps.ListLimits)
		qr.Get("/api/v1/limits/{providerID}/{appType}", caps.GetLimit)
		qr.Get("/api/v1/limits/{providerID}/{appType}/status", caps.GetStatus)
	})

	// Mutating and ingest routes (require the operator key).
	r.Group(func(mr chi.Router) {
		mr.Use(auth.OperatorAuthMiddleware(deps.OperatorKeyHash))

		mr.Post("/api/v1/records", ingest.CreateRecord)
		mr.Delete("/api/v1/logs", logs.DeleteLogs)

		mr.Put("/api/v1/pricing/{modelID}", prices.UpsertPricing)
		mr.Delete("/api/v1/pricing/{modelID}", prices.DeletePricing)

		mr.Put("/api/v1/limits/{providerID}/{appType}", caps.SetLimit)
		mr.Delete("/api/v1/limits/{providerID}/{appType}", caps.DeleteLimit)
	})

	return r
}

// healthHandler reports liveness plus storage connectivity. A nil pool (tests,
// partial boot) is reported as connected so the route stays useful without a
// database.
func healthHandler(pool Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overall, dbStatus := "ok", "connected"
		status := http.StatusOK
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				overall, dbStatus = "degraded", "unreachable"
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, map[string]string{
			"status":   overall,
			"database": dbStatus,
		})
	}
}
