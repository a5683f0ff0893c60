package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alecgard/jauge/internal/limits"
	"github.com/alecgard/jauge/internal/metering"
	"github.com/alecgard/jauge/internal/pricing"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Stub stores
// ---------------------------------------------------------------------------

type stubLogStore struct {
	page    *metering.LogPage
	record  *metering.UsageRecord
	options *metering.FilterOptions
	count   int64
	deleted int64
	err     error

	gotFilters  metering.LogFilters
	gotPage     int
	gotPageSize int
	gotStart    int64
	gotEnd      int64
}

func (s *stubLogStore) ListRecords(_ context.Context, f metering.LogFilters, page, pageSize int) (*metering.LogPage, error) {
	s.gotFilters, s.gotPage, s.gotPageSize = f, page, pageSize
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func (s *stubLogStore) GetRecord(_ context.Context, requestID string) (*metering.UsageRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.record == nil || s.record.RequestID != requestID {
		return nil, metering.ErrNotFound
	}
	return s.record, nil
}

func (s *stubLogStore) DistinctFilterValues(_ context.Context, start, end int64) (*metering.FilterOptions, error) {
	s.gotStart, s.gotEnd = start, end
	return s.options, s.err
}

func (s *stubLogStore) CountByRange(_ context.Context, start, end int64) (int64, error) {
	s.gotStart, s.gotEnd = start, end
	return s.count, s.err
}

func (s *stubLogStore) DeleteByRange(_ context.Context, start, end int64) (int64, error) {
	s.gotStart, s.gotEnd = start, end
	return s.deleted, s.err
}

type stubStatsStore struct {
	summary   *metering.UsageSummary
	trends    []metering.DailyStat
	providers []metering.ProviderStat
	models    []metering.ModelStat
	err       error

	gotQuery metering.AggregateQuery
}

func (s *stubStatsStore) Summary(_ context.Context, q metering.AggregateQuery) (*metering.UsageSummary, error) {
	s.gotQuery = q
	return s.summary, s.err
}

func (s *stubStatsStore) DailyTrends(_ context.Context, q metering.AggregateQuery) ([]metering.DailyStat, error) {
	s.gotQuery = q
	return s.trends, s.err
}

func (s *stubStatsStore) ProviderStats(_ context.Context, q metering.AggregateQuery) ([]metering.ProviderStat, error) {
	s.gotQuery = q
	return s.providers, s.err
}

func (s *stubStatsStore) ModelStats(_ context.Context, q metering.AggregateQuery) ([]metering.ModelStat, error) {
	s.gotQuery = q
	return s.models, s.err
}

type stubPricingStore struct {
	entries []*pricing.ModelPricing
	err     error

	upserted *pricing.ModelPricing
	deleted  string
}

func (s *stubPricingStore) Upsert(_ context.Context, p pricing.ModelPricing) (*pricing.ModelPricing, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.upserted = &p
	return &p, nil
}

func (s *stubPricingStore) List(_ context.Context) ([]*pricing.ModelPricing, error) {
	return s.entries, s.err
}

func (s *stubPricingStore) Delete(_ context.Context, modelID string) error {
	s.deleted = modelID
	return s.err
}

type stubLimitStore struct {
	limit  *limits.Limit
	list   []*limits.Limit
	status *limits.Status
	err    error
}

func (s *stubLimitStore) Set(_ context.Context, in limits.Limit) (*limits.Limit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &in, nil
}

func (s *stubLimitStore) Get(_ context.Context, _, _ string) (*limits.Limit, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.limit == nil {
		return nil, limits.ErrNotFound
	}
	return s.limit, nil
}

func (s *stubLimitStore) List(_ context.Context) ([]*limits.Limit, error) {
	return s.list, s.err
}

func (s *stubLimitStore) Delete(_ context.Context, _, _ string) error {
	return s.err
}

func (s *stubLimitStore) Check(_ context.Context, _, _ string) (*limits.Status, error) {
	return s.status, s.err
}

type stubRecorder struct {
	records []metering.UsageRecord
}

func (s *stubRecorder) Record(rec metering.UsageRecord) {
	s.records = append(s.records, rec)
}

// testRouter builds a router with the given stubs and no auth/rate limiting.
func testRouter(logs LogStore, stats StatsStore, prices PricingStore, table Pricer, caps LimitStore, rec Recorder) http.Handler {
	return NewRouter(RouterDeps{
		Logs:           logs,
		Stats:          stats,
		Pricing:        prices,
		PriceTable:     table,
		Limits:         caps,
		Collector:      rec,
		AllowedOrigins: []string{"*"},
	})
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Health check
// ---------------------------------------------------------------------------

func TestHealthCheck_OK(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	rec := doRequest(t, handler, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", body["status"])
	}
	if body["database"] != "connected" {
		t.Errorf("expected database=connected, got %q", body["database"])
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthCheck_DBDown(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}, DBPool: failingPinger{}})

	rec := doRequest(t, handler, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["database"] != "unreachable" {
		t.Errorf("expected database=unreachable, got %q", body["database"])
	}
}

// ---------------------------------------------------------------------------
// Logs handlers
// ---------------------------------------------------------------------------

func TestListLogs_ParsesFiltersAndPagination(t *testing.T) {
	logs := &stubLogStore{page: &metering.LogPage{
		Data:     []*metering.UsageRecord{},
		Total:    0,
		Page:     2,
		PageSize: 25,
	}}
	handler := testRouter(logs, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet,
		"/api/v1/logs?provider_id=p1&model=m1&status=error&status_code=502&start=1000&end=2000&page=2&page_size=25", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	want := metering.LogFilters{
		ProviderID:   "p1",
		Model:        "m1",
		StatusFilter: "error",
		StatusCode:   502,
		StartDate:    1000,
		EndDate:      2000,
	}
	if logs.gotFilters != want {
		t.Errorf("filters: got %+v, want %+v", logs.gotFilters, want)
	}
	if logs.gotPage != 2 || logs.gotPageSize != 25 {
		t.Errorf("pagination: got page=%d size=%d", logs.gotPage, logs.gotPageSize)
	}
}

func TestListLogs_ValidationErrorIsFieldNamed400(t *testing.T) {
	logs := &stubLogStore{err: &metering.ValidationError{Field: "pageSize", Reason: "must be at most 500"}}
	handler := testRouter(logs, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/logs?page_size=9999", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Error.Field != "pageSize" {
		t.Errorf("expected field=pageSize, got %q", envelope.Error.Field)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Errorf("expected code=validation_failed, got %q", envelope.Error.Code)
	}
}

func TestListLogs_BadDateParam(t *testing.T) {
	handler := testRouter(&stubLogStore{}, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/logs?start=not-a-date", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetLog_Found(t *testing.T) {
	ftm := int64(200)
	logs := &stubLogStore{record: &metering.UsageRecord{
		RequestID:    "req-1",
		ProviderID:   "p1",
		AppType:      "claude",
		Model:        "m1",
		InputTokens:  900,
		OutputTokens: 100,
		IsStreaming:  true,
		LatencyMs:    2000,
		FirstTokenMs: &ftm,
		StatusCode:   200,
		CreatedAt:    1700000000,
	}}
	handler := testRouter(logs, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/logs/req-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		RequestID string `json:"requestId"`
		Derived   struct {
			Success            bool     `json:"success"`
			TimePerOutputToken *float64 `json:"timePerOutputToken"`
		} `json:"derived"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.RequestID != "req-1" {
		t.Errorf("expected requestId=req-1, got %q", body.RequestID)
	}
	if !body.Derived.Success {
		t.Error("expected derived.success=true for status 200")
	}
	if body.Derived.TimePerOutputToken == nil || *body.Derived.TimePerOutputToken != 18.0 {
		t.Errorf("expected timePerOutputToken=18.0, got %v", body.Derived.TimePerOutputToken)
	}
}

func TestGetLog_NotFound(t *testing.T) {
	handler := testRouter(&stubLogStore{}, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/logs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var envelope errorEnvelope
	_ = json.NewDecoder(rec.Body).Decode(&envelope)
	if envelope.Error.Code != "not_found" {
		t.Errorf("expected code=not_found, got %q", envelope.Error.Code)
	}
}

func TestGetLog_PrettyPrintsValidJSONOnly(t *testing.T) {
	logs := &stubLogStore{record: &metering.UsageRecord{
		RequestID:    "req-2",
		StatusCode:   200,
		RequestBody:  `{"a":1}`,
		ResponseBody: "data: not json",
	}}
	handler := testRouter(logs, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/logs/req-2?pretty=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		RequestBody  string `json:"requestBody"`
		ResponseBody string `json:"responseBody"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.RequestBody != "{\n  \"a\": 1\n}" {
		t.Errorf("expected indented request body, got %q", body.RequestBody)
	}
	if body.ResponseBody != "data: not json" {
		t.Errorf("non-JSON body should pass through verbatim, got %q", body.ResponseBody)
	}
}

func TestCountLogs(t *testing.T) {
	logs := &stubLogStore{count: 42}
	handler := testRouter(logs, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/logs/count?start=100&end=200", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if logs.gotStart != 100 || logs.gotEnd != 200 {
		t.Errorf("range: got [%d,%d], want [100,200]", logs.gotStart, logs.gotEnd)
	}

	var body map[string]int64
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["count"] != 42 {
		t.Errorf("expected count=42, got %d", body["count"])
	}
}

func TestDeleteLogs_RequiresRange(t *testing.T) {
	handler := testRouter(&stubLogStore{}, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/logs", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a range, got %d", rec.Code)
	}
}

func TestDeleteLogs_ReturnsDeletedCount(t *testing.T) {
	logs := &stubLogStore{deleted: 7}
	handler := testRouter(logs, nil, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/logs?start=100&end=200", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]int64
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["deleted"] != 7 {
		t.Errorf("expected deleted=7, got %d", body["deleted"])
	}
}

// ---------------------------------------------------------------------------
// Stats handlers
// ---------------------------------------------------------------------------

func TestGetSummary(t *testing.T) {
	stats := &stubStatsStore{summary: &metering.UsageSummary{
		TotalRequests: 10,
		TotalCostUSD:  decimal.RequireFromString("0.0105"),
		SuccessRate:   0.9,
	}}
	handler := testRouter(nil, stats, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet,
		"/api/v1/usage/summary?start=1000&end=2000&provider_id=p1&app_type=claude", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	want := metering.AggregateQuery{StartDate: 1000, EndDate: 2000, ProviderID: "p1", AppType: "claude"}
	if stats.gotQuery != want {
		t.Errorf("query: got %+v, want %+v", stats.gotQuery, want)
	}

	var body struct {
		TotalRequests int64  `json:"totalRequests"`
		TotalCostUSD  string `json:"totalCostUsd"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.TotalCostUSD != "0.0105" {
		t.Errorf("cost must travel as a decimal string, got %q", body.TotalCostUSD)
	}
}

func TestGetTrends_RequiresWindow(t *testing.T) {
	handler := testRouter(nil, &stubStatsStore{}, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/usage/trends?start=1000", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without both bounds, got %d", rec.Code)
	}
}

func TestGetTrends_AcceptsDateParams(t *testing.T) {
	stats := &stubStatsStore{trends: []metering.DailyStat{}}
	handler := testRouter(nil, stats, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet,
		"/api/v1/usage/trends?start=2024-01-01&end=2024-01-03", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stats.gotQuery.StartDate != 1704067200 {
		t.Errorf("start: got %d, want 1704067200", stats.gotQuery.StartDate)
	}
}

func TestGetProviderStats_EmptyIsArray(t *testing.T) {
	handler := testRouter(nil, &stubStatsStore{}, nil, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/usage/providers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Pricing handlers
// ---------------------------------------------------------------------------

func TestUpsertPricing_SyncsTable(t *testing.T) {
	store := &stubPricingStore{}
	table := pricing.NewTable()
	handler := testRouter(nil, nil, store, table, nil, nil)

	body := `{"displayName":"Sonnet","inputPerMillionUsd":"3","outputPerMillionUsd":"15","cacheReadPerMillionUsd":"0.3","cacheWritePerMillionUsd":"3.75"}`
	rec := doRequest(t, handler, http.MethodPut, "/api/v1/pricing/sonnet-4", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if store.upserted == nil || store.upserted.ModelID != "sonnet-4" {
		t.Fatalf("expected upsert for sonnet-4, got %+v", store.upserted)
	}
	if _, ok := table.Get("sonnet-4"); !ok {
		t.Error("expected in-memory table to see the new entry")
	}
}

func TestUpsertPricing_RejectsNegativeRates(t *testing.T) {
	handler := testRouter(nil, nil, &stubPricingStore{}, nil, nil, nil)

	body := `{"inputPerMillionUsd":"-1","outputPerMillionUsd":"15"}`
	rec := doRequest(t, handler, http.MethodPut, "/api/v1/pricing/sonnet-4", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeletePricing_NotFound(t *testing.T) {
	handler := testRouter(nil, nil, &stubPricingStore{err: pricing.ErrNotFound}, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/pricing/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeletePricing_SyncsTable(t *testing.T) {
	table := pricing.NewTable()
	table.Put(pricing.ModelPricing{ModelID: "sonnet-4"})
	handler := testRouter(nil, nil, &stubPricingStore{}, table, nil, nil)

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/pricing/sonnet-4", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := table.Get("sonnet-4"); ok {
		t.Error("expected entry removed from in-memory table")
	}
}

// ---------------------------------------------------------------------------
// Limits handlers
// ---------------------------------------------------------------------------

func TestSetLimit(t *testing.T) {
	handler := testRouter(nil, nil, nil, nil, &stubLimitStore{}, nil)

	body := `{"dailyLimitUsd":"10","monthlyLimitUsd":"100"}`
	rec := doRequest(t, handler, http.MethodPut, "/api/v1/limits/p1/claude", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var saved limits.Limit
	if err := json.NewDecoder(rec.Body).Decode(&saved); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if saved.ProviderID != "p1" || saved.AppType != "claude" {
		t.Errorf("expected key from path params, got %+v", saved)
	}
	if saved.DailyLimitUSD.String() != "10" {
		t.Errorf("expected dailyLimitUsd=10, got %s", saved.DailyLimitUSD)
	}
}

func TestGetLimit_NotFound(t *testing.T) {
	handler := testRouter(nil, nil, nil, nil, &stubLimitStore{}, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/limits/p1/claude", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetLimitStatus(t *testing.T) {
	caps := &stubLimitStore{status: &limits.Status{
		ProviderID:        "p1",
		AppType:           "claude",
		DailyLimitUSD:     decimal.RequireFromString("10"),
		DailySpendUSD:     decimal.RequireFromString("2.5"),
		DailyRemainingUSD: decimal.RequireFromString("7.5"),
	}}
	handler := testRouter(nil, nil, nil, nil, caps, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/limits/p1/claude/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		DailyRemainingUSD string `json:"dailyRemainingUsd"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.DailyRemainingUSD != "7.5" {
		t.Errorf("expected dailyRemainingUsd=7.5, got %q", body.DailyRemainingUSD)
	}
}

// ---------------------------------------------------------------------------
// Ingest handler
// ---------------------------------------------------------------------------

func validIngestBody() string {
	return `{
		"providerId": "p1",
		"providerName": "Anthropic",
		"appType": "claude",
		"model": "sonnet-4",
		"inputTokens": 1000,
		"outputTokens": 500,
		"isStreaming": false,
		"latencyMs": 1200,
		"statusCode": 200
	}`
}

func TestCreateRecord_AssignsIDAndPrices(t *testing.T) {
	recorder := &stubRecorder{}
	table := pricing.NewTable()
	table.Put(pricing.ModelPricing{
		ModelID:             "sonnet-4",
		InputPerMillionUSD:  decimal.RequireFromString("3"),
		OutputPerMillionUSD: decimal.RequireFromString("15"),
	})
	handler := testRouter(nil, nil, nil, table, nil, recorder)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/records", validIngestBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(recorder.records) != 1 {
		t.Fatalf("expected 1 buffered record, got %d", len(recorder.records))
	}
	got := recorder.records[0]
	if got.RequestID == "" {
		t.Error("expected server-assigned requestId")
	}
	if got.CreatedAt == 0 {
		t.Error("expected server-assigned createdAt")
	}
	if got.TotalCostUSD.StringFixed(6) != "0.010500" {
		t.Errorf("expected totalCostUsd=0.010500, got %s", got.TotalCostUSD)
	}

	var body struct {
		RequestID    string `json:"requestId"`
		TotalCostUSD string `json:"totalCostUsd"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.RequestID != got.RequestID {
		t.Errorf("response requestId %q != buffered %q", body.RequestID, got.RequestID)
	}
}

func TestCreateRecord_PricingMissStillAccepted(t *testing.T) {
	recorder := &stubRecorder{}
	handler := testRouter(nil, nil, nil, pricing.NewTable(), nil, recorder)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/records", validIngestBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on pricing miss, got %d", rec.Code)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("expected record buffered despite pricing miss")
	}
	if !recorder.records[0].TotalCostUSD.IsZero() {
		t.Errorf("expected zero cost on miss, got %s", recorder.records[0].TotalCostUSD)
	}
}

func TestCreateRecord_ErrorRecordsAccepted(t *testing.T) {
	recorder := &stubRecorder{}
	handler := testRouter(nil, nil, nil, pricing.NewTable(), nil, recorder)

	body := `{
		"providerId": "p1",
		"appType": "claude",
		"requestModel": "sonnet-4",
		"latencyMs": 90,
		"statusCode": 529,
		"errorMessage": "overloaded"
	}`
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/records", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for an error record, got %d: %s", rec.Code, rec.Body.String())
	}
	if recorder.records[0].Model != "sonnet-4" {
		t.Errorf("expected model fallback to requestModel, got %q", recorder.records[0].Model)
	}
}

func TestCreateRecord_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    string // JSON body
		wantField string
	}{
		{
			name:      "missing providerId",
			mutate:    `{"appType":"claude","model":"m","latencyMs":1,"statusCode":200}`,
			wantField: "providerId",
		},
		{
			name:      "missing model",
			mutate:    `{"providerId":"p1","appType":"claude","latencyMs":1,"statusCode":200}`,
			wantField: "model",
		},
		{
			name:      "negative tokens",
			mutate:    `{"providerId":"p1","appType":"claude","model":"m","inputTokens":-1,"latencyMs":1,"statusCode":200}`,
			wantField: "inputTokens",
		},
		{
			name:      "firstTokenMs beyond latency",
			mutate:    `{"providerId":"p1","appType":"claude","model":"m","isStreaming":true,"latencyMs":100,"firstTokenMs":200,"statusCode":200}`,
			wantField: "firstTokenMs",
		},
		{
			name:      "firstTokenMs without streaming",
			mutate:    `{"providerId":"p1","appType":"claude","model":"m","latencyMs":100,"firstTokenMs":50,"statusCode":200}`,
			wantField: "firstTokenMs",
		},
		{
			name:      "bad status code",
			mutate:    `{"providerId":"p1","appType":"claude","model":"m","latencyMs":1,"statusCode":99}`,
			wantField: "statusCode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &stubRecorder{}
			handler := testRouter(nil, nil, nil, nil, nil, recorder)

			rec := doRequest(t, handler, http.MethodPost, "/api/v1/records", tt.mutate)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}

			var envelope errorEnvelope
			if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if envelope.Error.Field != tt.wantField {
				t.Errorf("expected field=%s, got %q", tt.wantField, envelope.Error.Field)
			}
			if len(recorder.records) != 0 {
				t.Error("rejected record must not reach the buffer")
			}
		})
	}
}

func TestCreateRecord_InvalidJSON(t *testing.T) {
	handler := testRouter(nil, nil, nil, nil, nil, &stubRecorder{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/records", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Operator auth wiring
// ---------------------------------------------------------------------------

func TestMutatingRoutesRequireOperatorKey(t *testing.T) {
	// Key hash of "jauge_test" is irrelevant; any non-empty hash locks routes.
	handler := NewRouter(RouterDeps{
		Logs:            &stubLogStore{},
		Collector:       &stubRecorder{},
		Pricing:         &stubPricingStore{},
		Limits:          &stubLimitStore{},
		OperatorKeyHash: "deadbeef",
		AllowedOrigins:  []string{"*"},
	})

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/records"},
		{http.MethodDelete, "/api/v1/logs?start=1&end=2"},
		{http.MethodPut, "/api/v1/pricing/m"},
		{http.MethodDelete, "/api/v1/pricing/m"},
		{http.MethodPut, "/api/v1/limits/p/a"},
		{http.MethodDelete, "/api/v1/limits/p/a"},
	}

	for _, tgt := range targets {
		rec := doRequest(t, handler, tgt.method, tgt.path, "{}")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without key, got %d", tgt.method, tgt.path, rec.Code)
		}
	}
}

func TestQueryRoutesDoNotRequireOperatorKey(t *testing.T) {
	handler := NewRouter(RouterDeps{
		Logs:            &stubLogStore{page: &metering.LogPage{Data: []*metering.UsageRecord{}}},
		OperatorKeyHash: "deadbeef",
		AllowedOrigins:  []string{"*"},
	})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/logs", "")
	if rec.Code != http.StatusOK {
		t.Errorf("query route should not need the operator key, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Middleware via router
// ---------------------------------------------------------------------------

func TestRouter_SecureHeadersAndRequestID(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	rec := doRequest(t, handler, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options: nosniff on router responses")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID to be set on router responses")
	}
}

func TestRouter_CORSApplied(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"https://dash.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("expected Access-Control-Allow-Origin echo, got %q", got)
	}
}

func TestRouter_NotFound(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	rec := doRequest(t, handler, http.MethodGet, "/nonexistent-path", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Param parsing helpers
// ---------------------------------------------------------------------------

func TestParseTimeParam(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "unix seconds", input: "1704067200", want: 1704067200},
		{name: "date only", input: "2024-01-01", want: 1704067200},
		{name: "RFC3339", input: "2024-01-01T00:00:00Z", want: 1704067200},
		{name: "negative", input: "-5", wantErr: true},
		{name: "garbage", input: "not-a-date", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimeParam(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "object", input: `{"a":1}`, want: "{\n  \"a\": 1\n}"},
		{name: "not json", input: "hello", want: "hello"},
		{name: "truncated", input: `{"a":`, want: `{"a":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prettyJSON(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "not_found", "resource not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Errorf("expected code=not_found, got %q", envelope.Error.Code)
	}
}

func TestReadJSON_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))

	var result map[string]interface{}
	if err := readJSON(req, &result); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
