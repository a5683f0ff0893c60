package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alecgard/jauge/internal/metering"
)

// parseTimeParam parses a time query param as Unix seconds, RFC3339, or
// YYYY-MM-DD (interpreted as UTC midnight). Empty means "unset" (zero).
func parseTimeParam(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative timestamp %d", n)
		}
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("unrecognized time %q", s)
	}
	return t.Unix(), nil
}

// parseWindow extracts the start/end query params of a time window.
func parseWindow(r *http.Request) (start, end int64, err error) {
	if start, err = parseTimeParam(r.URL.Query().Get("start")); err != nil {
		return 0, 0, fmt.Errorf("invalid 'start': %w", err)
	}
	if end, err = parseTimeParam(r.URL.Query().Get("end")); err != nil {
		return 0, 0, fmt.Errorf("invalid 'end': %w", err)
	}
	return start, end, nil
}

// parseAggregateQuery builds an AggregateQuery from the window plus the
// optional provider_id/app_type dimensions.
func parseAggregateQuery(r *http.Request) (metering.AggregateQuery, error) {
	start, end, err := parseWindow(r)
	if err != nil {
		return metering.AggregateQuery{}, err
	}
	return metering.AggregateQuery{
		StartDate:  start,
		EndDate:    end,
		ProviderID: r.URL.Query().Get("provider_id"),
		AppType:    r.URL.Query().Get("app_type"),
	}, nil
}

// parseLogFilters builds LogFilters from query params. Unknown params are
// ignored; supplied filters conjoin.
func parseLogFilters(r *http.Request) (metering.LogFilters, error) {
	q := r.URL.Query()
	f := metering.LogFilters{
		AppType:      q.Get("app_type"),
		ProviderType: q.Get("provider_type"),
		ProviderName: q.Get("provider_name"),
		ProviderID:   q.Get("provider_id"),
		Model:        q.Get("model"),
		StatusFilter: q.Get("status"),
	}

	if sc := q.Get("status_code"); sc != "" {
		code, err := strconv.Atoi(sc)
		if err != nil {
			return f, fmt.Errorf("invalid 'status_code': %q", sc)
		}
		f.StatusCode = code
	}

	start, end, err := parseWindow(r)
	if err != nil {
		return f, err
	}
	f.StartDate = start
	f.EndDate = end
	return f, nil
}

// parsePagination extracts page/page_size. Zero values defer to the engine's
// defaults; bounds are enforced by the store.
func parsePagination(r *http.Request) (page, pageSize int, err error) {
	q := r.URL.Query()
	if p := q.Get("page"); p != "" {
		if page, err = strconv.Atoi(p); err != nil {
			return 0, 0, fmt.Errorf("invalid 'page': %q", p)
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if pageSize, err = strconv.Atoi(ps); err != nil {
			return 0, 0, fmt.Errorf("invalid 'page_size': %q", ps)
		}
	}
	return page, pageSize, nil
}
