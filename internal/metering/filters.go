package metering

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record lookup misses. Callers surface it as
// an absent result, not a fault.
var ErrNotFound = errors.New("record not found")

// Pagination bounds. MaxPageSize is enforced here in the engine, not just by
// clients, so a single query can never pull an unbounded result set.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
	// MaxPage bounds the page index so MaxPage*MaxPageSize stays far inside
	// int range; an unbounded page would overflow the OFFSET computation.
	MaxPage = 1_000_000
)

// StatusFilter values accepted by LogFilters.StatusFilter.
const (
	StatusFilterSuccess = "success"
	StatusFilterError   = "error"
)

// ValidationError rejects a malformed query and names the field at fault.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks a filter set for internal consistency.
func (f *LogFilters) Validate() error {
	if f.StartDate != 0 && f.EndDate != 0 && f.StartDate > f.EndDate {
		return &ValidationError{Field: "startDate", Reason: "startDate is after endDate"}
	}
	if f.StartDate < 0 {
		return &ValidationError{Field: "startDate", Reason: "must not be negative"}
	}
	if f.EndDate < 0 {
		return &ValidationError{Field: "endDate", Reason: "must not be negative"}
	}
	if f.StatusCode != 0 && (f.StatusCode < 100 || f.StatusCode > 599) {
		return &ValidationError{Field: "statusCode", Reason: "must be between 100 and 599"}
	}
	switch f.StatusFilter {
	case "", StatusFilterSuccess, StatusFilterError:
	default:
		return &ValidationError{Field: "statusFilter", Reason: `must be "success" or "error"`}
	}
	if f.StatusCode != 0 && f.StatusFilter != "" {
		return &ValidationError{Field: "statusFilter", Reason: "statusCode and statusFilter are mutually exclusive"}
	}
	return nil
}

// NormalizePage validates pagination parameters and applies defaults. A zero
// pageSize becomes DefaultPageSize; anything above MaxPageSize or negative is
// rejected rather than silently clamped so callers notice the bound.
func NormalizePage(page, pageSize int) (int, int, error) {
	if page < 0 {
		return 0, 0, &ValidationError{Field: "page", Reason: "must not be negative"}
	}
	if page > MaxPage {
		return 0, 0, &ValidationError{Field: "page", Reason: fmt.Sprintf("must not exceed %d", MaxPage)}
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 0 {
		return 0, 0, &ValidationError{Field: "pageSize", Reason: "must be positive"}
	}
	if pageSize > MaxPageSize {
		return 0, 0, &ValidationError{Field: "pageSize", Reason: fmt.Sprintf("must not exceed %d", MaxPageSize)}
	}
	return page, pageSize, nil
}

// PageBounds converts pagination already accepted by NormalizePage into the
// LIMIT and OFFSET applied to the listing order (created_at DESC, request_id
// DESC).
func PageBounds(page, pageSize int) (limit, offset int) {
	return pageSize, page * pageSize
}

// ValidateRange checks an explicit [start, end] retention/aggregation window.
func ValidateRange(start, end int64) error {
	if start < 0 {
		return &ValidationError{Field: "startDate", Reason: "must not be negative"}
	}
	if end < 0 {
		return &ValidationError{Field: "endDate", Reason: "must not be negative"}
	}
	if start > end {
		return &ValidationError{Field: "startDate", Reason: "startDate is after endDate"}
	}
	return nil
}
