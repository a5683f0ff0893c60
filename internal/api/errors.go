package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/alecgard/jauge/internal/metering"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeValidationError writes a 400 response naming the offending field.
func writeValidationError(w http.ResponseWriter, ve *metering.ValidationError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    "validation_failed",
			Message: ve.Error(),
			Field:   ve.Field,
		},
	})
}

// writeStoreError maps store-layer errors onto the error envelope: validation
// failures become 400s with the field name, missing rows become 404s, and
// everything else is a 500.
func writeStoreError(w http.ResponseWriter, err error, notFoundMessage string) {
	var ve *metering.ValidationError
	if errors.As(err, &ve) {
		writeValidationError(w, ve)
		return
	}
	if errors.Is(err, metering.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", notFoundMessage)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "storage operation failed")
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}
