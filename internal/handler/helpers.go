package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/channel"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

// errInvalidQuery marks a malformed query parameter.
var errInvalidQuery = errors.New("invalid query parameter")

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, run.ErrNotFound),
		errors.Is(err, channel.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, run.ErrInvalidArgument),
		errors.Is(err, channel.ErrInvalidID),
		errors.Is(err, service.ErrInvalidKeyRequest),
		errors.Is(err, errInvalidQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, channel.ErrNoChanges):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrKeyRevoked),
		errors.Is(err, service.ErrKeyExpired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInsufficientScope):
		return http.StatusForbidden
	case errors.Is(err, run.ErrConflict),
		errors.Is(err, channel.ErrExists),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status from statusFor. Internal errors are
// logged and replaced with a generic message.
func respondError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", run.ErrInvalidArgument, err)
	}
	return nil
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing. A value that does not parse is an error.
func queryInt(r *http.Request, key string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errInvalidQuery, key)
	}
	return n, nil
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// pageParams reads limit and offset, rejecting values outside [1, max] and
// negative offsets.
func pageParams(r *http.Request, defaultLimit, max int) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit", defaultLimit); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	if limit < 1 || limit > max {
		return 0, 0, fmt.Errorf("%w: limit must be between 1 and %d", errInvalidQuery, max)
	}
	if offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset must not be negative", errInvalidQuery)
	}
	return limit, offset, nil
}
