// Package handlers implements the HTTP API of the correlation engine.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

const (
	maxBodyBytes = 1 << 20
	defaultLimit = 100
	maxLimit     = 1000
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownDevice),
		errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrDecisionNotFound),
		errors.Is(err, domain.ErrDispatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEventResolved),
		errors.Is(err, domain.ErrDuplicateSnapshot):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSnapshot),
		errors.Is(err, domain.ErrInvalidDeviceID),
		errors.Is(err, domain.ErrInvalidOverride),
		errors.Is(err, domain.ErrInvalidSeverity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExplainerUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// decodeBody reads a JSON request body of at most 1MB. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

// window parses since/until (RFC3339) and limit from the query string.
func window(q map[string][]string) (since, until time.Time, limit int, err error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	if s := get("since"); s != "" {
		if since, err = time.Parse(time.RFC3339, s); err != nil {
			return since, until, 0, errors.New("since must be RFC3339")
		}
	}
	if s := get("until"); s != "" {
		if until, err = time.Parse(time.RFC3339, s); err != nil {
			return since, until, 0, errors.New("until must be RFC3339")
		}
	}
	if !since.IsZero() && !until.IsZero() && since.After(until) {
		return since, until, 0, errors.New("since cannot be later than until")
	}
	limit = defaultLimit
	if s := get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n <= 0 {
			return since, until, 0, errors.New("limit must be a positive integer")
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return since, until, limit, nil
}

// actorFrom names the operator behind a control request.
func actorFrom(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	if h := r.Header.Get("X-Actor"); h != "" {
		return h
	}
	return "operator"
}
