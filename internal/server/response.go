package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/medicore/medidash/internal/dashboard"
	"github.com/medicore/medidash/internal/query"
	"github.com/medicore/medidash/internal/warehouse"
)

// writeJSON writes v as JSON with the given HTTP status code.
// Logs a warning if JSON encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encoding response: %v", err)
	}
}

// writeError writes a JSON error response with the given status
// and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleContextError detects context.Canceled and
// context.DeadlineExceeded errors, returning true so the
// caller stops processing. It does NOT write an HTTP
// response: the withTimeout middleware owns that via
// http.TimeoutHandler (503), and writing here would race with
// its buffered response.
func handleContextError(_ http.ResponseWriter, err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// writeRunError maps a dashboard render failure to a response.
// Warehouse details are logged, never returned to the client.
func writeRunError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, dashboard.ErrUnknownDashboard),
		errors.Is(err, dashboard.ErrUnknownPanel):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dashboard.ErrUnsupportedFilter),
		errors.Is(err, query.ErrNoDateRange),
		errors.Is(err, query.ErrInvertedRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case warehouse.IsTimeout(err):
		log.Printf("%s: %v", op, err)
		writeError(w, http.StatusGatewayTimeout, "warehouse query timed out")
	case handleContextError(w, err):
	default:
		log.Printf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
