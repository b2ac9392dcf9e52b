package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/points-engine/points"
)

// statusFor maps a points error to its HTTP status.
//
// Insufficient balance answers 418, which existing clients of the points
// API already match on.
func statusFor(err error) int {
	switch {
	case errors.Is(err, points.ErrInvalidInput):
		return http.StatusBadRequest
	case points.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, points.ErrPayerExists):
		return http.StatusConflict
	case errors.Is(err, points.ErrInsufficientBalance):
		return http.StatusTeapot
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an ErrorResponse. Unexpected errors are logged with the
// request id and answered with a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := h.errorBody(r, err)
	writeJSON(w, status, body)
}

func (h *Handler) errorBody(r *http.Request, err error) (int, ErrorResponse) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		return status, ErrorResponse{Status: status, Error: "internal error"}
	}
	return status, ErrorResponse{Status: status, Error: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	writeJSON(w, status, ErrorResponse{Status: status, Error: message, Details: details})
}
