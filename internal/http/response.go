package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"khata/internal/core"
	applog "khata/internal/log"
	"khata/internal/ports"
	"khata/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes:
// validation 422, not found 404, malformed body 400, storage 503.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Err.Error(), Field: ve.Field})
	case errors.Is(err, ports.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")})
	case errors.Is(err, services.ErrRepository),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Storage unavailable",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err.Error())
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "storage unavailable"})
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
