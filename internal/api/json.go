package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/cfgswap/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error           string `json:"error" validate:"required"`
	Step            string `json:"step,omitempty"`
	TargetUnchanged bool   `json:"target_unchanged,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps the error taxonomy onto HTTP status codes. Zero means the
// error is internal and its text is not exposed.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrDuplicateName), errors.Is(err, apperr.ErrCannotDeleteActive):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrFileLocked):
		return http.StatusLocked
	case errors.Is(err, apperr.ErrInvalidName),
		errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrMalformedContent):
		return http.StatusBadRequest
	default:
		return 0
	}
}

// writeError renders err, logging anything that is not a client error.
func writeError(w http.ResponseWriter, op string, err error) {
	body := errorBody(err.Error())
	var se *apperr.StepError
	if errors.As(err, &se) {
		body.Step = se.Step
		body.TargetUnchanged = se.TargetUnchanged
	}

	status := statusFor(err)
	if status == 0 {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		status = http.StatusInternalServerError
		if se == nil {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}
