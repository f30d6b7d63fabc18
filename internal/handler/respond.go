package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/storefront/storefront-go/internal/validate"
)

const maxBodyBytes = 1 << 20 // 1MB

type errorBody struct {
	Status  int                   `json:"status"`
	Message string                `json:"message"`
	Errors  []validate.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) errorBody {
	return errorBody{Status: 0, Message: msg}
}

func successResponse(msg string) map[string]any {
	return map[string]any{"status": 1, "message": msg}
}

// internalError logs err and answers with an opaque 500.
func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.ErrorContext(r.Context(), op+" failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
}

// decodeValid decodes the JSON body into dst and runs the struct's validate
// rules. On failure it writes the response and returns false.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}

	if errs := validate.Struct(dst); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Status:  0,
			Message: "Validation failed",
			Errors:  errs,
		})
		return false
	}

	return true
}
