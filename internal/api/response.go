package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ppissanetzky/barcode-sub000/internal/equipment"
)

// Codes for failures that are not equipment rules.
const (
	codeBadRequest   = "BAD_REQUEST"
	codeUnauthorized = "UNAUTHORIZED"
	codeForbidden    = "FORBIDDEN"
	codeNotFound     = "NOT_FOUND"
	codeInternal     = "INTERNAL"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, code, message string) {
	jsonResponse(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

var kindStatus = map[equipment.Kind]int{
	equipment.InvalidItem:      http.StatusNotFound,
	equipment.NotYours:         http.StatusForbidden,
	equipment.NotAllowed:       http.StatusForbidden,
	equipment.Banned:           http.StatusForbidden,
	equipment.AlreadyInQueue:   http.StatusConflict,
	equipment.NotInQueue:       http.StatusConflict,
	equipment.CannotDropOut:    http.StatusConflict,
	equipment.InvalidRecipient: http.StatusConflict,
	equipment.InvalidPhone:     http.StatusBadRequest,
	equipment.OtpRequired:      http.StatusBadRequest,
	equipment.OtpExpired:       http.StatusBadRequest,
	equipment.OtpRateLimited:   http.StatusTooManyRequests,
	equipment.OtpIncorrect:     http.StatusUnprocessableEntity,
}

// serviceError writes err from the equipment service. Rule violations keep
// their kind as the code; anything else is logged and hidden.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var e *equipment.Error
	if errors.As(err, &e) {
		status, ok := kindStatus[e.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		jsonResponse(w, status, errorResponse{Error: errorBody{
			Code:      string(e.Kind),
			Message:   e.Message,
			Retryable: e.Retryable(),
		}})
		return
	}
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	jsonError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
