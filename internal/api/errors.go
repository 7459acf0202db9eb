package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/cellgate-core/internal/hub"
)

// Error represents a structured error response.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	CommandID string `json:"commandId,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeHubError maps a hub routing error to a response. The error codes
// match the ones dashboard WebSocket clients receive. commandID is set when
// the command was recorded before delivery failed.
func (s *Server) writeHubError(w http.ResponseWriter, err error, commandID string) {
	code := hub.ErrorCode(err)

	var status int
	switch {
	case errors.Is(err, hub.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, hub.ErrAmbiguousDevice):
		status = http.StatusConflict
	case errors.Is(err, hub.ErrNoDeviceAvailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, hub.ErrCommandNotFound):
		status = http.StatusNotFound
	case errors.Is(err, hub.ErrDeliveryFailed):
		status = http.StatusBadGateway
	default:
		s.logger.Error("command routing failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   err.Error(),
		CommandID: commandID,
	})
}
