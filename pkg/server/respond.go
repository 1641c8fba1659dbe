package server

import (
	"encoding/json"
	"net/http"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Default().Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := model.ErrorKind(err)
	writeJSON(w, statusFor(kind), errorBody{Error: kind, Message: err.Error()})
}

func statusFor(kind string) int {
	switch kind {
	case "invalid_input":
		return http.StatusBadRequest
	case "session_not_found":
		return http.StatusNotFound
	case "prompt_too_large":
		return http.StatusRequestEntityTooLarge
	case "retrieval_unavailable":
		return http.StatusServiceUnavailable
	case "generator_unavailable":
		return http.StatusBadGateway
	case "generator_timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
