package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/konsul-ai/reply-engine/internal/llm"
	"github.com/konsul-ai/reply-engine/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeEngineError maps engine errors onto HTTP statuses without leaking
// internal detail.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, store.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, llm.ErrProviderNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "model provider not configured")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "reply timed out")
	default:
		writeError(w, http.StatusInternalServerError, "failed to generate reply")
	}
}
