// Package handlers holds the small HTTP surface next to the socket: health,
// the public room directory, and live stats.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mindhaven/relay/internal/registry"
	"github.com/mindhaven/relay/internal/session"
	"github.com/mindhaven/relay/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	directory store.Directory
	redis     *store.RedisStore // optional
	sessions  *session.Manager
	registry  *registry.Registry
}

// NewHandler creates a new Handler with the given collaborators. redis may
// be nil when the deployment runs on in-process stores.
func NewHandler(directory store.Directory, redis *store.RedisStore, sessions *session.Manager, reg *registry.Registry) *Handler {
	return &Handler{directory: directory, redis: redis, sessions: sessions, registry: reg}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
