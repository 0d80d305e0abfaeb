package handlers

import (
	"net/http"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	ActiveSessions int   `json:"active_sessions"`
	ActiveRooms    int   `json:"active_rooms"`
	DirectoryRooms int64 `json:"directory_rooms"`
}

// Stats returns live server statistics: tracked sessions (parked ones
// included), rooms with at least one member or a reconnection pin, and the
// size of the community room directory.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	total, err := h.directory.CountRooms(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "directory error")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		ActiveSessions: h.sessions.Count(),
		ActiveRooms:    h.registry.RoomCount(),
		DirectoryRooms: total,
	})
}
