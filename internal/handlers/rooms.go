package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RoomInfo represents a room in the list response. Occupancy counts live
// sessions, parked ones included.
type RoomInfo struct {
	ID             string `json:"id"`
	AllowAnonymous bool   `json:"allow_anonymous"`
	Occupancy      int    `json:"occupancy"`
	CreatedAt      string `json:"created_at"`
}

// RoomListResponse represents the room list response.
type RoomListResponse struct {
	Rooms []RoomInfo `json:"rooms"`
	Total int        `json:"total"`
}

// ListRooms lists the community room directory. Assistant rooms are private
// and never appear here.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if o, err := strconv.Atoi(s); err == nil && o >= 0 {
			offset = o
		}
	}

	rooms, total, err := h.directory.ListRooms(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "directory error")
		return
	}

	infos := make([]RoomInfo, len(rooms))
	for i, room := range rooms {
		infos[i] = RoomInfo{
			ID:             room.ID,
			AllowAnonymous: room.AllowAnonymous,
			Occupancy:      len(h.registry.MembersOf(room.ID)),
			CreatedAt:      room.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	h.JSON(w, http.StatusOK, RoomListResponse{Rooms: infos, Total: total})
}

// GetRoom returns one community room with its live occupancy.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	room, err := h.directory.GetRoom(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "directory error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "unknown room")
		return
	}

	h.JSON(w, http.StatusOK, RoomInfo{
		ID:             room.ID,
		AllowAnonymous: room.AllowAnonymous,
		Occupancy:      len(h.registry.MembersOf(room.ID)),
		CreatedAt:      room.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}
