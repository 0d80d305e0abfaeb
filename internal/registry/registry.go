// Package registry tracks room membership, independent of message content.
// Each room's member set is mutated only under that room's own lock, and no
// code path ever holds two room locks at once.
package registry

import (
	"sync"

	"github.com/rs/zerolog"
)

type room struct {
	mu              sync.Mutex
	members         map[string]struct{}
	createdOnDemand bool

	// pins > 0 blocks reclamation while a disconnected member may still
	// resume into this room.
	pins int

	// dead is set by reclaim under mu before the room leaves the map. A
	// join that raced the reclaim sees it and retries against a fresh
	// room instead of mutating an orphaned member set.
	dead bool
}

// Registry maps room IDs to the set of active session IDs.
type Registry struct {
	mu    sync.RWMutex // guards the rooms map, never held with a room lock first
	rooms map[string]*room

	log zerolog.Logger
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		log:   log,
	}
}

// get returns the named room, creating it if create is set.
func (r *Registry) get(roomID string, create, onDemand bool) *room {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if rm != nil || !create {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm = r.rooms[roomID]; rm != nil {
		return rm
	}
	rm = &room{
		members:         make(map[string]struct{}),
		createdOnDemand: onDemand,
	}
	r.rooms[roomID] = rm
	return rm
}

// Join adds a session to a room, creating on-demand rooms on first join.
// Idempotent: joining twice is a no-op.
func (r *Registry) Join(roomID, sessionID string, onDemand bool) {
	for {
		rm := r.get(roomID, true, onDemand)

		rm.mu.Lock()
		if rm.dead {
			// Reclaimed between get and the lock; the map no longer holds
			// this object, so a member added here would be invisible to
			// fan-out. Fetch the live room and try again.
			rm.mu.Unlock()
			continue
		}
		_, already := rm.members[sessionID]
		rm.members[sessionID] = struct{}{}
		rm.mu.Unlock()

		if !already {
			r.log.Debug().Str("room", roomID).Str("session_id", sessionID).Msg("joined room")
		}
		return
	}
}

// Leave removes a session from a room. Empty on-demand rooms are reclaimed
// lazily, but never while pinned for a mid-reconnection member.
func (r *Registry) Leave(roomID, sessionID string) {
	rm := r.get(roomID, false, false)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	delete(rm.members, sessionID)
	rm.mu.Unlock()

	r.log.Debug().Str("room", roomID).Str("session_id", sessionID).Msg("left room")
	r.reclaim(roomID)
}

// MembersOf returns a snapshot of a room's members, reflecting every join
// and leave that completed before the call.
func (r *Registry) MembersOf(roomID string) []string {
	rm := r.get(roomID, false, false)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	members := make([]string, 0, len(rm.members))
	for id := range rm.members {
		members = append(members, id)
	}
	return members
}

// Contains reports whether a session is a member of a room.
func (r *Registry) Contains(roomID, sessionID string) bool {
	rm := r.get(roomID, false, false)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, ok := rm.members[sessionID]
	return ok
}

// Exists reports whether the registry currently tracks the room.
func (r *Registry) Exists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Pin blocks reclamation of a room while a disconnected session that was a
// member may still resume into it.
func (r *Registry) Pin(roomID string) {
	rm := r.get(roomID, false, false)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	rm.pins++
	rm.mu.Unlock()
}

// Unpin releases a reconnection pin and reclaims the room if it is now
// empty, on-demand, and unpinned.
func (r *Registry) Unpin(roomID string) {
	rm := r.get(roomID, false, false)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	if rm.pins > 0 {
		rm.pins--
	}
	rm.mu.Unlock()

	r.reclaim(roomID)
}

// RemoveSession drops a session from every room it belongs to. Rooms are
// visited one at a time; each lock is released before the next is taken.
func (r *Registry) RemoveSession(sessionID string) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, roomID := range ids {
		r.Leave(roomID, sessionID)
	}
}

// RoomCount returns the number of rooms with registry state.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// reclaim deletes the room if it is empty, on-demand, and unpinned.
// Community rooms keep their (empty) registry entry; their existence is the
// directory's concern, not ours.
func (r *Registry) reclaim(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[roomID]
	if rm == nil {
		return
	}

	rm.mu.Lock()
	garbage := rm.createdOnDemand && len(rm.members) == 0 && rm.pins == 0
	if garbage {
		rm.dead = true
	}
	rm.mu.Unlock()

	if garbage {
		delete(r.rooms, roomID)
		r.log.Debug().Str("room", roomID).Msg("reclaimed empty room")
	}
}
