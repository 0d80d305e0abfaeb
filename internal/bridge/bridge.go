// Package bridge makes a disconnect/reconnect cycle invisible: it pins a
// parked session's rooms against reclamation, re-joins them on resume, and
// gap-fills from the history collaborator so the client sees no hole.
package bridge

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/metrics"
	"github.com/mindhaven/relay/internal/models"
	"github.com/mindhaven/relay/internal/registry"
	"github.com/mindhaven/relay/internal/session"
)

// History is the slice of the history collaborator the bridge needs.
type History interface {
	FetchSince(ctx context.Context, roomID string, after int64) ([]models.Envelope, error)
}

// Bridge restores registry state and replays missed history on reconnect.
// It never fabricates messages; everything replayed came from the
// collaborator.
type Bridge struct {
	sessions *session.Manager
	registry *registry.Registry
	history  History

	mu     sync.Mutex
	pinned map[string][]string // sessionID -> rooms pinned at disconnect

	log zerolog.Logger
}

// New creates a bridge.
func New(sessions *session.Manager, reg *registry.Registry, history History, log zerolog.Logger) *Bridge {
	return &Bridge{
		sessions: sessions,
		registry: reg,
		history:  history,
		pinned:   make(map[string][]string),
		log:      log,
	}
}

// OnDisconnect pins every room the session belongs to, so empty on-demand
// rooms survive until the session resumes or its window expires, then takes
// the session out of fan-out. Anything posted during the outage reaches the
// member through the history gap fill, not through a queue against a dead
// socket.
func (b *Bridge) OnDisconnect(sess *session.Session) {
	rooms := sess.Rooms()
	for _, roomID := range rooms {
		b.registry.Pin(roomID)
	}

	b.mu.Lock()
	b.pinned[sess.ID] = rooms
	b.mu.Unlock()

	b.registry.RemoveSession(sess.ID)
}

// OnClose releases any pins held for a session that will never resume.
// Wiring chains this into the session manager's close hook.
func (b *Bridge) OnClose(sessionID string) {
	b.mu.Lock()
	rooms := b.pinned[sessionID]
	delete(b.pinned, sessionID)
	b.mu.Unlock()

	for _, roomID := range rooms {
		b.registry.Unpin(roomID)
	}
}

// Resume re-joins a resumed session to its retained rooms and replays every
// envelope it missed, per room, with server timestamp greater than what the
// client last saw. lastSeen holds the client's per-room high-water marks;
// the session's own bookkeeping is used where it is newer.
//
// Replayed envelopes are queued before the caller resumes live traffic, so
// a member observes no gap and no reordering against history.
func (b *Bridge) Resume(ctx context.Context, sess *session.Session, lastSeen map[string]int64) error {
	rooms := sess.Rooms()
	sort.Strings(rooms)

	for _, roomID := range rooms {
		b.registry.Join(roomID, sess.ID, models.IsAssistantRoom(roomID))
		sess.MarkJoined(roomID)
	}

	// Pins were taken at disconnect; membership is restored, release them.
	b.OnClose(sess.ID)

	for _, roomID := range rooms {
		after := sess.LastSeen(roomID)
		if client := lastSeen[roomID]; client > after {
			after = client
		}

		missed, err := b.history.FetchSince(ctx, roomID, after)
		if err != nil {
			// Surface the gap instead of silently losing it: the client can
			// re-fetch full history through the collaborator API.
			b.log.Warn().Err(err).Str("room", roomID).Msg("history gap fill failed")
			return err
		}
		metrics.HistoryBackfills.Inc()

		for i := range missed {
			env := missed[i]
			if env.ServerTimestamp <= after {
				continue
			}
			// Own community-room messages were never echoed live; keep that
			// policy during replay. Assistant rooms echo everything.
			if env.SenderID == sess.UserID && !models.IsAssistantRoom(roomID) {
				continue
			}
			metrics.HistoryBackfillMessages.Inc()
			sess.Deliver(&env, nil)
		}
	}

	b.log.Info().Str("session_id", sess.ID).Int("rooms", len(rooms)).Msg("session state restored")
	return nil
}
