// Package session owns connection lifecycle and identity binding: one
// Session per live client connection, surviving brief disconnects inside a
// retention window so joined rooms and pending acks outlive a network blip.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/metrics"
	"github.com/mindhaven/relay/internal/models"
)

// State is a session's position in its lifecycle.
type State string

const (
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateJoined        State = "joined"
	StateDisconnected  State = "disconnected"
	StateReconnecting  State = "reconnecting"
	StateClosed        State = "closed"
)

// Sink delivers frames to the client behind a session. The transport's
// per-connection writer implements it; tests use in-memory fakes.
type Sink interface {
	Deliver(env *models.Envelope) error
	DeliverError(e models.ErrorEnvelope)
}

// FailureFunc is invoked when delivery retries for an envelope are
// exhausted. The router uses it to surface DeliveryFailed to the sender.
type FailureFunc func(*models.DeliveryFailed)

type pendingAck struct {
	env      *models.Envelope
	attempts int
	timer    *time.Timer
	notify   FailureFunc
}

// pendingKey scopes the pending-ack table to (room, message). Message IDs
// are only unique per sender, so two rooms can legitimately carry the same
// ID; keying by ID alone would drop the second envelope.
type pendingKey struct {
	roomID    string
	messageID string
}

// Session is the server-side state of one logical client connection.
// All mutation goes through its methods; the zero value is not usable.
type Session struct {
	ID        string
	UserID    string
	Anonymous bool

	mu          sync.Mutex
	state       State
	sink        Sink
	joinedRooms map[string]struct{}
	pending     map[pendingKey]*pendingAck

	// lastSeen tracks, per room, the server timestamp of the newest envelope
	// this session acknowledged. The bridge uses it to bound gap fills.
	lastSeen map[string]int64

	// generation invalidates retention timers when the session resumes
	// before its window expires.
	generation uint64

	ackTimeout time.Duration
	ackRetries int

	log zerolog.Logger
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkJoined records room membership on the session side.
func (s *Session) MarkJoined(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.joinedRooms[roomID] = struct{}{}
	if s.state == StateAuthenticated || s.state == StateReconnecting {
		s.state = StateJoined
	}
}

// MarkLeft removes room membership bookkeeping.
func (s *Session) MarkLeft(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.joinedRooms, roomID)
	delete(s.lastSeen, roomID)
}

// InRoom reports whether the session currently belongs to roomID.
func (s *Session) InRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.joinedRooms[roomID]
	return ok
}

// Rooms returns a snapshot of the session's joined rooms.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.joinedRooms))
	for roomID := range s.joinedRooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// ObserveDelivery records the newest server timestamp the client has
// acknowledged for a room.
func (s *Session) ObserveDelivery(roomID string, serverTimestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if serverTimestamp > s.lastSeen[roomID] {
		s.lastSeen[roomID] = serverTimestamp
	}
}

// LastSeen returns the newest acknowledged server timestamp for a room.
func (s *Session) LastSeen(roomID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen[roomID]
}

// Deliver pushes an envelope to the client and arms the at-least-once retry
// machinery: if the client does not ack within the timeout, the envelope is
// redelivered up to the configured retry count, then notify fires with a
// DeliveryFailed carrying the original message ID.
func (s *Session) Deliver(env *models.Envelope, notify FailureFunc) {
	key := pendingKey{roomID: env.RoomID, messageID: env.MessageID}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if _, exists := s.pending[key]; exists {
		// Already in flight to this client; the timer will redeliver.
		s.mu.Unlock()
		return
	}
	p := &pendingAck{env: env, notify: notify}
	s.pending[key] = p
	p.timer = time.AfterFunc(s.ackTimeout, func() { s.retry(key) })
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		if err := sink.Deliver(env); err != nil {
			s.log.Debug().Err(err).Str("message_id", env.MessageID).Msg("deliver failed, will retry")
		}
	}
}

// ResolveAck clears the pending entry for a client-acknowledged envelope.
// Returns false for unknown (already resolved or never sent) entries.
func (s *Session) ResolveAck(roomID, messageID string) bool {
	key := pendingKey{roomID: roomID, messageID: messageID}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, key)
	return true
}

// PendingCount reports how many envelopes await a client ack.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) retry(key pendingKey) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok || s.state == StateClosed {
		s.mu.Unlock()
		return
	}

	// A disconnected session keeps its pending set but must not burn retry
	// attempts against a client that cannot hear us. Park the entry; resume
	// rearms it.
	if s.state == StateDisconnected || s.state == StateReconnecting {
		s.mu.Unlock()
		return
	}

	p.attempts++
	if p.attempts > s.ackRetries {
		delete(s.pending, key)
		notify := p.notify
		env := p.env
		attempts := p.attempts
		s.mu.Unlock()

		metrics.DeliveryFailures.Inc()
		s.log.Warn().Str("message_id", key.messageID).Str("room", key.roomID).Int("attempts", attempts).Msg("delivery retries exhausted")
		if notify != nil {
			notify(&models.DeliveryFailed{MessageID: env.MessageID, Attempts: attempts})
		}
		return
	}

	p.timer.Reset(s.ackTimeout)
	sink := s.sink
	env := p.env
	s.mu.Unlock()

	metrics.AckRetries.Inc()
	if sink != nil {
		if err := sink.Deliver(env); err != nil {
			s.log.Debug().Err(err).Str("message_id", key.messageID).Msg("redelivery failed")
		}
	}
}

// rearmPending restarts retry timers after a resume.
func (s *Session) rearmPending() {
	s.mu.Lock()
	sink := s.sink
	var redeliver []*models.Envelope
	for _, p := range s.pending {
		p.timer.Reset(s.ackTimeout)
		redeliver = append(redeliver, p.env)
	}
	s.mu.Unlock()

	if sink == nil {
		return
	}
	for _, env := range redeliver {
		if err := sink.Deliver(env); err != nil {
			s.log.Debug().Err(err).Str("message_id", env.MessageID).Msg("redelivery after resume failed")
		}
	}
}

// SendError pushes a typed error frame to the client, if still attached.
func (s *Session) SendError(e models.ErrorEnvelope) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.DeliverError(e)
	}
}

// close releases per-session resources. A sink that is also an io.Closer
// (the websocket transport) is torn down with the session. Caller holds no
// locks.
func (s *Session) close() {
	s.mu.Lock()
	sink := s.sink
	s.state = StateClosed
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = map[pendingKey]*pendingAck{}
	s.sink = nil
	s.mu.Unlock()

	if closer, ok := sink.(io.Closer); ok {
		closer.Close()
	}
}
