package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/metrics"
	"github.com/mindhaven/relay/internal/models"
)

// Manager owns every live session. Sessions are created on connect, parked
// on disconnect for the reconnection window, and destroyed on explicit close
// or window expiry.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	verifier *Verifier

	ackTimeout time.Duration
	ackRetries int
	window     time.Duration

	// onClose runs after a session is removed, outside the manager lock.
	// Wiring points it at the room registry so membership is torn down.
	onClose func(sessionID string)

	log zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(verifier *Verifier, ackTimeout time.Duration, ackRetries int, window time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		verifier:   verifier,
		ackTimeout: ackTimeout,
		ackRetries: ackRetries,
		window:     window,
		log:        log,
	}
}

// SetCloseHook registers the callback invoked when a session is destroyed.
func (m *Manager) SetCloseHook(fn func(sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// Connect binds a transport to a session. With a bearer token the identity
// is verified; with an empty token the connection is anonymous, using the
// client-supplied user ID (or a generated one). A known session ID inside
// its retention window resumes the parked session; resumed reports which
// path was taken so the caller can run the reconnection bridge.
func (m *Manager) Connect(sessionID, token, anonUserID string, sink Sink) (sess *Session, resumed bool, err error) {
	var userID string
	anonymous := token == ""
	if anonymous {
		userID = anonUserID
		if userID == "" {
			userID = "anon-" + uuid.NewString()
		}
	} else {
		userID, err = m.verifier.Verify(token)
		if err != nil {
			return nil, false, err
		}
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	existing, ok := m.sessions[sessionID]
	if ok {
		if existing.UserID != userID {
			m.mu.Unlock()
			return nil, false, &models.AuthError{Reason: "session id belongs to another identity"}
		}

		existing.mu.Lock()
		existing.generation++
		existing.sink = sink
		switch existing.state {
		case StateDisconnected:
			existing.state = StateReconnecting
		case StateClosed:
			// Raced with expiry; fall through to a fresh session below.
			existing.mu.Unlock()
			ok = false
		default:
			// The old transport went away without a disconnect (half-open
			// socket). The new connection supersedes it.
		}
		if ok {
			existing.mu.Unlock()
			m.mu.Unlock()

			metrics.SessionsReconnected.Inc()
			existing.log.Info().Msg("session resumed")
			existing.rearmPending()
			return existing, true, nil
		}
	}

	sess = &Session{
		ID:          sessionID,
		UserID:      userID,
		Anonymous:   anonymous,
		state:       StateAuthenticated,
		sink:        sink,
		joinedRooms: make(map[string]struct{}),
		pending:     make(map[pendingKey]*pendingAck),
		lastSeen:    make(map[string]int64),
		ackTimeout:  m.ackTimeout,
		ackRetries:  m.ackRetries,
		log: m.log.With().
			Str("session_id", sessionID).
			Str("user_id", userID).
			Logger(),
	}
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	sess.log.Info().Bool("anonymous", anonymous).Msg("session connected")
	return sess, false, nil
}

// Get returns the session for an ID, or nil.
func (m *Manager) Get(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// Count returns the number of tracked sessions, parked ones included.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Disconnect parks a session for the reconnection window. Joined rooms and
// pending acks are retained; if the window lapses without a resume, the
// session is closed for good.
func (m *Manager) Disconnect(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	if sess.state == StateClosed {
		sess.mu.Unlock()
		return
	}
	sess.state = StateDisconnected
	sess.sink = nil
	sess.generation++
	gen := sess.generation
	sess.mu.Unlock()

	sess.log.Info().Dur("window", m.window).Msg("session disconnected, retention window open")

	time.AfterFunc(m.window, func() {
		sess.mu.Lock()
		expired := sess.state == StateDisconnected && sess.generation == gen
		sess.mu.Unlock()
		if expired {
			metrics.SessionsExpired.Inc()
			sess.log.Info().Msg("retention window expired")
			m.Close(sessionID)
		}
	})
}

// DetachSink parks the session, but only if sink is still the attached
// transport. A resuming connection swaps the sink before the stale socket's
// teardown runs, so a superseded transport must not park the session that
// replaced it. Reports whether the session was actually parked.
func (m *Manager) DetachSink(sessionID string, sink Sink) bool {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	if sess.sink != sink || sess.state == StateClosed {
		sess.mu.Unlock()
		return false
	}
	sess.mu.Unlock()

	m.Disconnect(sessionID)
	return true
}

// Close terminally destroys a session and runs the registry teardown hook.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	onClose := m.onClose
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.close()
	metrics.SessionsActive.Dec()
	sess.log.Info().Msg("session closed")

	if onClose != nil {
		onClose(sessionID)
	}
}

// CloseAll tears down every session. Used on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}
