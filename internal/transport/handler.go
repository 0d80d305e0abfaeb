package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/bridge"
	"github.com/mindhaven/relay/internal/dispatch"
	"github.com/mindhaven/relay/internal/models"
	"github.com/mindhaven/relay/internal/session"
)

// Handler upgrades HTTP requests to websocket sessions and translates
// frames into router and bridge calls.
type Handler struct {
	sessions *session.Manager
	router   *dispatch.Router
	bridge   *bridge.Bridge

	upgrader      websocket.Upgrader
	maxFrameBytes int64

	log zerolog.Logger
}

// HandlerConfig collects the handler's collaborators.
type HandlerConfig struct {
	Sessions *session.Manager
	Router   *dispatch.Router
	Bridge   *bridge.Bridge

	// MaxFrameBytes caps one inbound frame. Sized to hold the largest
	// inline attachment after base64 plus envelope framing.
	MaxFrameBytes int64

	Log zerolog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 2 << 20
	}
	return &Handler{
		sessions: cfg.Sessions,
		router:   cfg.Router,
		bridge:   cfg.Bridge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS middleware in front of
			// this handler.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		maxFrameBytes: cfg.MaxFrameBytes,
		log:           cfg.Log,
	}
}

// ServeHTTP is the socket entry point. Identity comes from a bearer token
// (Authorization header or token query parameter); without one the
// connection is anonymous. session_id is client-generated and stable across
// reconnects; a known one inside its retention window resumes the parked
// session, re-joins its rooms, and gap-fills missed history before live
// traffic continues.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	sessionID := r.URL.Query().Get("session_id")
	anonUserID := r.URL.Query().Get("user_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn, h.log.With().Str("remote", r.RemoteAddr).Logger())

	sess, resumed, err := h.sessions.Connect(sessionID, token, anonUserID, c)
	if err != nil {
		// Auth failures are fatal to the connection attempt, but the widget
		// wants a typed frame rather than a bare close. Written directly;
		// the pumps never start for a rejected connection.
		e := models.WireError(err)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(serverFrame{Type: frameError, Error: &e})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, e.Code))
		conn.Close()
		return
	}
	c.sess = sess
	c.log = c.log.With().Str("session_id", sess.ID).Str("user_id", sess.UserID).Logger()

	c.enqueue(serverFrame{
		Type:      frameConnected,
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Resumed:   resumed,
	})

	if resumed {
		// Restore membership and replay the gap immediately so continuity
		// does not depend on the client remembering to ask. A later resume
		// frame with client-side high-water marks is harmless; redelivery is
		// absorbed by the pending-ack table.
		if err := h.bridge.Resume(r.Context(), sess, nil); err != nil {
			c.sendWireError(err)
		}
	}

	go c.writePump()
	c.readPump(h)

	// The socket is gone. Park the session for the reconnection window,
	// unless a newer connection already took it over.
	if h.sessions.DetachSink(sess.ID, c) {
		h.bridge.OnDisconnect(sess)
	}
}

// handleFrame dispatches one inbound frame. Frame handling errors go back
// on the same socket as typed error frames; they never kill the connection.
func (h *Handler) handleFrame(c *Client, f *clientFrame) {
	ctx := context.Background()

	switch f.Type {
	case frameJoinRoom:
		if err := h.router.Join(ctx, c.sess, f.RoomID); err != nil {
			c.sendWireError(err)
		}

	case frameLeaveRoom:
		h.router.Leave(c.sess, f.RoomID)

	case frameSendMessage:
		if f.Message == nil {
			c.sendWireError(&models.ValidationError{Field: "message", Reason: "send_message requires a message"})
			return
		}
		h.submit(ctx, c, f.Message)

	case frameBotMessage:
		h.submitWrapped(ctx, c, f, models.KindText)

	case frameVoiceMessage:
		h.submitWrapped(ctx, c, f, models.KindVoice)

	case frameDocument:
		h.submitWrapped(ctx, c, f, models.KindDocument)

	case frameImage:
		h.submitWrapped(ctx, c, f, models.KindImage)

	case frameAck:
		c.sess.ResolveAck(f.RoomID, f.ID)
		if f.RoomID != "" && f.Timestamp > 0 {
			c.sess.ObserveDelivery(f.RoomID, f.Timestamp)
		}

	case frameResume:
		if err := h.bridge.Resume(ctx, c.sess, f.LastSeen); err != nil {
			c.sendWireError(err)
		}

	default:
		c.sendWireError(&models.ValidationError{Field: "type", Reason: "unknown frame type"})
	}
}

// submit runs an envelope through the router and reports the outcome on the
// socket.
func (h *Handler) submit(ctx context.Context, c *Client, env *models.Envelope) {
	ack, err := h.router.Submit(ctx, c.sess, env)
	if err != nil {
		c.sendWireError(err)
		return
	}
	c.sendAck(ack)
}

// submitWrapped expands one of the widget's convenience frames into a full
// envelope. Without an explicit room they target the sender's own assistant
// room, joining it on first use.
func (h *Handler) submitWrapped(ctx context.Context, c *Client, f *clientFrame, kind models.Kind) {
	roomID := f.RoomID
	if roomID == "" {
		roomID = models.AssistantRoomID(c.sess.UserID)
	}

	if !c.sess.InRoom(roomID) {
		if err := h.router.Join(ctx, c.sess, roomID); err != nil {
			c.sendWireError(err)
			return
		}
	}

	env := &models.Envelope{
		MessageID:     f.ID,
		RoomID:        roomID,
		Kind:          kind,
		Body:          f.Text,
		CorrelationID: f.CorrelationID,
		Attachment:    f.Payload,
	}
	if env.Attachment != nil && env.Attachment.Filename == "" {
		env.Attachment.Filename = f.Filename
	}
	h.submit(ctx, c, env)
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return r.URL.Query().Get("token")
}
