package transport

import "github.com/mindhaven/relay/internal/models"

// Frame type names on the socket. Client to server first, then server to
// client. The attachment wrappers (bot_message, voice_message, document,
// image) are conveniences for the chat widget; they expand into the same
// envelope submission as send_message.
const (
	frameJoinRoom     = "join_room"
	frameLeaveRoom    = "leave_room"
	frameSendMessage  = "send_message"
	frameBotMessage   = "bot_message"
	frameVoiceMessage = "voice_message"
	frameDocument     = "document"
	frameImage        = "image"
	frameAck          = "ack"
	frameResume       = "resume"

	frameConnected      = "connected"
	frameReceiveMessage = "receive_message"
	frameError          = "error"
)

// clientFrame is every inbound frame shape folded into one struct; Type
// decides which fields matter.
type clientFrame struct {
	Type string `json:"type"`

	// join_room, leave_room. The wrappers also accept it; when absent they
	// default to the sender's own assistant room.
	RoomID string `json:"room_id,omitempty"`

	// send_message carries a full envelope.
	Message *models.Envelope `json:"message,omitempty"`

	// The wrapper frames share these. ID doubles as the ack frame's
	// message reference.
	ID            string                   `json:"id,omitempty"`
	Text          string                   `json:"text,omitempty"`
	CorrelationID string                   `json:"cid,omitempty"`
	Filename      string                   `json:"filename,omitempty"`
	Payload       *models.TransportPayload `json:"payload,omitempty"`

	// ack: where the client saw the message, for history bookkeeping.
	Timestamp int64 `json:"ts,omitempty"`

	// resume: the client's per-room high-water marks.
	LastSeen map[string]int64 `json:"last_seen,omitempty"`
}

// serverFrame is every outbound frame shape.
type serverFrame struct {
	Type string `json:"type"`

	// connected
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Resumed   bool   `json:"resumed,omitempty"`

	// receive_message
	Message *models.Envelope `json:"message,omitempty"`

	// ack
	Ack *models.Ack `json:"ack,omitempty"`

	// error
	Error *models.ErrorEnvelope `json:"error,omitempty"`
}
