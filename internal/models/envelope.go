package models

// Kind identifies the payload type of an envelope.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindVoice    Kind = "voice"
	KindBotReply Kind = "bot_reply"
)

// Valid reports whether k is a known envelope kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindDocument, KindVoice, KindBotReply:
		return true
	}
	return false
}

// HasAttachment reports whether envelopes of this kind carry a binary payload.
func (k Kind) HasAttachment() bool {
	switch k {
	case KindImage, KindDocument, KindVoice:
		return true
	}
	return false
}

// Envelope is the unit of transport between clients, the router, and the
// assistant collaborator. Immutable once submitted; the router relays
// envelopes but never rewrites them.
type Envelope struct {
	MessageID string `json:"id"` // Sender-generated, used for dedup and ack correlation
	RoomID    string `json:"room_id"`
	SenderID  string `json:"from"`
	Kind      Kind   `json:"kind"`
	Body      string `json:"body,omitempty"`

	// Attachment is set for image/document/voice kinds; nil otherwise.
	Attachment *TransportPayload `json:"attachment,omitempty"`

	// Timestamp is the sender's clock, advisory only.
	// ServerTimestamp is assigned by the router at submission and is
	// authoritative for ordering. Both Unix ms.
	Timestamp       int64 `json:"ts,omitempty"`
	ServerTimestamp int64 `json:"sts,omitempty"`

	// CorrelationID links a request in an assistant room to its eventual
	// bot_reply (or to the error envelope substituted for one).
	CorrelationID string `json:"cid,omitempty"`
}

// Ack confirms that the router accepted an envelope and queued its fan-out.
// Queued-for-delivery, not delivered: per-member delivery confirmation is the
// session layer's weaker, retried guarantee.
type Ack struct {
	MessageID       string `json:"id"`
	ServerTimestamp int64  `json:"sts"`
	Duplicate       bool   `json:"duplicate,omitempty"`
}
