// Package relay provides a Go client for the relay messaging server.
package relay

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mindhaven/relay/internal/models"
)

// Options configures a connection.
type Options struct {
	// SessionID is client-generated and stable across reconnects. Left
	// empty, the server assigns one.
	SessionID string

	// Token is a bearer JWT. Without one the connection is anonymous and
	// UserID (or a server-generated fallback) names the sender.
	Token  string
	UserID string
}

// Event is one server-to-client frame, decoded.
type Event struct {
	Type string

	// connected
	SessionID string
	UserID    string
	Resumed   bool

	Message *models.Envelope
	Ack     *models.Ack
	Err     *models.ErrorEnvelope
}

// frame is the wire shape in both directions.
type frame struct {
	Type string `json:"type"`

	RoomID  string           `json:"room_id,omitempty"`
	Message *models.Envelope `json:"message,omitempty"`

	ID            string                   `json:"id,omitempty"`
	Text          string                   `json:"text,omitempty"`
	CorrelationID string                   `json:"cid,omitempty"`
	Filename      string                   `json:"filename,omitempty"`
	Payload       *models.TransportPayload `json:"payload,omitempty"`
	Timestamp     int64                    `json:"ts,omitempty"`
	LastSeen      map[string]int64         `json:"last_seen,omitempty"`

	SessionID string                `json:"session_id,omitempty"`
	Resumed   bool                  `json:"resumed,omitempty"`
	UserID    string                `json:"user_id,omitempty"`
	Ack       *models.Ack           `json:"ack,omitempty"`
	Error     *models.ErrorEnvelope `json:"error,omitempty"`
}

// Client is one live connection to the relay. Received frames are decoded,
// auto-acknowledged, and surfaced on Events; writes are serialized through
// an internal mutex so any goroutine may send.
type Client struct {
	Events chan Event

	SessionID string
	UserID    string

	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects and waits for the server's connected frame.
func Dial(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	q := u.Query()
	if opts.SessionID != "" {
		q.Set("session_id", opts.SessionID)
	}
	if opts.UserID != "" {
		q.Set("user_id", opts.UserID)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		Events: make(chan Event, 64),
		conn:   conn,
		done:   make(chan struct{}),
	}

	// First frame is connected or a typed auth error.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if hello.Type == "error" && hello.Error != nil {
		conn.Close()
		return nil, fmt.Errorf("connect rejected: %s: %s", hello.Error.Code, hello.Error.Detail)
	}
	if hello.Type != "connected" {
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake frame %q", hello.Type)
	}
	conn.SetReadDeadline(time.Time{})

	c.SessionID = hello.SessionID
	c.UserID = hello.UserID
	c.Events <- Event{Type: hello.Type, SessionID: hello.SessionID, UserID: hello.UserID, Resumed: hello.Resumed}

	go c.readLoop()
	return c, nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Join subscribes to a room. Idempotent; errors come back as error events.
func (c *Client) Join(roomID string) error {
	return c.write(frame{Type: "join_room", RoomID: roomID})
}

// Leave unsubscribes from a room.
func (c *Client) Leave(roomID string) error {
	return c.write(frame{Type: "leave_room", RoomID: roomID})
}

// SendText posts a text message and returns its message ID. The matching
// ack or error arrives as an event.
func (c *Client) SendText(roomID, body string) (string, error) {
	id := uuid.NewString()
	err := c.write(frame{Type: "send_message", Message: &models.Envelope{
		MessageID: id,
		RoomID:    roomID,
		Kind:      models.KindText,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
	}})
	return id, err
}

// SendBot posts a message to the caller's assistant room, joining it on
// first use. The bot reply arrives as a receive_message event carrying the
// returned ID as its correlation ID.
func (c *Client) SendBot(text string) (string, error) {
	id := uuid.NewString()
	err := c.write(frame{Type: "bot_message", ID: id, Text: text})
	return id, err
}

// SendAttachment posts a voice, image, or document message.
func (c *Client) SendAttachment(roomID string, kind models.Kind, filename string, payload *models.TransportPayload) (string, error) {
	var typ string
	switch kind {
	case models.KindVoice:
		typ = "voice_message"
	case models.KindImage:
		typ = "image"
	case models.KindDocument:
		typ = "document"
	default:
		return "", fmt.Errorf("kind %q does not carry an attachment", kind)
	}
	id := uuid.NewString()
	err := c.write(frame{Type: typ, ID: id, RoomID: roomID, Filename: filename, Payload: payload})
	return id, err
}

// Resume asks for a history gap fill using the client's own per-room
// high-water marks.
func (c *Client) Resume(lastSeen map[string]int64) error {
	return c.write(frame{Type: "resume", LastSeen: lastSeen})
}

func (c *Client) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(f)
}

// readLoop decodes server frames, acknowledges deliveries, and forwards
// events until the connection dies.
func (c *Client) readLoop() {
	defer func() {
		c.Close()
		close(c.Events)
	}()

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}

		ev := Event{Type: f.Type, SessionID: f.SessionID, UserID: f.UserID, Resumed: f.Resumed, Ack: f.Ack, Err: f.Error, Message: f.Message}

		if f.Type == "receive_message" && f.Message != nil {
			// Acknowledge so the server's redelivery timer stands down.
			c.write(frame{
				Type:      "ack",
				ID:        f.Message.MessageID,
				RoomID:    f.Message.RoomID,
				Timestamp: f.Message.ServerTimestamp,
			})
		}

		select {
		case c.Events <- ev:
		case <-c.done:
			return
		}
	}
}
