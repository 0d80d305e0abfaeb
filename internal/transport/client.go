// Package transport is the websocket face of the server: one read pump and
// one write pump goroutine per connection, a buffered outbound queue, and
// the frame protocol the chat widget speaks.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/models"
	"github.com/mindhaven/relay/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	sendQueueSize = 256
)

var errSendQueueFull = errors.New("transport: send queue full")

// Client is one websocket connection. It implements session.Sink, so the
// session layer can push envelopes and errors without knowing the wire
// format; a single writer goroutine drains the send queue.
type Client struct {
	conn *websocket.Conn
	sess *session.Session

	send chan serverFrame

	closeOnce sync.Once
	done      chan struct{}

	log zerolog.Logger
}

func newClient(conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		conn: conn,
		send: make(chan serverFrame, sendQueueSize),
		done: make(chan struct{}),
		log:  log,
	}
}

// Deliver queues an envelope for the writer. A full queue is reported as an
// error so the session layer's ack-retry machinery redelivers later instead
// of blocking the fan-out.
func (c *Client) Deliver(env *models.Envelope) error {
	return c.enqueue(serverFrame{Type: frameReceiveMessage, Message: env})
}

// DeliverError queues a typed error frame. Best effort; a client too
// backlogged to take an error frame is about to be torn down anyway.
func (c *Client) DeliverError(e models.ErrorEnvelope) {
	if err := c.enqueue(serverFrame{Type: frameError, Error: &e}); err != nil {
		c.log.Debug().Str("code", e.Code).Msg("dropped error frame, queue full")
	}
}

func (c *Client) sendAck(ack *models.Ack) {
	if err := c.enqueue(serverFrame{Type: frameAck, Ack: ack}); err != nil {
		c.log.Debug().Str("message_id", ack.MessageID).Msg("dropped ack frame, queue full")
	}
}

func (c *Client) sendWireError(err error) {
	e := models.WireError(err)
	c.DeliverError(e)
}

func (c *Client) enqueue(f serverFrame) error {
	select {
	case <-c.done:
		return errors.New("transport: connection closed")
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return errSendQueueFull
	}
}

// Close implements io.Closer so a terminal session close also tears the
// socket down.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads frames until the socket dies, handing each to the handler.
// It owns the read side: deadlines, pong handling, size limit.
func (c *Client) readPump(h *Handler) {
	defer c.shutdown()

	c.conn.SetReadLimit(h.maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f clientFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		h.handleFrame(c, &f)
	}
}

// writePump is the single writer: it drains the send queue and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
