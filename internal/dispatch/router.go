// Package dispatch validates, de-duplicates, and fans out envelopes, and
// bridges assistant rooms to the inference collaborator.
package dispatch

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/assistant"
	"github.com/mindhaven/relay/internal/codec"
	"github.com/mindhaven/relay/internal/metrics"
	"github.com/mindhaven/relay/internal/models"
	"github.com/mindhaven/relay/internal/registry"
	"github.com/mindhaven/relay/internal/session"
	"github.com/mindhaven/relay/internal/store"
)

// AssistantSenderID marks envelopes synthesized from collaborator replies.
const AssistantSenderID = "assistant"

// Assistant is the slice of the inference client the router needs.
type Assistant interface {
	Infer(ctx context.Context, req assistant.Request) (*assistant.Reply, error)
}

// Router routes submitted envelopes: membership gate, dedup, attachment
// gate, then room-scoped fan-out or assistant forwarding.
type Router struct {
	sessions  *session.Manager
	registry  *registry.Registry
	directory store.Directory
	dedup     store.DedupStore
	limiter   store.RateLimiter
	codec     *codec.Codec

	bot        Assistant
	botTimeout time.Duration

	rateLimit int // messages per session per minute, 0 disables

	log zerolog.Logger
}

// Config collects the router's collaborators.
type Config struct {
	Sessions  *session.Manager
	Registry  *registry.Registry
	Directory store.Directory
	Dedup     store.DedupStore
	Limiter   store.RateLimiter
	Codec     *codec.Codec

	Bot        Assistant
	BotTimeout time.Duration

	RateLimit int

	Log zerolog.Logger
}

// New creates a router.
func New(cfg Config) *Router {
	if cfg.BotTimeout <= 0 {
		cfg.BotTimeout = 15 * time.Second
	}
	return &Router{
		sessions:   cfg.Sessions,
		registry:   cfg.Registry,
		directory:  cfg.Directory,
		dedup:      cfg.Dedup,
		limiter:    cfg.Limiter,
		codec:      cfg.Codec,
		bot:        cfg.Bot,
		botTimeout: cfg.BotTimeout,
		rateLimit:  cfg.RateLimit,
		log:        cfg.Log,
	}
}

// Join adds a session to a room after checking what the room permits.
// Community rooms must pre-exist in the directory; assistant rooms are
// created on demand, but only for their owning user.
func (r *Router) Join(ctx context.Context, sess *session.Session, roomID string) error {
	onDemand := models.IsAssistantRoom(roomID)

	if onDemand {
		if owner := models.AssistantRoomOwner(roomID); owner != sess.UserID {
			return &models.NotAuthorizedError{RoomID: roomID, Reason: "assistant rooms are private to their owner"}
		}
	} else {
		if !models.ValidRoomName(roomID) {
			return &models.ValidationError{Field: "room_id", Reason: "room name must be 1-50 characters, alphanumeric with hyphens and underscores"}
		}
		room, err := r.directory.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room == nil {
			return &models.NotAuthorizedError{RoomID: roomID, Reason: "unknown room"}
		}
		if sess.Anonymous && !room.AllowAnonymous {
			return &models.NotAuthorizedError{RoomID: roomID, Reason: "room does not allow anonymous sessions"}
		}
	}

	r.registry.Join(roomID, sess.ID, onDemand)
	sess.MarkJoined(roomID)
	return nil
}

// Leave removes a session from a room. Idempotent.
func (r *Router) Leave(sess *session.Session, roomID string) {
	r.registry.Leave(roomID, sess.ID)
	sess.MarkLeft(roomID)
}

// Submit validates and dispatches one envelope. The returned Ack means the
// fan-out is queued, not that every member has the message; per-member
// delivery is covered by the session layer's retries.
func (r *Router) Submit(ctx context.Context, sess *session.Session, env *models.Envelope) (*models.Ack, error) {
	if env.MessageID == "" {
		return nil, &models.ValidationError{Field: "id", Reason: "message id is required"}
	}
	if !env.Kind.Valid() {
		return nil, &models.ValidationError{MessageID: env.MessageID, Field: "kind", Reason: "unknown message kind"}
	}
	if env.Kind == models.KindBotReply {
		return nil, &models.ValidationError{MessageID: env.MessageID, Field: "kind", Reason: "bot_reply is reserved for the assistant"}
	}
	if env.Body == "" && env.Attachment == nil {
		return nil, &models.ValidationError{MessageID: env.MessageID, Field: "body", Reason: "empty message"}
	}

	// Membership gate: a sender must be in the room it posts to.
	if !r.registry.Contains(env.RoomID, sess.ID) {
		metrics.MessagesRejected.WithLabelValues("not_authorized").Inc()
		return nil, &models.NotAuthorizedError{RoomID: env.RoomID, MessageID: env.MessageID, Reason: "sender is not a member of this room"}
	}

	if r.limiter != nil && r.rateLimit > 0 {
		ok, err := r.limiter.Allow(ctx, sess.ID, r.rateLimit, time.Minute)
		if err != nil {
			r.log.Warn().Err(err).Msg("rate limiter unavailable, allowing")
		} else if !ok {
			metrics.MessagesRejected.WithLabelValues("rate_limited").Inc()
			return nil, &models.RateLimitedError{MessageID: env.MessageID}
		}
	}

	// Idempotent retry: a message we already acknowledged is acknowledged
	// again, never re-broadcast.
	seen, err := r.dedup.MarkSeen(ctx, env.RoomID, env.MessageID)
	if err != nil {
		return nil, err
	}
	if seen {
		metrics.DuplicatesSuppressed.Inc()
		// Stamped so a retrying client can still advance its per-room
		// high-water mark from the ack.
		return &models.Ack{MessageID: env.MessageID, ServerTimestamp: time.Now().UnixMilli(), Duplicate: true}, nil
	}

	// Attachment gate. Failures are terminal for this message; nothing has
	// been broadcast yet.
	if env.Kind.HasAttachment() {
		if err := r.codec.Inspect(env.Kind, env.Attachment); err != nil {
			metrics.MessagesRejected.WithLabelValues("attachment").Inc()
			return nil, err
		}
	} else if env.Attachment != nil {
		metrics.MessagesRejected.WithLabelValues("attachment").Inc()
		return nil, &models.ValidationError{MessageID: env.MessageID, Field: "attachment", Reason: "text messages cannot carry attachments"}
	}

	// The routed copy is stamped with the verified sender identity and the
	// authoritative server timestamp; the submitted value is never mutated.
	routed := *env
	routed.SenderID = sess.UserID
	routed.ServerTimestamp = time.Now().UnixMilli()

	if models.IsAssistantRoom(routed.RoomID) {
		r.routeAssistant(sess, &routed)
		metrics.MessagesRouted.WithLabelValues(string(routed.Kind), "assistant").Inc()
	} else {
		r.fanout(sess, &routed, false)
		metrics.MessagesRouted.WithLabelValues(string(routed.Kind), "community").Inc()
	}

	return &models.Ack{MessageID: routed.MessageID, ServerTimestamp: routed.ServerTimestamp}, nil
}

// fanout queues the envelope on every member's session. Community rooms do
// not echo to the sender; assistant rooms do, so the widget renders the user
// turn and the bot reply from one stream.
func (r *Router) fanout(sender *session.Session, env *models.Envelope, echo bool) {
	members := r.registry.MembersOf(env.RoomID)

	recipients := 0
	for _, sessionID := range members {
		if !echo && sessionID == sender.ID {
			continue
		}
		member := r.sessions.Get(sessionID)
		if member == nil {
			continue
		}
		recipients++
		member.Deliver(env, r.failureNotifier(sender))
	}
	metrics.FanoutSize.Observe(float64(recipients))
}

// failureNotifier surfaces a member-delivery failure to the sender only;
// other members never learn about it.
func (r *Router) failureNotifier(sender *session.Session) session.FailureFunc {
	return func(f *models.DeliveryFailed) {
		sender.SendError(models.WireError(f))
	}
}

// routeAssistant echoes the user turn into the assistant room, then asks
// the collaborator for a reply off the submit path. Exactly one of a
// bot_reply envelope or a BotUnavailableError reaches the sender, carrying
// the request's correlation ID either way.
func (r *Router) routeAssistant(sender *session.Session, env *models.Envelope) {
	r.fanout(sender, env, true)

	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = env.MessageID
	}

	if r.bot == nil {
		sender.SendError(models.WireError(&models.BotUnavailableError{
			CorrelationID: correlationID,
			Reason:        "no assistant configured",
		}))
		return
	}

	req := assistant.Request{
		Message: env.Body,
		UserID:  sender.UserID,
	}
	if env.Attachment != nil {
		req.Attachments = []assistant.AttachmentRef{{
			MimeType:  env.Attachment.MimeType,
			Filename:  env.Attachment.Filename,
			SizeBytes: env.Attachment.SizeBytes,
			Ref:       env.Attachment.Ref,
			Data:      env.Attachment.Data,
		}}
	}

	roomID := env.RoomID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.botTimeout)
		defer cancel()

		start := time.Now()
		reply, err := r.bot.Infer(ctx, req)
		metrics.AssistantLatency.Observe(time.Since(start).Seconds())

		if err != nil {
			outcome := "error"
			if ctx.Err() != nil {
				outcome = "timeout"
			}
			metrics.AssistantRequests.WithLabelValues(outcome).Inc()
			r.log.Warn().Err(err).Str("room", roomID).Msg("assistant unavailable")
			sender.SendError(models.WireError(&models.BotUnavailableError{
				CorrelationID: correlationID,
				Reason:        "assistant did not respond",
			}))
			return
		}
		metrics.AssistantRequests.WithLabelValues("ok").Inc()

		botEnv := &models.Envelope{
			MessageID:       ulid.Make().String(),
			RoomID:          roomID,
			SenderID:        AssistantSenderID,
			Kind:            models.KindBotReply,
			Body:            reply.Text,
			ServerTimestamp: time.Now().UnixMilli(),
			CorrelationID:   correlationID,
		}
		r.fanout(sender, botEnv, true)
		metrics.MessagesRouted.WithLabelValues(string(models.KindBotReply), "assistant").Inc()
	}()
}
