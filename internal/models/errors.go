package models

import "fmt"

// AuthError is fatal to a connection attempt: the bearer token was present
// but could not be verified, or anonymous access is not allowed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth failed: " + e.Reason
}

// NotAuthorizedError rejects a single message; the session stays healthy.
type NotAuthorizedError struct {
	RoomID    string
	MessageID string
	Reason    string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("not authorized for room %s: %s", e.RoomID, e.Reason)
}

// ValidationError rejects a payload before it reaches the router's fan-out.
type ValidationError struct {
	MessageID string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

// AttachmentError rejects an attachment that failed the codec gate
// (oversize, disallowed MIME type for its kind).
type AttachmentError struct {
	MessageID string
	MimeType  string
	SizeBytes int64
	Reason    string
}

func (e *AttachmentError) Error() string {
	return "attachment rejected: " + e.Reason
}

// CodecError reports a malformed transport payload that could not be decoded.
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string {
	return "codec: " + e.Reason
}

// DeliveryFailed is raised after ack retries are exhausted for an envelope,
// carrying the original message ID so the UI can mark that one message
// failed instead of silently dropping it.
type DeliveryFailed struct {
	MessageID string
	Attempts  int
}

func (e *DeliveryFailed) Error() string {
	return fmt.Sprintf("delivery failed for %s after %d attempts", e.MessageID, e.Attempts)
}

// BotUnavailableError reports an assistant collaborator timeout or failure.
// CorrelationID matches the originating request so the client can attach a
// retry affordance to the pending message.
type BotUnavailableError struct {
	CorrelationID string
	Reason        string
}

func (e *BotUnavailableError) Error() string {
	return "assistant unavailable: " + e.Reason
}

// RateLimitedError rejects a submission that exceeded the per-session
// message budget. Distinct from the semantic rejections above: the client
// should back off and retry, not discard.
type RateLimitedError struct {
	MessageID string
}

func (e *RateLimitedError) Error() string {
	return "rate limit exceeded"
}

// ErrorEnvelope is the wire form of a typed error, delivered on the same
// logical channel as acks so clients never have to string-match messages.
type ErrorEnvelope struct {
	Code          string `json:"code"`
	MessageID     string `json:"id,omitempty"`
	CorrelationID string `json:"cid,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Error codes used on the wire.
const (
	CodeAuth           = "auth_error"
	CodeNotAuthorized  = "not_authorized"
	CodeValidation     = "validation_error"
	CodeAttachment     = "attachment_error"
	CodeDelivery       = "delivery_failed"
	CodeBotUnavailable = "bot_unavailable"
	CodeRateLimited    = "rate_limited"
)

// WireError converts a typed error into its transport representation.
// Unknown errors map to a generic validation code rather than leaking
// internals to the client.
func WireError(err error) ErrorEnvelope {
	switch e := err.(type) {
	case *AuthError:
		return ErrorEnvelope{Code: CodeAuth, Detail: e.Reason}
	case *NotAuthorizedError:
		return ErrorEnvelope{Code: CodeNotAuthorized, MessageID: e.MessageID, Detail: e.Reason}
	case *ValidationError:
		return ErrorEnvelope{Code: CodeValidation, MessageID: e.MessageID, Detail: e.Reason}
	case *AttachmentError:
		return ErrorEnvelope{Code: CodeAttachment, MessageID: e.MessageID, Detail: e.Reason}
	case *CodecError:
		return ErrorEnvelope{Code: CodeAttachment, Detail: e.Reason}
	case *DeliveryFailed:
		return ErrorEnvelope{Code: CodeDelivery, MessageID: e.MessageID}
	case *BotUnavailableError:
		return ErrorEnvelope{Code: CodeBotUnavailable, CorrelationID: e.CorrelationID, Detail: e.Reason}
	case *RateLimitedError:
		return ErrorEnvelope{Code: CodeRateLimited, MessageID: e.MessageID}
	default:
		return ErrorEnvelope{Code: CodeValidation, Detail: "request rejected"}
	}
}
