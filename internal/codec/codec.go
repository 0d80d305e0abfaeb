// Package codec handles transport encoding, decoding, and validation of
// binary attachment payloads. It is the first gate: nothing that fails here
// ever reaches the router's fan-out.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mindhaven/relay/internal/models"
)

const (
	// DefaultInlineMaxBytes is the ceiling for base64-in-envelope payloads.
	// Larger attachments must travel through the upload channel and appear
	// in the envelope as a reference token.
	DefaultInlineMaxBytes = 1 << 20 // 1 MiB

	// DefaultAttachmentMaxBytes is the hard ceiling for any attachment,
	// inherited from the client-side checks this core replaces.
	DefaultAttachmentMaxBytes = 5 << 20 // 5 MiB
)

// documentMimeTypes is the fixed allow-list for document attachments.
var documentMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

// Codec validates and encodes attachments for transport.
type Codec struct {
	inlineMax     int64
	attachmentMax int64
}

// New creates a codec with the given size limits. Non-positive limits fall
// back to the defaults.
func New(inlineMax, attachmentMax int64) *Codec {
	if inlineMax <= 0 {
		inlineMax = DefaultInlineMaxBytes
	}
	if attachmentMax <= 0 {
		attachmentMax = DefaultAttachmentMaxBytes
	}
	return &Codec{inlineMax: inlineMax, attachmentMax: attachmentMax}
}

// Validate enforces the per-kind MIME allow-list and the size ceiling.
func (c *Codec) Validate(kind models.Kind, mimeType string, sizeBytes int64) error {
	if sizeBytes <= 0 {
		return &models.AttachmentError{MimeType: mimeType, SizeBytes: sizeBytes, Reason: "empty payload"}
	}
	if sizeBytes > c.attachmentMax {
		return &models.AttachmentError{
			MimeType:  mimeType,
			SizeBytes: sizeBytes,
			Reason:    fmt.Sprintf("payload %d bytes exceeds limit %d", sizeBytes, c.attachmentMax),
		}
	}

	switch kind {
	case models.KindVoice:
		if !strings.HasPrefix(mimeType, "audio/") {
			return &models.AttachmentError{MimeType: mimeType, SizeBytes: sizeBytes, Reason: "voice messages require an audio/* MIME type"}
		}
	case models.KindImage:
		if !strings.HasPrefix(mimeType, "image/") {
			return &models.AttachmentError{MimeType: mimeType, SizeBytes: sizeBytes, Reason: "image messages require an image/* MIME type"}
		}
	case models.KindDocument:
		if !documentMimeTypes[mimeType] {
			return &models.AttachmentError{MimeType: mimeType, SizeBytes: sizeBytes, Reason: "unsupported document MIME type"}
		}
	default:
		return &models.AttachmentError{MimeType: mimeType, SizeBytes: sizeBytes, Reason: fmt.Sprintf("kind %q does not carry attachments", kind)}
	}
	return nil
}

// Encode produces the transport form of a raw payload: base64 inline below
// the inline ceiling, a reference token above it. Encode does not validate
// per-kind MIME rules; callers run Validate first.
func (c *Codec) Encode(raw []byte, mimeType, filename string) (*models.TransportPayload, error) {
	size := int64(len(raw))
	if size == 0 {
		return nil, &models.CodecError{Reason: "empty payload"}
	}
	if size > c.attachmentMax {
		return nil, &models.AttachmentError{
			MimeType:  mimeType,
			SizeBytes: size,
			Reason:    fmt.Sprintf("payload %d bytes exceeds limit %d", size, c.attachmentMax),
		}
	}

	if size > c.inlineMax {
		// Too big for the envelope: hand back a reference token. The upload
		// channel stores the bytes under this token out of band.
		return &models.TransportPayload{
			Encoding:  models.EncodingReference,
			MimeType:  mimeType,
			Filename:  filename,
			SizeBytes: size,
			Ref:       uuid.NewString(),
		}, nil
	}

	return &models.TransportPayload{
		Encoding:  models.EncodingInline,
		MimeType:  mimeType,
		Filename:  filename,
		SizeBytes: size,
		Data:      base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// Decode is the inverse of Encode for inline payloads. Reference payloads
// have no bytes to decode here; resolving the token is the upload channel's
// job, so Decode rejects them.
func (c *Codec) Decode(p *models.TransportPayload) (raw []byte, mimeType, filename string, err error) {
	if p == nil {
		return nil, "", "", &models.CodecError{Reason: "nil payload"}
	}

	switch p.Encoding {
	case models.EncodingInline:
		if p.Data == "" {
			return nil, "", "", &models.CodecError{Reason: "inline payload has no data"}
		}
		raw, err = base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return nil, "", "", &models.CodecError{Reason: "malformed base64 data"}
		}
		if int64(len(raw)) != p.SizeBytes {
			return nil, "", "", &models.CodecError{Reason: fmt.Sprintf("size stamp %d does not match decoded length %d", p.SizeBytes, len(raw))}
		}
		return raw, p.MimeType, p.Filename, nil
	case models.EncodingReference:
		return nil, "", "", &models.CodecError{Reason: "reference payloads are resolved by the upload channel"}
	default:
		return nil, "", "", &models.CodecError{Reason: fmt.Sprintf("unknown encoding %q", p.Encoding)}
	}
}

// Inspect checks a client-supplied transport payload without materializing
// the bytes: encoding well-formed, size stamp sane, MIME allowed for kind.
// The router calls this before fan-out.
func (c *Codec) Inspect(kind models.Kind, p *models.TransportPayload) error {
	if p == nil {
		return &models.ValidationError{Field: "attachment", Reason: fmt.Sprintf("kind %q requires an attachment", kind)}
	}
	if err := c.Validate(kind, p.MimeType, p.SizeBytes); err != nil {
		return err
	}

	switch p.Encoding {
	case models.EncodingInline:
		if p.SizeBytes > c.inlineMax {
			return &models.AttachmentError{
				MimeType:  p.MimeType,
				SizeBytes: p.SizeBytes,
				Reason:    fmt.Sprintf("inline payload %d bytes exceeds inline limit %d", p.SizeBytes, c.inlineMax),
			}
		}
		// Verify the stamp without keeping the decoded bytes.
		decoded, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return &models.CodecError{Reason: "malformed base64 data"}
		}
		if int64(len(decoded)) != p.SizeBytes {
			return &models.CodecError{Reason: "size stamp does not match payload"}
		}
	case models.EncodingReference:
		if p.Ref == "" {
			return &models.CodecError{Reason: "reference payload missing token"}
		}
	default:
		return &models.CodecError{Reason: fmt.Sprintf("unknown encoding %q", p.Encoding)}
	}
	return nil
}
