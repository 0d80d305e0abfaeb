package models

// PayloadEncoding describes how a TransportPayload carries its bytes.
type PayloadEncoding string

const (
	// EncodingInline means the payload bytes travel base64-encoded inside
	// the envelope. Only permitted below the configured inline ceiling.
	EncodingInline PayloadEncoding = "inline"

	// EncodingReference means the payload was pushed through the separate
	// upload channel and the envelope carries an opaque token for it.
	EncodingReference PayloadEncoding = "reference"
)

// TransportPayload is the wire form of an attachment. It is self-describing:
// size and MIME type are stamped at encode time and re-checked at decode time.
type TransportPayload struct {
	Encoding  PayloadEncoding `json:"encoding"`
	MimeType  string          `json:"mime_type"`
	Filename  string          `json:"filename,omitempty"`
	SizeBytes int64           `json:"size"`

	// Data holds base64 bytes for inline payloads, empty for references.
	Data string `json:"data,omitempty"`

	// Ref holds the upload-channel token for reference payloads.
	Ref string `json:"ref,omitempty"`
}
