package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/mindhaven/relay/internal/models"
)

func TestValidateKinds(t *testing.T) {
	c := New(0, 0)

	tests := []struct {
		name     string
		kind     models.Kind
		mimeType string
		size     int64
		wantErr  bool
	}{
		{"voice accepts audio", models.KindVoice, "audio/webm", 1024, false},
		{"voice rejects image", models.KindVoice, "image/png", 1024, true},
		{"image accepts png", models.KindImage, "image/png", 1024, false},
		{"image rejects pdf", models.KindImage, "application/pdf", 1024, true},
		{"document accepts pdf", models.KindDocument, "application/pdf", 1024, false},
		{"document accepts docx", models.KindDocument, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", 1024, false},
		{"document rejects zip", models.KindDocument, "application/zip", 1024, true},
		{"text carries no attachment", models.KindText, "image/png", 1024, true},
		{"oversize rejected", models.KindImage, "image/png", DefaultAttachmentMaxBytes + 1, true},
		{"at ceiling accepted", models.KindImage, "image/png", DefaultAttachmentMaxBytes, false},
		{"empty rejected", models.KindImage, "image/png", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.kind, tt.mimeType, tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ae *models.AttachmentError
				if !errors.As(err, &ae) {
					t.Fatalf("expected AttachmentError, got %T", err)
				}
			}
		})
	}
}

func TestEncodeDecodeInline(t *testing.T) {
	c := New(0, 0)
	raw := []byte("not really audio but close enough")

	p, err := c.Encode(raw, "audio/ogg", "note.ogg")
	if err != nil {
		t.Fatal(err)
	}
	if p.Encoding != models.EncodingInline {
		t.Fatalf("expected inline encoding, got %s", p.Encoding)
	}
	if p.SizeBytes != int64(len(raw)) {
		t.Fatalf("size stamp %d, want %d", p.SizeBytes, len(raw))
	}

	got, mimeType, filename, err := c.Decode(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("round trip lost data")
	}
	if mimeType != "audio/ogg" || filename != "note.ogg" {
		t.Fatalf("metadata lost: %s %s", mimeType, filename)
	}
}

func TestEncodeLargePayloadBecomesReference(t *testing.T) {
	c := New(64, 1024)

	p, err := c.Encode(make([]byte, 128), "image/jpeg", "photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if p.Encoding != models.EncodingReference {
		t.Fatalf("expected reference encoding above inline ceiling, got %s", p.Encoding)
	}
	if p.Ref == "" {
		t.Fatal("reference payload missing token")
	}
	if p.Data != "" {
		t.Fatal("reference payload should not carry inline data")
	}

	// References cannot be decoded locally.
	if _, _, _, err := c.Decode(p); err == nil {
		t.Fatal("expected decode of reference payload to fail")
	}
}

func TestEncodeOverCeilingFails(t *testing.T) {
	c := New(64, 1024)
	if _, err := c.Encode(make([]byte, 2048), "image/jpeg", "big.jpg"); err == nil {
		t.Fatal("expected error above attachment ceiling")
	}
}

func TestDecodeMalformed(t *testing.T) {
	c := New(0, 0)

	tests := []struct {
		name string
		p    *models.TransportPayload
	}{
		{"nil payload", nil},
		{"bad base64", &models.TransportPayload{Encoding: models.EncodingInline, Data: "!!not-base64!!", SizeBytes: 4}},
		{"size mismatch", &models.TransportPayload{
			Encoding:  models.EncodingInline,
			Data:      base64.StdEncoding.EncodeToString([]byte("abcd")),
			SizeBytes: 99,
		}},
		{"unknown encoding", &models.TransportPayload{Encoding: "carrier-pigeon", SizeBytes: 4}},
		{"inline without data", &models.TransportPayload{Encoding: models.EncodingInline, SizeBytes: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := c.Decode(tt.p)
			var ce *models.CodecError
			if !errors.As(err, &ce) {
				t.Fatalf("expected CodecError, got %v", err)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	c := New(64, 1024)

	inline := func(n int) *models.TransportPayload {
		raw := bytes.Repeat([]byte("a"), n)
		return &models.TransportPayload{
			Encoding:  models.EncodingInline,
			MimeType:  "image/png",
			SizeBytes: int64(n),
			Data:      base64.StdEncoding.EncodeToString(raw),
		}
	}

	if err := c.Inspect(models.KindImage, inline(32)); err != nil {
		t.Fatalf("small inline payload rejected: %v", err)
	}

	if err := c.Inspect(models.KindImage, inline(128)); err == nil {
		t.Fatal("inline payload above inline ceiling should be rejected")
	}

	ref := &models.TransportPayload{
		Encoding:  models.EncodingReference,
		MimeType:  "image/png",
		SizeBytes: 512,
		Ref:       "upload-token",
	}
	if err := c.Inspect(models.KindImage, ref); err != nil {
		t.Fatalf("valid reference rejected: %v", err)
	}

	ref.Ref = ""
	if err := c.Inspect(models.KindImage, ref); err == nil {
		t.Fatal("reference without token should be rejected")
	}

	if err := c.Inspect(models.KindVoice, nil); err == nil {
		t.Fatal("nil payload should be rejected for attachment kinds")
	}

	tampered := inline(32)
	tampered.SizeBytes = 16
	if err := c.Inspect(models.KindImage, tampered); err == nil {
		t.Fatal("size stamp mismatch should be rejected")
	}

	wrongMime := inline(32)
	wrongMime.MimeType = "application/zip"
	err := c.Inspect(models.KindImage, wrongMime)
	var ae *models.AttachmentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AttachmentError for MIME mismatch, got %v", err)
	}
	if !strings.Contains(ae.Reason, "image/") {
		t.Fatalf("unhelpful rejection reason: %s", ae.Reason)
	}
}
